// Copyright 2023 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chainguard.dev/enginefs/pkg/engine"
)

func searchPathsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-paths",
		Short: "Print the configured search path prefixes and their roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return SearchPathsCmd(cmd.OutOrStdout(), engine.DefaultSearchRoots())
		},
	}
	return cmd
}

func SearchPathsCmd(out io.Writer, roots *engine.SearchRoots) error {
	for _, prefix := range roots.Prefixes() {
		if _, err := fmt.Fprintf(out, "%s: %s\n", prefix, strings.Join(roots.Lookup(prefix), ", ")); err != nil {
			return err
		}
	}
	return nil
}
