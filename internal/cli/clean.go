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

	"github.com/spf13/cobra"

	"chainguard.dev/enginefs/pkg/paths"
)

func cleanCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Print paths in their clean form",
		Long: `Print paths in their clean form: separators collapsed, . segments
dropped and .. segments folded into their parent. No file is touched.

With --strict, a path whose .. segments climb above its root is an error.`,
		Example: `  enginefs clean a//b/./../c
  enginefs clean --strict /../etc`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return CleanCmd(cmd.OutOrStdout(), args, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on paths that climb above their root")

	return cmd
}

func CleanCmd(out io.Writer, names []string, strict bool) error {
	for _, name := range names {
		clean, ok := paths.Normalize(name)
		if !ok && strict {
			return fmt.Errorf("%s climbs above its root", name)
		}
		if _, err := fmt.Fprintln(out, clean); err != nil {
			return err
		}
	}
	return nil
}
