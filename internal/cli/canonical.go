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
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"chainguard.dev/enginefs/pkg/paths"
	"chainguard.dev/enginefs/pkg/vfs"
)

func canonicalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonical",
		Short: "Print the canonical path of existing files",
		Long: `Print the canonical path of existing files, with symbolic links and
. or .. segments resolved. Arguments may be paths or file:// URIs.`,
		Example: `  enginefs canonical ../lib/libc.so
  enginefs canonical file:///usr/lib/os-release`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return CanonicalCmd(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

func CanonicalCmd(ctx context.Context, out io.Writer, names []string, opts ...vfs.Option) error {
	log := clog.FromContext(ctx)

	var errs []error
	for _, name := range names {
		if paths.IsFileURI(name) {
			h, err := paths.FromURI(name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			name = h.NativePath()
		}
		c := vfs.Stat(ctx, name, opts...).CanonicalPath()
		if c == "" {
			log.Warnf("%s does not exist", name)
			errs = append(errs, fmt.Errorf("%s: no such file or directory", name))
			continue
		}
		if _, err := fmt.Fprintln(out, c); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
