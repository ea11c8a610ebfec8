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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"chainguard.dev/enginefs/pkg/vfs"
)

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cat",
		Short:   "Concatenate files to standard output",
		Example: `  enginefs cat /mnt/image/etc/os-release data:motd`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return CatCmd(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

func CatCmd(ctx context.Context, out io.Writer, names []string, opts ...vfs.Option) error {
	for _, name := range names {
		if err := catOne(ctx, out, name, opts); err != nil {
			return err
		}
	}
	return nil
}

func catOne(ctx context.Context, out io.Writer, name string, opts []vfs.Option) error {
	f, err := vfs.Open(ctx, name, opts...)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(out, f); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}
