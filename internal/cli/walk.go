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
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/walk"
)

type walkOptions struct {
	files         bool
	dirs          bool
	hidden        bool
	allDirs       bool
	dots          bool
	caseSensitive bool
	recursive     bool
	follow        bool
	relative      bool
}

func (o walkOptions) filters() engine.Filters {
	var f engine.Filters
	if o.files {
		f |= engine.Files
	}
	if o.dirs {
		f |= engine.Dirs
	}
	if o.hidden {
		f |= engine.Hidden
	}
	if o.allDirs {
		f |= engine.AllDirs
	}
	if o.caseSensitive {
		f |= engine.CaseSensitive
	}
	if !o.dots {
		f |= engine.NoDotAndDotDot
	}
	return f
}

func (o walkOptions) flags() walk.Flags {
	var f walk.Flags
	if o.recursive {
		f |= walk.Subdirectories
	}
	if o.follow {
		f |= walk.FollowSymlinks
	}
	return f
}

func walkCmd() *cobra.Command {
	var opts walkOptions

	cmd := &cobra.Command{
		Use:   "walk",
		Short: "List the entries of a directory",
		Long: `List the entries of a directory, optionally recursing into subdirectories.

Patterns are shell wildcards matched against entry names. Directories are
matched too unless --all-dirs is given. Without --files or --dirs every
kind of entry is listed.`,
		Example: `  enginefs walk /etc '*.conf'
  enginefs walk -r --files data: '*.json'
  enginefs walk -rL --hidden /mnt/image`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return WalkCmd(cmd.Context(), cmd.OutOrStdout(), args[0], args[1:], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.files, "files", false, "list files")
	cmd.Flags().BoolVar(&opts.dirs, "dirs", false, "list directories")
	cmd.Flags().BoolVar(&opts.hidden, "hidden", false, "include hidden entries")
	cmd.Flags().BoolVar(&opts.allDirs, "all-dirs", false, "list directories regardless of the patterns")
	cmd.Flags().BoolVar(&opts.dots, "dots", false, "include the . and .. entries")
	cmd.Flags().BoolVar(&opts.caseSensitive, "case-sensitive", false, "match patterns case sensitively")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "L", false, "descend into symbolic links to directories")
	cmd.Flags().BoolVar(&opts.relative, "relative", false, "print paths relative to the root")

	return cmd
}

func WalkCmd(ctx context.Context, out io.Writer, root string, patterns []string, opts walkOptions, wopts ...walk.Option) error {
	log := clog.FromContext(ctx)

	found, err := walk.Collect(ctx, root, opts.filters(), patterns, opts.flags(), wopts...)
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	log.Debugf("found %d entries below %s", len(found), root)

	slices.Sort(found)
	prefix := strings.TrimSuffix(root, "/") + "/"
	for _, p := range found {
		if opts.relative {
			p = strings.TrimPrefix(p, prefix)
		}
		if _, err := fmt.Fprintln(out, p); err != nil {
			return err
		}
	}
	return nil
}
