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
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/vfs"
)

// statResult is the printed form of a vfs.Info.
type statResult struct {
	Path      string `yaml:"path"`
	Exists    bool   `yaml:"exists"`
	Type      string `yaml:"type,omitempty"`
	Size      int64  `yaml:"size,omitempty"`
	Mode      string `yaml:"mode,omitempty"`
	Owner     string `yaml:"owner,omitempty"`
	Group     string `yaml:"group,omitempty"`
	Modified  string `yaml:"modified,omitempty"`
	Hidden    bool   `yaml:"hidden,omitempty"`
	Target    string `yaml:"target,omitempty"`
	Canonical string `yaml:"canonical,omitempty"`
	Engine    string `yaml:"engine"`
}

func entryType(info *vfs.Info) string {
	switch {
	case info.IsSymlink():
		return "symlink"
	case info.IsDir():
		return "directory"
	case info.IsFile():
		return "file"
	case info.IsSequential():
		return "sequential"
	default:
		return "other"
	}
}

func describe(info *vfs.Info) statResult {
	r := statResult{
		Path:   info.Path(),
		Exists: info.Exists(),
		Engine: "native",
	}
	if e := info.Engine(); e != nil {
		r.Engine = fmt.Sprintf("%T", e)
	}
	if !r.Exists {
		return r
	}
	r.Type = entryType(info)
	r.Size = info.Size()
	r.Mode = metadata.PermToMode(info.Permissions()).String()
	r.Owner = info.Owner()
	r.Group = info.Group()
	if t := info.ModTime(); !t.IsZero() {
		r.Modified = t.UTC().Format(time.RFC3339)
	}
	r.Hidden = info.IsHidden()
	if r.Type == "symlink" {
		r.Target = info.SymlinkTarget()
	}
	r.Canonical = info.CanonicalPath()
	return r
}

func statCmd() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Print what is known about files",
		Example: `  enginefs stat /etc/passwd
  enginefs stat data:config.json /mnt/image/bin/sh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return StatCmd(cmd.Context(), cmd.OutOrStdout(), args, jobs)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of paths to stat concurrently")

	return cmd
}

// StatCmd stats every name concurrently and writes one YAML document per
// name, in argument order. Missing entries are printed with exists: false.
func StatCmd(ctx context.Context, out io.Writer, names []string, jobs int, opts ...vfs.Option) error {
	results := make([]statResult, len(names))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = describe(vfs.Stat(ctx, name, opts...))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding %s: %w", r.Path, err)
		}
	}
	return enc.Close()
}
