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

package config

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"chainguard.dev/enginefs/pkg/engine"
	apkfs "chainguard.dev/enginefs/pkg/fs"
	"chainguard.dev/enginefs/pkg/iofs"
	"chainguard.dev/enginefs/pkg/tarfs"
)

// Apply installs the search paths into roots and registers a read-only
// engine for every mount. It returns the registered factories so callers
// can unregister them again.
func (c *Config) Apply(ctx context.Context, roots *engine.SearchRoots, reg *engine.Registry) ([]engine.Factory, error) {
	log := clog.FromContext(ctx)

	prefixes := maps.Keys(c.SearchPaths)
	slices.Sort(prefixes)
	for _, prefix := range prefixes {
		if err := roots.Set(prefix, c.SearchPaths[prefix]); err != nil {
			return nil, fmt.Errorf("setting search paths for %q: %w", prefix, err)
		}
		log.Debugf("search paths for %s: %v", prefix, c.SearchPaths[prefix])
	}

	var factories []engine.Factory
	undo := func() {
		for _, f := range factories {
			reg.Unregister(f)
		}
	}

	for _, a := range c.Archives {
		var opts []tarfs.Option
		if a.ParallelGzip > 1 {
			opts = append(opts, tarfs.WithParallelGzip(a.ParallelGzip))
		}
		if a.MaxSize > 0 {
			opts = append(opts, tarfs.WithMaxSize(a.MaxSize))
		}
		fsys, err := tarfs.Open(ctx, a.Path, opts...)
		if err != nil {
			undo()
			return nil, fmt.Errorf("mounting %s: %w", a.Mount, err)
		}
		f := iofs.NewFactory(a.Mount, fsys)
		if a.Dir != "" {
			if f, err = iofs.Sub(a.Mount, fsys, a.Dir); err != nil {
				undo()
				return nil, fmt.Errorf("mounting %s: %w", a.Mount, err)
			}
		}
		reg.Register(f)
		factories = append(factories, f)
		log.Infof("mounted %s at %s", a.Path, a.Mount)
	}

	for _, d := range c.Directories {
		f := iofs.NewFactory(d.Mount, apkfs.DirFS(d.Path))
		reg.Register(f)
		factories = append(factories, f)
		log.Infof("mounted %s at %s", d.Path, d.Mount)
	}
	return factories, nil
}
