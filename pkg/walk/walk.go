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

// Package walk lists directory trees. Native directories and directories
// served by custom engines can be mixed freely in one walk.
package walk

import (
	"context"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/util/sets"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/nativefs"
	"chainguard.dev/enginefs/pkg/paths"
)

// Flags control recursion.
type Flags int

const (
	// Subdirectories descends into every directory that is listed.
	Subdirectories Flags = 1 << iota
	// FollowSymlinks descends into links to directories as well. Every
	// directory is then entered at most once, which ends symlink cycles.
	FollowSymlinks
)

type options struct {
	resolver *engine.Resolver
}

// Option configures a Walker.
type Option func(*options)

// WithResolver resolves directories with r instead of engine.Default().
func WithResolver(r *engine.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

type frame struct {
	it engine.Iterator
	e  engine.Engine // nil for native directories
}

func (f frame) close() {
	_ = f.it.Close()
	if f.e != nil {
		_ = f.e.EndIteration()
		_ = f.e.Close()
	}
}

// Walker yields the entries below a root directory one at a time:
//
//	w, err := walk.New(ctx, root, engine.DefaultFilters, nil, walk.Subdirectories)
//	if err != nil { ... }
//	defer w.Close()
//	for w.Next() {
//		fmt.Println(w.Path())
//	}
//	if err := w.Err(); err != nil { ... }
type Walker struct {
	ctx      context.Context
	resolver *engine.Resolver
	filters  engine.Filters
	names    []string
	flags    Flags
	want     metadata.Flags

	stack   []frame
	visited sets.Set[string]

	path string
	name string
	info metadata.Cache
	err  error
}

// New opens root and returns a Walker positioned before its first entry.
func New(ctx context.Context, root string, filters engine.Filters, nameFilters []string, flags Flags, opts ...Option) (*Walker, error) {
	o := options{resolver: engine.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	filters = filters.OrDefault()
	w := &Walker{
		ctx:      ctx,
		resolver: o.resolver,
		filters:  filters,
		names:    nameFilters,
		flags:    flags,
		want:     filters.AcceptFlags() | metadata.LinkType | metadata.DirectoryType,
		visited:  sets.New[string](),
	}

	h := paths.FromNative(root)
	if flags&FollowSymlinks != 0 {
		if c := w.canonical(h); c != "" {
			w.visited.Insert(c)
		}
	}
	f, err := w.open(h)
	if err != nil {
		return nil, err
	}
	w.stack = append(w.stack, f)
	return w, nil
}

func (w *Walker) open(h *paths.Handle) (frame, error) {
	ctx, span := otel.Tracer("enginefs").Start(w.ctx, "walk.push",
		trace.WithAttributes(attribute.String("path", h.Path())))
	defer span.End()

	resolved, e := w.resolver.Resolve(ctx, h, nil)
	if e != nil {
		it, err := e.BeginIteration(w.filters, w.names)
		if err != nil {
			_ = e.Close()
			return frame{}, err
		}
		return frame{it: it, e: e}, nil
	}
	dots := w.filters&engine.NoDotAndDotDot != engine.NoDotAndDotDot
	it, err := nativefs.OpenDir(resolved, dots)
	if err != nil {
		return frame{}, err
	}
	return frame{it: it}, nil
}

func (w *Walker) canonical(h *paths.Handle) string {
	resolved, e := w.resolver.Resolve(w.ctx, h, nil)
	if e != nil {
		defer e.Close()
		return e.FileName(engine.CanonicalName)
	}
	c, err := nativefs.Canonical(w.ctx, resolved)
	if err != nil {
		return ""
	}
	return c.Path()
}

// descend reports whether the current entry should get its own frame.
func (w *Walker) descend(name string, info *metadata.Cache) bool {
	if w.flags&Subdirectories == 0 || name == "." || name == ".." {
		return false
	}
	if !info.IsDirectory() {
		return false
	}
	if info.IsLink() && w.flags&FollowSymlinks == 0 {
		return false
	}
	if info.IsHidden() && w.filters&engine.Hidden == 0 {
		return false
	}
	return true
}

func (w *Walker) push(p string) {
	h := paths.FromPortable(p)
	log := clog.FromContext(w.ctx)
	if w.flags&FollowSymlinks != 0 {
		c := w.canonical(h)
		if c == "" {
			log.Debugf("skipping %s: cannot resolve it", p)
			return
		}
		if w.visited.Has(c) {
			log.Debugf("skipping %s: %s was already entered", p, c)
			trace.SpanFromContext(w.ctx).AddEvent("directory cycle",
				trace.WithAttributes(attribute.String("path", p)))
			return
		}
		w.visited.Insert(c)
	}
	f, err := w.open(h)
	if err != nil {
		log.Debugf("skipping %s: %v", p, err)
		return
	}
	w.stack = append(w.stack, f)
}

// Next advances to the next entry that passes the filters. It returns false
// when the walk is over or the context is done.
func (w *Walker) Next() bool {
	for {
		if w.err == nil {
			w.err = w.ctx.Err()
		}
		if w.err != nil || len(w.stack) == 0 {
			w.Close()
			return false
		}

		top := w.stack[len(w.stack)-1]
		if !top.it.HasNext() {
			if err := top.it.Err(); err != nil {
				clog.FromContext(w.ctx).Debugf("listing %s: %v", top.it.Path(), err)
			}
			top.close()
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}

		p := top.it.Next()
		name := top.it.CurrentName()
		info := top.it.CurrentInfo(w.want)
		if w.descend(name, info) {
			w.push(p)
		}
		if w.filters.Accept(name, info, w.names) {
			w.path, w.name, w.info = p, name, *info
			return true
		}
	}
}

// Path returns the path of the current entry.
func (w *Walker) Path() string { return w.path }

// Name returns the file name of the current entry.
func (w *Walker) Name() string { return w.name }

// Info returns what is known about the current entry. It includes at least
// the type, hidden and existence flags.
func (w *Walker) Info() metadata.Cache { return w.info }

// Depth returns the number of open directory frames.
func (w *Walker) Depth() int { return len(w.stack) }

// Err returns the context error that stopped the walk, if any.
func (w *Walker) Err() error { return w.err }

// Close releases every open directory. Next returns false afterwards.
func (w *Walker) Close() {
	for i := len(w.stack) - 1; i >= 0; i-- {
		w.stack[i].close()
	}
	w.stack = nil
}

// Collect walks root and returns the paths of every entry.
func Collect(ctx context.Context, root string, filters engine.Filters, nameFilters []string, flags Flags, opts ...Option) ([]string, error) {
	w, err := New(ctx, root, filters, nameFilters, flags, opts...)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	var out []string
	for w.Next() {
		out = append(out, w.Path())
	}
	return out, w.Err()
}
