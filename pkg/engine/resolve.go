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

package engine

import (
	"context"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/nativefs"
	"chainguard.dev/enginefs/pkg/paths"
)

// maxSearchDepth bounds nested search root expansion, so roots that refer to
// each other cannot recurse forever.
const maxSearchDepth = 40

// Resolver maps paths to engines. The zero value uses the process-wide
// registry and search roots.
type Resolver struct {
	Registry *Registry
	Roots    *SearchRoots
	// Prestat lists metadata flags to fill for paths on the native fast
	// path.
	Prestat metadata.Flags
}

// Default returns a resolver using the process-wide registry and search
// roots.
func Default() *Resolver {
	return &Resolver{Registry: DefaultRegistry(), Roots: DefaultSearchRoots()}
}

func (r *Resolver) registry() *Registry {
	if r == nil || r.Registry == nil {
		return DefaultRegistry()
	}
	return r.Registry
}

func (r *Resolver) roots() *SearchRoots {
	if r == nil || r.Roots == nil {
		return DefaultSearchRoots()
	}
	return r.Roots
}

func (r *Resolver) prestat() metadata.Flags {
	if r == nil {
		return 0
	}
	return r.Prestat
}

// Resolve finds the engine for h. A custom engine from the registry wins.
// Otherwise a "scheme:rest" path is retried below each search root of the
// scheme until one exists. Anything else is local: the returned engine is
// nil and callers use the native functions directly.
//
// The returned handle is the path that was finally resolved, which differs
// from h for search root paths. c, when not nil, receives what resolution
// learned about the entry; a search root path that matched nothing is
// recorded as not existing.
func (r *Resolver) Resolve(ctx context.Context, h *paths.Handle, c *metadata.Cache) (*paths.Handle, Engine) {
	ctx, span := otel.Tracer("enginefs").Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("path", h.Path())))
	defer span.End()

	if c == nil {
		c = &metadata.Cache{}
	}
	return r.resolve(ctx, h, c, 0)
}

func (r *Resolver) resolve(ctx context.Context, h *paths.Handle, c *metadata.Cache, depth int) (*paths.Handle, Engine) {
	log := clog.FromContext(ctx)

	if e := r.registry().Create(h.Path()); e != nil {
		return h, e
	}

	scheme, rest, ok := paths.SplitScheme(h.Path())
	if !ok {
		if what := c.MissingFlags(r.prestat()); what != 0 {
			nativefs.FillMetaData(h, c, what)
		}
		return h, nil
	}

	if depth >= maxSearchDepth {
		log.Debugf("search roots nested too deeply resolving %s", h.Path())
		trace.SpanFromContext(ctx).AddEvent("search root recursion limit")
		return notFound(h, c)
	}

	for _, root := range r.roots().Lookup(scheme) {
		candidate := paths.FromPortable(paths.Join(root, rest))
		c.Clear()
		resolved, e := r.resolve(ctx, candidate, c, depth+1)
		if e != nil {
			if e.EntryFlags(metadata.ExistsAttribute)&metadata.ExistsAttribute != 0 {
				c.Set(metadata.ExistsAttribute, metadata.ExistsAttribute)
				return resolved, e
			}
			_ = e.Close()
			continue
		}
		if !c.HasFlags(metadata.ExistsAttribute) {
			nativefs.FillMetaData(resolved, c, metadata.ExistsAttribute)
		}
		if c.Exists() {
			return resolved, nil
		}
	}
	log.Debugf("no search root of %q holds %s", scheme, rest)
	return notFound(h, c)
}

func notFound(h *paths.Handle, c *metadata.Cache) (*paths.Handle, Engine) {
	c.Clear()
	c.Set(metadata.ExistsAttribute, 0)
	return h, nil
}
