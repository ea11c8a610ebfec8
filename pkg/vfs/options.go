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

// Package vfs holds the objects programs use to work with files: Info for
// metadata queries, File for I/O, and functions for path operations. All of
// them resolve paths through the engine registry, so archive mounts and
// search roots work everywhere a native path does.
package vfs

import (
	"context"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/native"
	"chainguard.dev/enginefs/pkg/nativefs"
	"chainguard.dev/enginefs/pkg/paths"
)

// StatFunc fills the flags in what for a native path, reporting whether it
// succeeded.
type StatFunc func(h *paths.Handle, c *metadata.Cache, what metadata.Flags) bool

type options struct {
	resolver *engine.Resolver
	stat     StatFunc
}

// Option configures how paths are resolved.
type Option func(*options)

// WithResolver resolves paths with r instead of engine.Default().
func WithResolver(r *engine.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithStat replaces the native metadata query.
func WithStat(fn StatFunc) Option {
	return func(o *options) { o.stat = fn }
}

func newOptions(opts []Option) options {
	o := options{
		resolver: engine.Default(),
		stat:     nativefs.FillMetaData,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolve returns the engine serving name, creating a native engine when
// no custom engine claims the path.
func resolve(ctx context.Context, name string, c *metadata.Cache, opts []Option) (*paths.Handle, engine.Engine) {
	o := newOptions(opts)
	h, e := o.resolver.Resolve(ctx, paths.FromNative(name), c)
	if e == nil {
		e = native.New(ctx, h)
	}
	return h, e
}
