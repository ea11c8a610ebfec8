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
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// Factory produces engines for the paths it claims.
//
// Factories are compared with == when unregistering, so implementations
// must be comparable; a pointer type is the usual choice.
type Factory interface {
	// Create returns an engine for path, or nil if the factory does not
	// handle it. Create may resolve other paths itself.
	Create(path string) Engine
}

// Registry is an ordered list of factories. Readers work on an immutable
// snapshot and never block, so resolution may run concurrently and
// recursively while factories are added or removed.
type Registry struct {
	mu        sync.Mutex
	factories atomic.Pointer[[]Factory]
	shutdown  atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry { return defaultRegistry() }

func (r *Registry) snapshot() []Factory {
	if p := r.factories.Load(); p != nil {
		return *p
	}
	return nil
}

// Register adds f in front of every registered factory, so the newest
// registration is tried first.
func (r *Registry) Register(f Factory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown.Load() {
		return
	}
	next := slices.Insert(slices.Clone(r.snapshot()), 0, f)
	r.factories.Store(&next)
}

// Unregister removes f. It reports whether f was registered.
func (r *Registry) Unregister(f Factory) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown.Load() {
		return false
	}
	cur := r.snapshot()
	i := slices.Index(cur, f)
	if i < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	r.factories.Store(&next)
	return true
}

// Create asks each factory in turn and returns the first engine produced.
func (r *Registry) Create(path string) Engine {
	if r.shutdown.Load() {
		return nil
	}
	for _, f := range r.snapshot() {
		if e := f.Create(path); e != nil {
			return e
		}
	}
	return nil
}

// Len returns the number of registered factories.
func (r *Registry) Len() int { return len(r.snapshot()) }

// Shutdown tears the registry down. Afterwards Register and Unregister are
// no-ops and Create always returns nil.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown.Store(true)
	r.factories.Store(nil)
}
