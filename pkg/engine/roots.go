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
	"strings"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/paths"
)

// SearchRoots maps a scheme prefix such as "data" to the ordered base
// directories a "data:rest" path is looked up in.
type SearchRoots struct {
	mu    sync.RWMutex
	roots map[string][]string
}

// NewSearchRoots returns an empty table.
func NewSearchRoots() *SearchRoots {
	return &SearchRoots{roots: map[string][]string{}}
}

var defaultSearchRoots = sync.OnceValue(NewSearchRoots)

// DefaultSearchRoots returns the process-wide table.
func DefaultSearchRoots() *SearchRoots { return defaultSearchRoots() }

func validPrefix(prefix string) error {
	if len(prefix) < 2 {
		return fserr.Newf("searchpath", prefix, fserr.InvalidArgument, "prefix must be at least two characters")
	}
	if strings.ContainsAny(prefix, `:/\`) {
		return fserr.Newf("searchpath", prefix, fserr.InvalidArgument, "prefix must not contain separators")
	}
	return nil
}

// Set replaces the roots of prefix. An empty list removes the prefix.
func (s *SearchRoots) Set(prefix string, roots []string) error {
	if err := validPrefix(prefix); err != nil {
		return err
	}
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		clean = append(clean, paths.FromNative(r).Path())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(clean) == 0 {
		delete(s.roots, prefix)
		return nil
	}
	s.roots[prefix] = clean
	return nil
}

// Add appends root to the roots of prefix.
func (s *SearchRoots) Add(prefix, root string) error {
	if err := validPrefix(prefix); err != nil {
		return err
	}
	root = paths.FromNative(root).Path()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.roots[prefix], root) {
		s.roots[prefix] = append(s.roots[prefix], root)
	}
	return nil
}

// Remove drops prefix and all of its roots.
func (s *SearchRoots) Remove(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roots, prefix)
}

// Lookup returns a copy of the roots of prefix.
func (s *SearchRoots) Lookup(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roots[prefix])
}

// Prefixes returns the configured prefixes in sorted order.
func (s *SearchRoots) Prefixes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := maps.Keys(s.roots)
	slices.Sort(keys)
	return keys
}
