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

package paths

import (
	"fmt"
	"strings"

	"go.lsp.dev/uri"
)

// SplitScheme splits a "prefix:rest" path. Single character prefixes are
// drive letters, not schemes, and a colon after the first separator does not
// count.
func SplitScheme(p string) (scheme, rest string, ok bool) {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '/', '\\':
			return "", p, false
		case ':':
			if i < 2 {
				return "", p, false
			}
			return p[:i], p[i+1:], true
		}
	}
	return "", p, false
}

// Search tries rel below each of includePaths in order and returns the first
// candidate accepted by exists.
func Search(rel string, includePaths []string, exists func(candidate string) bool) (string, bool) {
	for _, prefix := range includePaths {
		candidate := Join(prefix, rel)
		if exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// FromURI creates a handle from a file:// URI.
func FromURI(s string) (*Handle, error) {
	if !IsFileURI(s) {
		return nil, fmt.Errorf("not a file URI: %q", s)
	}
	u, err := uri.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", s, err)
	}
	return FromNative(u.Filename()), nil
}

// IsFileURI reports whether s uses the file scheme.
func IsFileURI(s string) bool {
	return strings.HasPrefix(s, uri.FileScheme+"://")
}

// URI returns the file:// URI for an absolute handle.
func (h *Handle) URI() string {
	return string(uri.File(h.NativePath()))
}
