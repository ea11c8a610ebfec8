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
	"strings"
)

// Normalize collapses "." segments, doubled separators and trailing
// separators and resolves ".." segments syntactically.
//
// ok is false when a ".." would climb above the root of an absolute path.
// Those ".." segments are kept directly after the root, so "/../x" stays
// "/../x". Relative paths keep their leading ".." segments and always
// report ok. Normalize never touches the filesystem and is idempotent.
func Normalize(p string) (clean string, ok bool) {
	if p == "" {
		return "", true
	}
	root, rest := SplitRoot(toPortable(p))

	segs := strings.Split(rest, "/")
	out := make([]string, 0, len(segs))
	up := 0
	for i := len(segs) - 1; i >= 0; i-- {
		switch s := segs[i]; s {
		case "", ".":
		case "..":
			up++
		default:
			if up > 0 {
				up--
				continue
			}
			out = append(out, s)
		}
	}
	ok = true
	if up > 0 && root != "" {
		ok = false
	}
	for ; up > 0; up-- {
		out = append(out, "..")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	joined := strings.Join(out, "/")
	switch {
	case root == "" && joined == "":
		return ".", ok
	case root == "":
		return joined, ok
	case joined == "":
		return root, ok
	case strings.HasSuffix(root, "/") || strings.HasSuffix(root, ":"):
		return root + joined, ok
	}
	return root + "/" + joined, ok
}

// Clean returns the normalized form of p, see Normalize.
func Clean(p string) string {
	c, _ := Normalize(p)
	return c
}

// Join concatenates elements with the portable separator and cleans the
// result. Empty elements are ignored.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return Clean(strings.Join(parts, "/"))
}
