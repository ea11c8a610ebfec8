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
	"runtime"
	"strings"
)

// windowsPaths enables drive letter and UNC handling and backslash
// separators.
var windowsPaths = runtime.GOOS == "windows"

func toPortable(native string) string {
	if !windowsPaths {
		return native
	}
	return strings.ReplaceAll(native, `\`, "/")
}

func toNative(portable string) string {
	if !windowsPaths {
		return portable
	}
	return strings.ReplaceAll(portable, "/", `\`)
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func hasDriveLetter(p string) bool {
	return windowsPaths && len(p) >= 2 && p[1] == ':' && isLetter(p[0])
}

// uncRootLen returns the length of a "//server/share" prefix, or 0.
func uncRootLen(p string) int {
	if !windowsPaths || len(p) < 3 || !strings.HasPrefix(p, "//") || p[2] == '/' {
		return 0
	}
	host := strings.IndexByte(p[2:], '/')
	if host < 0 {
		return len(p)
	}
	end := 2 + host + 1
	share := strings.IndexByte(p[end:], '/')
	if share < 0 {
		return len(p)
	}
	return end + share
}

func isAbsolute(p string) bool {
	if windowsPaths {
		if hasDriveLetter(p) {
			return len(p) >= 3 && p[2] == '/'
		}
		return uncRootLen(p) > 0
	}
	return strings.HasPrefix(p, "/")
}

func isRoot(p string) bool {
	if p == "/" {
		return true
	}
	if !windowsPaths {
		return false
	}
	if hasDriveLetter(p) {
		return len(p) == 3 && p[2] == '/'
	}
	if n := uncRootLen(p); n > 0 {
		return n == len(p) || (n == len(p)-1 && p[n] == '/')
	}
	return false
}

// SplitRoot separates the root of p from the rest. The root is "" for a
// relative path, "/" for a POSIX absolute path and "C:/", "C:" or
// "//server/share" on Windows.
func SplitRoot(p string) (root, rest string) {
	if hasDriveLetter(p) {
		if len(p) >= 3 && p[2] == '/' {
			return p[:3], p[3:]
		}
		return p[:2], p[2:]
	}
	if n := uncRootLen(p); n > 0 {
		return p[:n], p[n:]
	}
	if strings.HasPrefix(p, "/") {
		return "/", p[1:]
	}
	return "", p
}
