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

// Package paths holds the path representation shared by every engine.
//
// A Handle keeps a portable, always slash separated form and a native form
// of the same path. Whichever form a Handle was built from is kept verbatim;
// the other is derived on first use and memoized, as are the offsets used to
// answer name and extension queries.
package paths

import (
	"strings"
	"sync/atomic"
)

// Handle is an immutable path. The memo cells are atomic so a Handle can be
// read from several goroutines; it must not be copied after first use.
type Handle struct {
	portable atomic.Pointer[string]
	native   atomic.Pointer[string]
	names    atomic.Pointer[nameSplit]
}

// nameSplit caches separator and dot offsets. Dot offsets are relative to the
// start of the file name.
type nameSplit struct {
	nameStart int
	firstDot  int
	lastDot   int
}

// FromPortable creates a handle from a slash separated path.
func FromPortable(p string) *Handle {
	h := &Handle{}
	if p != "" {
		h.portable.Store(&p)
	}
	return h
}

// FromNative creates a handle from a path using the platform separators.
func FromNative(p string) *Handle {
	h := &Handle{}
	if p != "" {
		h.native.Store(&p)
	}
	return h
}

// Clone returns an independent handle for the same path.
func (h *Handle) Clone() *Handle {
	if p := h.portable.Load(); p != nil {
		return FromPortable(*p)
	}
	return FromNative(h.NativePath())
}

// Path returns the portable form.
func (h *Handle) Path() string {
	if p := h.portable.Load(); p != nil {
		return *p
	}
	n := h.native.Load()
	if n == nil {
		return ""
	}
	p := toPortable(*n)
	h.portable.CompareAndSwap(nil, &p)
	return *h.portable.Load()
}

// NativePath returns the path with platform separators.
func (h *Handle) NativePath() string {
	if n := h.native.Load(); n != nil {
		return *n
	}
	p := h.portable.Load()
	if p == nil {
		return ""
	}
	n := toNative(*p)
	h.native.CompareAndSwap(nil, &n)
	return *h.native.Load()
}

func (h *Handle) String() string { return h.Path() }

// IsEmpty reports whether the handle holds no path at all.
func (h *Handle) IsEmpty() bool {
	return h.portable.Load() == nil && h.native.Load() == nil
}

func (h *Handle) split() *nameSplit {
	if s := h.names.Load(); s != nil {
		return s
	}
	s := computeSplit(h.Path())
	h.names.CompareAndSwap(nil, s)
	return h.names.Load()
}

func computeSplit(p string) *nameSplit {
	start := strings.LastIndexByte(p, '/') + 1
	if start == 0 && hasDriveLetter(p) {
		start = 2
	}
	s := &nameSplit{nameStart: start, firstDot: -1, lastDot: -1}
	name := p[start:]
	if name == "." || name == ".." {
		return s
	}
	// A dot in the first position marks a hidden file, not an extension.
	for i := len(name) - 1; i > 0; i-- {
		if name[i] != '.' {
			continue
		}
		if s.lastDot == -1 {
			s.lastDot = i
		}
		s.firstDot = i
	}
	return s
}

// FileName returns everything after the last separator.
func (h *Handle) FileName() string {
	return h.Path()[h.split().nameStart:]
}

// DirectoryPart returns everything before the last separator. A path without
// a separator yields ".", a file directly under the root yields the root.
func (h *Handle) DirectoryPart() string {
	p := h.Path()
	start := h.split().nameStart
	switch {
	case start == 0:
		return "."
	case start == 2 && hasDriveLetter(p) && (len(p) == 2 || p[2] != '/'):
		return p[:2]
	case start == 1:
		return "/"
	case start == 3 && hasDriveLetter(p):
		return p[:3]
	}
	return p[:start-1]
}

// BaseName returns the file name up to its first extension separator.
func (h *Handle) BaseName() string {
	name, s := h.FileName(), h.split()
	if s.firstDot == -1 {
		return name
	}
	return name[:s.firstDot]
}

// CompleteBaseName returns the file name up to its last extension separator.
func (h *Handle) CompleteBaseName() string {
	name, s := h.FileName(), h.split()
	if s.lastDot == -1 {
		return name
	}
	return name[:s.lastDot]
}

// Suffix returns the text after the last extension separator, "gz" for
// "a.tar.gz".
func (h *Handle) Suffix() string {
	name, s := h.FileName(), h.split()
	if s.lastDot == -1 {
		return ""
	}
	return name[s.lastDot+1:]
}

// CompleteSuffix returns the text after the first extension separator,
// "tar.gz" for "a.tar.gz".
func (h *Handle) CompleteSuffix() string {
	name, s := h.FileName(), h.split()
	if s.firstDot == -1 {
		return ""
	}
	return name[s.firstDot+1:]
}

// IsAbsolute reports whether the path is anchored at a root.
func (h *Handle) IsAbsolute() bool { return isAbsolute(h.Path()) }

// IsRelative is the complement of IsAbsolute.
func (h *Handle) IsRelative() bool { return !h.IsAbsolute() }

// IsRoot reports whether the path names a filesystem root.
func (h *Handle) IsRoot() bool { return isRoot(h.Path()) }

// IsClean reports whether the path contains no "." or ".." segments and no
// doubled separators.
func (h *Handle) IsClean() bool { return IsClean(h.Path()) }

// IsClean reports whether p is already in normalized form. A single trailing
// separator is accepted.
func IsClean(p string) bool {
	dots := 0
	dotOK := true
	slashOK := true
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if dots == 1 || dots == 2 || !slashOK {
				return false
			}
			dots = 0
			dotOK = true
			slashOK = false
			continue
		}
		slashOK = true
		if !dotOK {
			continue
		}
		if p[i] == '.' {
			dots++
			if dots > 2 {
				dotOK = false
			}
		} else {
			dots = 0
			dotOK = false
		}
	}
	return dots != 1 && dots != 2
}
