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
	"path/filepath"
	"strings"

	"chainguard.dev/enginefs/pkg/metadata"
)

// Filters select which directory entries an iteration surfaces.
type Filters uint32

const (
	Dirs       Filters = 0x001
	Files      Filters = 0x002
	Drives     Filters = 0x004
	NoSymLinks Filters = 0x008
	AllEntries         = Dirs | Files | Drives
	TypeMask   Filters = 0x00f

	Readable       Filters = 0x010
	Writable       Filters = 0x020
	Executable     Filters = 0x040
	PermissionMask Filters = 0x070

	Modified Filters = 0x080
	Hidden   Filters = 0x100
	System   Filters = 0x200

	// AllDirs lists every directory regardless of the name filters.
	AllDirs       Filters = 0x400
	CaseSensitive Filters = 0x800
	NoDot         Filters = 0x2000
	NoDotDot      Filters = 0x4000

	NoDotAndDotDot = NoDot | NoDotDot

	// DefaultFilters is used when no filters are given.
	DefaultFilters = AllEntries | NoDotAndDotDot
)

// OrDefault returns DefaultFilters for the zero value and f otherwise. A
// value with only modifier bits set gets AllEntries added.
func (f Filters) OrDefault() Filters {
	if f == 0 {
		return DefaultFilters
	}
	if f&TypeMask&^NoSymLinks == 0 {
		f |= AllEntries
	}
	return f
}

// MatchName reports whether name matches one of the shell patterns in
// patterns. An empty pattern list matches everything.
func MatchName(name string, patterns []string, caseSensitive bool) bool {
	if len(patterns) == 0 {
		return true
	}
	if !caseSensitive {
		name = strings.ToLower(name)
	}
	for _, p := range patterns {
		if !caseSensitive {
			p = strings.ToLower(p)
		}
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Accept applies f and nameFilters to one directory entry. info must have
// the type, hidden, existence and (when permission filters are set) user
// permission flags filled in.
func (f Filters) Accept(name string, info *metadata.Cache, nameFilters []string) bool {
	f = f.OrDefault()
	switch name {
	case ".":
		if f&NoDot != 0 {
			return false
		}
	case "..":
		if f&NoDotDot != 0 {
			return false
		}
	}
	isDot := name == "." || name == ".."
	isDir := info.IsDirectory()

	if !(isDir && f&AllDirs != 0) && !MatchName(name, nameFilters, f&CaseSensitive != 0) {
		return false
	}
	if !isDot && info.IsHidden() && f&Hidden == 0 {
		return false
	}
	if info.IsLink() && f&NoSymLinks != 0 {
		return false
	}
	if f&System == 0 {
		if info.IsLink() && !info.Exists() {
			return false
		}
		if !isDir && !info.IsFile() && !info.IsLink() {
			return false
		}
	}
	if isDir && !(f&Dirs != 0 || f&AllDirs != 0) {
		return false
	}
	if info.IsFile() && f&Files == 0 {
		return false
	}
	if perm := f & PermissionMask; perm != 0 && (isDir || info.IsFile()) {
		if perm&Readable != 0 && info.Permissions()&metadata.UserRead == 0 {
			return false
		}
		if perm&Writable != 0 && info.Permissions()&metadata.UserWrite == 0 {
			return false
		}
		if perm&Executable != 0 && info.Permissions()&metadata.UserExecute == 0 {
			return false
		}
	}
	return true
}

// AcceptFlags are the metadata flags Accept consults for f.
func (f Filters) AcceptFlags() metadata.Flags {
	what := metadata.Types | metadata.HiddenAttribute | metadata.ExistsAttribute
	if f&PermissionMask != 0 {
		what |= metadata.UserPermissions
	}
	return what
}
