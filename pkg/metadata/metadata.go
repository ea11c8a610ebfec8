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

// Package metadata caches what is known about a filesystem entry.
//
// A Cache pairs a mask of known flags with the flag values themselves. A bit
// of the value is only meaningful when the same bit is set in the mask, so an
// unset existence bit with a known mask means "does not exist" while an unset
// mask means "not asked yet".
package metadata

import (
	"io/fs"
	"time"
)

// Flags describes attributes of an entry. Permission and type bits carry
// values; the attribute bits for size, times and ids only mark the scalar
// fields as known.
type Flags uint32

const (
	OtherExecute Flags = 0x0001
	OtherWrite   Flags = 0x0002
	OtherRead    Flags = 0x0004

	GroupExecute Flags = 0x0010
	GroupWrite   Flags = 0x0020
	GroupRead    Flags = 0x0040

	// User permissions are the effective access of the calling process.
	UserExecute Flags = 0x0100
	UserWrite   Flags = 0x0200
	UserRead    Flags = 0x0400

	OwnerExecute Flags = 0x1000
	OwnerWrite   Flags = 0x2000
	OwnerRead    Flags = 0x4000

	LinkType        Flags = 0x0001_0000
	FileType        Flags = 0x0002_0000
	DirectoryType   Flags = 0x0004_0000
	BundleType      Flags = 0x0008_0000
	HiddenAttribute Flags = 0x0010_0000
	ExistsAttribute Flags = 0x0040_0000
	SequentialType  Flags = 0x0080_0000

	SizeAttribute  Flags = 0x0100_0000
	AccessTime     Flags = 0x0200_0000
	BirthTime      Flags = 0x0400_0000
	ChangeTime     Flags = 0x0800_0000
	ModifyTime     Flags = 0x1000_0000
	UserID         Flags = 0x2000_0000
	GroupID        Flags = 0x4000_0000
	SetUIDGIDStick Flags = 0x8000_0000

	OtherPermissions = OtherExecute | OtherWrite | OtherRead
	GroupPermissions = GroupExecute | GroupWrite | GroupRead
	UserPermissions  = UserExecute | UserWrite | UserRead
	OwnerPermissions = OwnerExecute | OwnerWrite | OwnerRead

	PosixPermissions = OtherPermissions | GroupPermissions | OwnerPermissions
	Permissions      = PosixPermissions | UserPermissions

	Types = LinkType | FileType | DirectoryType | BundleType | SequentialType

	Times    = AccessTime | BirthTime | ChangeTime | ModifyTime
	OwnerIDs = UserID | GroupID

	// PosixStat is everything a single stat call answers.
	PosixStat = PosixPermissions | LinkType | FileType | DirectoryType | SequentialType |
		ExistsAttribute | SizeAttribute | Times | OwnerIDs | SetUIDGIDStick

	All = Permissions | Types | HiddenAttribute | ExistsAttribute |
		SizeAttribute | Times | OwnerIDs | SetUIDGIDStick
)

// FileTime selects one of the timestamps of an entry.
type FileTime int

const (
	Access FileTime = iota
	Birth
	MetadataChange
	Modification
)

// Flag returns the attribute flag that marks t as known.
func (t FileTime) Flag() Flags {
	switch t {
	case Access:
		return AccessTime
	case Birth:
		return BirthTime
	case MetadataChange:
		return ChangeTime
	default:
		return ModifyTime
	}
}

func (t FileTime) String() string {
	switch t {
	case Access:
		return "access"
	case Birth:
		return "birth"
	case MetadataChange:
		return "change"
	default:
		return "modification"
	}
}

// Cache is a plain value; copying it yields an independent cache.
type Cache struct {
	known   Flags
	entry   Flags
	size    int64
	times   [4]time.Time
	uid     uint32
	gid     uint32
	special fs.FileMode
}

// Known returns the mask of flags whose values are known.
func (c *Cache) Known() Flags { return c.known }

// Entry returns the known flag values.
func (c *Cache) Entry() Flags { return c.entry & c.known }

// HasFlags reports whether every flag in f is known.
func (c *Cache) HasFlags(f Flags) bool { return c.known&f == f }

// MissingFlags returns the subset of req that still has to be queried.
func (c *Cache) MissingFlags(req Flags) Flags { return req &^ c.known }

// Clear forgets everything.
func (c *Cache) Clear() { *c = Cache{} }

// ClearFlags forgets the flags in f, leaving the rest known.
func (c *Cache) ClearFlags(f Flags) {
	c.known &^= f
	c.entry &^= f
}

// Set records the values of the flags in mask. Bits of values outside mask
// are ignored.
func (c *Cache) Set(mask, values Flags) {
	c.entry = c.entry&^mask | values&mask
	c.known |= mask
}

// SetSize records the size.
func (c *Cache) SetSize(n int64) {
	c.size = n
	c.known |= SizeAttribute
}

// SetTime records a timestamp.
func (c *Cache) SetTime(which FileTime, t time.Time) {
	c.times[which] = t
	c.known |= which.Flag()
}

// SetOwner records the owning user and group ids.
func (c *Cache) SetOwner(uid, gid uint32) {
	c.uid, c.gid = uid, gid
	c.known |= OwnerIDs
}

// SetSpecialBits records the set-uid, set-gid and sticky bits.
func (c *Cache) SetSpecialBits(m fs.FileMode) {
	c.special = m & (fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	c.known |= SetUIDGIDStick
}

func (c *Cache) has(f Flags) bool { return c.known&f != 0 && c.entry&f != 0 }

// Exists reports a known, set existence flag.
func (c *Cache) Exists() bool { return c.has(ExistsAttribute) }

// IsFile reports whether the entry is known to be a regular file.
func (c *Cache) IsFile() bool { return c.has(FileType) }

// IsDirectory reports whether the entry is known to be a directory.
func (c *Cache) IsDirectory() bool { return c.has(DirectoryType) }

// IsLink reports whether the entry is known to be a symbolic link.
func (c *Cache) IsLink() bool { return c.has(LinkType) }

// IsHidden reports whether the entry is known to be hidden.
func (c *Cache) IsHidden() bool { return c.has(HiddenAttribute) }

// IsSequential reports whether the entry is known to be a pipe, socket or
// device.
func (c *Cache) IsSequential() bool { return c.has(SequentialType) }

// IsBundle reports whether the entry is a bundle directory.
func (c *Cache) IsBundle() bool { return c.has(BundleType) }

// Size returns the recorded size, zero when unknown.
func (c *Cache) Size() int64 { return c.size }

// Permissions returns the known permission bits.
func (c *Cache) Permissions() Flags { return c.Entry() & Permissions }

// Time returns a recorded timestamp, the zero time when unknown.
func (c *Cache) Time(which FileTime) time.Time {
	if !c.HasFlags(which.Flag()) {
		return time.Time{}
	}
	return c.times[which]
}

// Owner returns the recorded user and group ids.
func (c *Cache) Owner() (uid, gid uint32) { return c.uid, c.gid }

// Mode renders the known type and POSIX permission bits as an fs.FileMode.
func (c *Cache) Mode() fs.FileMode {
	m := PermToMode(c.Entry())
	switch {
	case c.IsDirectory():
		m |= fs.ModeDir
	case c.IsLink() && !c.IsFile():
		m |= fs.ModeSymlink
	case c.IsSequential():
		m |= fs.ModeIrregular
	}
	return m | c.special
}

var permBits = [...]struct {
	flag Flags
	mode fs.FileMode
}{
	{OwnerRead, 0o400}, {OwnerWrite, 0o200}, {OwnerExecute, 0o100},
	{GroupRead, 0o040}, {GroupWrite, 0o020}, {GroupExecute, 0o010},
	{OtherRead, 0o004}, {OtherWrite, 0o002}, {OtherExecute, 0o001},
}

// PermToMode converts owner, group and other permission flags to mode bits.
func PermToMode(f Flags) fs.FileMode {
	var m fs.FileMode
	for _, b := range permBits {
		if f&b.flag != 0 {
			m |= b.mode
		}
	}
	return m
}

// ModeToPerm converts mode permission bits to owner, group and other flags.
func ModeToPerm(m fs.FileMode) Flags {
	var f Flags
	for _, b := range permBits {
		if m&b.mode != 0 {
			f |= b.flag
		}
	}
	return f
}

// FromFileInfo fills c from an fs.FileInfo. followed tells whether fi came
// from following a link, in which case the link bit is left alone.
func (c *Cache) FromFileInfo(fi fs.FileInfo, name string, followed bool) {
	mode := fi.Mode()
	var entry Flags = ExistsAttribute
	entry |= ModeToPerm(mode.Perm())
	mask := PosixPermissions | ExistsAttribute | FileType | DirectoryType | SequentialType
	switch {
	case mode.IsDir():
		entry |= DirectoryType
	case mode.IsRegular():
		entry |= FileType
	case mode&fs.ModeSymlink != 0:
	default:
		entry |= SequentialType
	}
	if !followed {
		mask |= LinkType
		if mode&fs.ModeSymlink != 0 {
			// The target type needs a second, following query.
			entry |= LinkType
			mask &^= FileType | DirectoryType | SequentialType
		}
	}
	if len(name) > 0 && name[0] == '.' {
		entry |= HiddenAttribute
	}
	mask |= HiddenAttribute
	c.Set(mask, entry)
	c.SetSize(fi.Size())
	c.SetTime(Modification, fi.ModTime())
	c.SetSpecialBits(mode)
}
