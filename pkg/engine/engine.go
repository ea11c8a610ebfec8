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

// Package engine defines the pluggable filesystem engine interface, the
// process-wide registry of engine factories and the resolution protocol that
// maps a path to an engine or to the native fast path.
package engine

import (
	"io/fs"
	"strings"
	"time"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
)

// OpenMode selects how an engine opens its file.
type OpenMode uint32

const (
	ReadOnly  OpenMode = 0x1
	WriteOnly OpenMode = 0x2
	ReadWrite          = ReadOnly | WriteOnly
	// Append implies WriteOnly.
	Append OpenMode = 0x4
	// Truncate is implied by WriteOnly unless ReadOnly, Append or NewOnly is set.
	Truncate     OpenMode = 0x8
	Text         OpenMode = 0x10
	Unbuffered   OpenMode = 0x20
	NewOnly      OpenMode = 0x40
	ExistingOnly OpenMode = 0x80
)

// CanRead reports whether m allows reading.
func (m OpenMode) CanRead() bool { return m&ReadOnly != 0 }

// CanWrite reports whether m allows writing.
func (m OpenMode) CanWrite() bool { return m&(WriteOnly|Append) != 0 }

func (m OpenMode) String() string {
	var parts []string
	for _, b := range []struct {
		m    OpenMode
		name string
	}{
		{ReadOnly, "read"}, {WriteOnly, "write"}, {Append, "append"}, {Truncate, "truncate"},
		{Text, "text"}, {Unbuffered, "unbuffered"}, {NewOnly, "new-only"}, {ExistingOnly, "existing-only"},
	} {
		if m&b.m != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "closed"
	}
	return strings.Join(parts, "|")
}

// NameKind selects the variant returned by Engine.FileName.
type NameKind int

const (
	DefaultName NameKind = iota
	BaseName
	PathName
	AbsoluteName
	AbsolutePathName
	CanonicalName
	CanonicalPathName
	LinkName
)

// OwnerKind selects between the owning user and group.
type OwnerKind int

const (
	OwnerUser OwnerKind = iota
	OwnerGroup
)

// ExtensionKind names an optional engine capability.
type ExtensionKind int

const (
	// AtEndExtension takes no input and writes a *bool.
	AtEndExtension ExtensionKind = iota
	// FastReadLineExtension takes the destination []byte and writes the
	// number of bytes read to an *int.
	FastReadLineExtension
	// MapExtension takes *MapOptions and writes a *MapResult.
	MapExtension
	// UnmapExtension takes *UnmapOptions.
	UnmapExtension
)

func (k ExtensionKind) String() string {
	switch k {
	case AtEndExtension:
		return "at-end"
	case FastReadLineExtension:
		return "fast-read-line"
	case MapExtension:
		return "map"
	case UnmapExtension:
		return "unmap"
	}
	return "unknown"
}

// MapOptions describe a memory mapping request.
type MapOptions struct {
	Offset int64
	Size   int64
	// Private requests a copy-on-write mapping.
	Private bool
}

// MapResult receives the mapped bytes.
type MapResult struct {
	Data []byte
}

// UnmapOptions identify a mapping by the slice previously returned in
// MapResult.Data.
type UnmapOptions struct {
	Data []byte
}

// Engine is the capability interface for one path. An engine is owned by the
// caller that created it and is never shared between goroutines. Concrete
// engines embed Base and override what they support.
type Engine interface {
	Open(mode OpenMode, perm fs.FileMode) error
	Close() error
	Flush() error
	Sync() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(pos int64) error
	Size() (int64, error)
	Position() int64
	IsSequential() bool

	Remove() error
	Rename(newName string) error
	RenameOverwrite(newName string) error
	Link(newName string) error
	Mkdir(name string, createParents bool, perm fs.FileMode) error
	Rmdir(name string, removeEmptyParents bool) error
	SetSize(size int64) error

	// EntryFlags returns the values of the requested flags. Every requested
	// flag is considered known afterwards.
	EntryFlags(what metadata.Flags) metadata.Flags
	SetPermissions(perm metadata.Flags) error
	FileName(kind NameKind) string
	SetFileName(name string)
	OwnerID(kind OwnerKind) (uint32, error)
	OwnerName(kind OwnerKind) string
	FileTime(kind metadata.FileTime) time.Time
	SetFileTime(t time.Time, kind metadata.FileTime) error

	BeginIteration(filters Filters, nameFilters []string) (Iterator, error)
	EndIteration() error

	SupportsExtension(kind ExtensionKind) bool
	Extension(kind ExtensionKind, in, out any) error
}

// Base implements every Engine method as unsupported.
type Base struct{}

func unsupported(op string) error { return fserr.WithKind(op, "", fserr.Unsupported) }

func (Base) Open(OpenMode, fs.FileMode) error               { return unsupported("open") }
func (Base) Close() error                                   { return nil }
func (Base) Flush() error                                   { return nil }
func (Base) Sync() error                                    { return nil }
func (Base) Read([]byte) (int, error)                       { return 0, unsupported("read") }
func (Base) Write([]byte) (int, error)                      { return 0, unsupported("write") }
func (Base) Seek(int64) error                               { return unsupported("seek") }
func (Base) Size() (int64, error)                           { return 0, nil }
func (Base) Position() int64                                { return 0 }
func (Base) IsSequential() bool                             { return false }
func (Base) Remove() error                                  { return unsupported("remove") }
func (Base) Rename(string) error                            { return unsupported("rename") }
func (Base) RenameOverwrite(string) error                   { return unsupported("rename") }
func (Base) Link(string) error                              { return unsupported("link") }
func (Base) Mkdir(string, bool, fs.FileMode) error          { return unsupported("mkdir") }
func (Base) Rmdir(string, bool) error                       { return unsupported("rmdir") }
func (Base) SetSize(int64) error                            { return unsupported("truncate") }
func (Base) EntryFlags(metadata.Flags) metadata.Flags       { return 0 }
func (Base) SetPermissions(metadata.Flags) error            { return unsupported("chmod") }
func (Base) FileName(NameKind) string                       { return "" }
func (Base) SetFileName(string)                             {}
func (Base) OwnerID(OwnerKind) (uint32, error)              { return 0, unsupported("owner") }
func (Base) OwnerName(OwnerKind) string                     { return "" }
func (Base) FileTime(metadata.FileTime) time.Time           { return time.Time{} }
func (Base) SetFileTime(time.Time, metadata.FileTime) error { return unsupported("utimes") }
func (Base) EndIteration() error                            { return nil }
func (Base) SupportsExtension(ExtensionKind) bool           { return false }

func (Base) BeginIteration(Filters, []string) (Iterator, error) {
	return nil, unsupported("readdir")
}

func (Base) Extension(kind ExtensionKind, _, _ any) error {
	return unsupported(kind.String())
}

func extensionCall(e Engine, kind ExtensionKind, in, out any) error {
	if !e.SupportsExtension(kind) {
		return fserr.WithKind(kind.String(), e.FileName(DefaultName), fserr.Unsupported)
	}
	return e.Extension(kind, in, out)
}

// Map maps size bytes at offset of the open file of e.
func Map(e Engine, offset, size int64, private bool) ([]byte, error) {
	var res MapResult
	if err := extensionCall(e, MapExtension, &MapOptions{Offset: offset, Size: size, Private: private}, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Unmap releases a mapping returned by Map.
func Unmap(e Engine, data []byte) error {
	return extensionCall(e, UnmapExtension, &UnmapOptions{Data: data}, nil)
}

// ReadLine reads up to and including the next newline into p.
func ReadLine(e Engine, p []byte) (int, error) {
	var n int
	err := extensionCall(e, FastReadLineExtension, p, &n)
	return n, err
}

// AtEnd reports whether the read position of e is at end of file.
func AtEnd(e Engine) (bool, error) {
	var end bool
	err := extensionCall(e, AtEndExtension, nil, &end)
	return end, err
}
