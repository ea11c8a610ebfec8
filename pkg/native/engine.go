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

// Package native implements the engine for the host filesystem on top of
// raw file descriptors.
package native

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/nativefs"
	"chainguard.dev/enginefs/pkg/paths"
)

const defaultPerm fs.FileMode = 0o666

// Engine is the engine for one native path. It moves from closed to open
// with Open (or OpenFD) and back with Close.
type Engine struct {
	ctx   context.Context
	h     *paths.Handle
	fd    int
	owned bool
	mode  engine.OpenMode
	maps  map[uintptr]mapping
}

var _ engine.Engine = (*Engine)(nil)

// New returns a closed engine for h. ctx is used for logging.
func New(ctx context.Context, h *paths.Handle) *Engine {
	return &Engine{ctx: ctx, h: h, fd: -1}
}

// OpenFD returns an engine for the already open descriptor fd. When owned
// is set, Close closes fd.
func OpenFD(ctx context.Context, fd int, mode engine.OpenMode, owned bool) *Engine {
	return &Engine{ctx: ctx, h: &paths.Handle{}, fd: fd, owned: owned, mode: mode}
}

// FD returns the open descriptor, or -1.
func (e *Engine) FD() int { return e.fd }

func (e *Engine) mustBeOpen() {
	if e.fd < 0 {
		panic("native: engine for " + e.h.Path() + " used before Open")
	}
}

func (e *Engine) err(op string, err error) error {
	return fserr.New(op, e.h.Path(), err)
}

// openFlags maps a logical mode to open(2) flags and the normalized mode.
func openFlags(mode engine.OpenMode) (int, engine.OpenMode, error) {
	if mode&(engine.Append|engine.NewOnly) != 0 {
		mode |= engine.WriteOnly
	}
	if mode&engine.WriteOnly != 0 && mode&(engine.ReadOnly|engine.Append|engine.NewOnly) == 0 {
		mode |= engine.Truncate
	}
	if mode&engine.NewOnly != 0 && mode&engine.ExistingOnly != 0 {
		return 0, mode, errors.New("new-only and existing-only are exclusive")
	}

	var flags int
	switch mode & engine.ReadWrite {
	case engine.ReadOnly:
		flags = os.O_RDONLY
	case engine.WriteOnly:
		flags = os.O_WRONLY
	case engine.ReadWrite:
		flags = os.O_RDWR
	default:
		return 0, mode, errors.New("neither read nor write requested")
	}
	if mode.CanWrite() {
		if mode&engine.ExistingOnly == 0 {
			flags |= os.O_CREATE
		}
		if mode&engine.NewOnly != 0 {
			flags |= os.O_EXCL
		}
		if mode&engine.Append != 0 {
			flags |= os.O_APPEND
		}
		if mode&engine.Truncate != 0 {
			flags |= os.O_TRUNC
		}
	}
	return flags, mode, nil
}

// Open opens the file. Append and new-only imply write, and write without
// read, append or new-only implies truncate. A directory can only be opened
// for writing, which the operating system then refuses.
func (e *Engine) Open(mode engine.OpenMode, perm fs.FileMode) error {
	if e.fd >= 0 {
		return fserr.Newf("open", e.h.Path(), fserr.InvalidArgument, "already open")
	}
	flags, mode, err := openFlags(mode)
	if err != nil {
		return fserr.Newf("open", e.h.Path(), fserr.InvalidArgument, "%s: %v", mode, err)
	}
	if perm == 0 {
		perm = defaultPerm
	}
	fd, err := nativefs.Open(e.h.NativePath(), flags, uint32(perm.Perm()))
	if err != nil {
		return e.err("open", err)
	}
	if !mode.CanWrite() {
		var c metadata.Cache
		if nativefs.FillMetaDataFd(fd, &c, metadata.DirectoryType) && c.IsDirectory() {
			_ = nativefs.Close(fd)
			return fserr.WithKind("open", e.h.Path(), fserr.IsADirectory)
		}
	}
	e.fd, e.owned, e.mode = fd, true, mode
	return nil
}

// Close unmaps any remaining mappings and closes the descriptor.
func (e *Engine) Close() error {
	if e.fd < 0 {
		return nil
	}
	e.unmapAll()
	var err error
	if e.owned {
		err = nativefs.Close(e.fd)
	}
	e.fd, e.owned, e.mode = -1, false, 0
	return e.err("close", err)
}

// Flush is a no-op: writes go straight to the descriptor.
func (e *Engine) Flush() error {
	e.mustBeOpen()
	return nil
}

func (e *Engine) Sync() error {
	e.mustBeOpen()
	return e.err("sync", nativefs.Sync(e.fd))
}

// Read reads into p. It returns io.EOF at end of file.
func (e *Engine) Read(p []byte) (int, error) {
	e.mustBeOpen()
	if len(p) == 0 {
		return 0, nil
	}
	n, err := nativefs.Read(e.fd, p)
	if err == io.EOF {
		return n, io.EOF
	}
	return n, e.err("read", err)
}

func (e *Engine) Write(p []byte) (int, error) {
	e.mustBeOpen()
	n, err := nativefs.Write(e.fd, p)
	return n, e.err("write", err)
}

func (e *Engine) Seek(pos int64) error {
	e.mustBeOpen()
	if pos < 0 {
		return fserr.Newf("seek", e.h.Path(), fserr.InvalidArgument, "negative position %d", pos)
	}
	_, err := nativefs.Seek(e.fd, pos, io.SeekStart)
	return e.err("seek", err)
}

func (e *Engine) stat(what metadata.Flags) *metadata.Cache {
	var c metadata.Cache
	if e.fd >= 0 && what&(metadata.LinkType|metadata.HiddenAttribute|metadata.UserPermissions|metadata.BirthTime) == 0 {
		if nativefs.FillMetaDataFd(e.fd, &c, what) {
			return &c
		}
	}
	if !e.h.IsEmpty() {
		nativefs.FillMetaData(e.h, &c, what)
	}
	return &c
}

// Size returns the current file size, from the descriptor when open.
func (e *Engine) Size() (int64, error) {
	c := e.stat(metadata.SizeAttribute | metadata.ExistsAttribute)
	if !c.HasFlags(metadata.SizeAttribute) {
		return 0, fserr.WithKind("stat", e.h.Path(), fserr.NotFound)
	}
	return c.Size(), nil
}

// Position returns the descriptor offset, or 0 when closed.
func (e *Engine) Position() int64 {
	if e.fd < 0 {
		return 0
	}
	pos, err := nativefs.Seek(e.fd, 0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos
}

// IsSequential reports whether the file is a pipe, socket or device.
func (e *Engine) IsSequential() bool {
	return e.stat(metadata.FileType | metadata.DirectoryType | metadata.SequentialType).IsSequential()
}

func (e *Engine) Remove() error { return nativefs.Remove(e.h) }

func (e *Engine) Rename(newName string) error {
	to := paths.FromPortable(newName)
	if err := nativefs.Rename(e.h, to); err != nil {
		return err
	}
	e.h = to
	return nil
}

func (e *Engine) RenameOverwrite(newName string) error {
	to := paths.FromPortable(newName)
	if err := nativefs.RenameOverwrite(e.h, to); err != nil {
		return err
	}
	e.h = to
	return nil
}

// Link creates a symlink named newName pointing at this engine's path.
func (e *Engine) Link(newName string) error {
	return nativefs.CreateLink(e.h, paths.FromPortable(newName))
}

func (e *Engine) Mkdir(name string, createParents bool, perm fs.FileMode) error {
	return nativefs.CreateDirectory(paths.FromPortable(name), createParents, perm)
}

func (e *Engine) Rmdir(name string, removeEmptyParents bool) error {
	return nativefs.RemoveDirectory(paths.FromPortable(name), removeEmptyParents)
}

func (e *Engine) SetSize(size int64) error {
	if size < 0 {
		return fserr.Newf("truncate", e.h.Path(), fserr.InvalidArgument, "negative size %d", size)
	}
	if e.fd >= 0 {
		return e.err("truncate", nativefs.Ftruncate(e.fd, size))
	}
	return nativefs.Truncate(e.h, size)
}

// EntryFlags returns the values of the requested flags.
func (e *Engine) EntryFlags(what metadata.Flags) metadata.Flags {
	return e.stat(what).Entry() & what
}

func (e *Engine) SetPermissions(perm metadata.Flags) error {
	if e.fd >= 0 {
		return e.err("chmod", nativefs.Fchmod(e.fd, nativefs.ModeFromPermissions(perm)))
	}
	return nativefs.SetPermissions(e.h, perm)
}

func (e *Engine) FileName(kind engine.NameKind) string {
	switch kind {
	case engine.BaseName:
		return e.h.FileName()
	case engine.PathName:
		return e.h.DirectoryPart()
	case engine.AbsoluteName:
		return nativefs.Absolute(e.h).Path()
	case engine.AbsolutePathName:
		return nativefs.Absolute(e.h).DirectoryPart()
	case engine.CanonicalName, engine.CanonicalPathName:
		c, err := nativefs.Canonical(e.ctx, e.h)
		if err != nil {
			return ""
		}
		if kind == engine.CanonicalPathName {
			return c.DirectoryPart()
		}
		return c.Path()
	case engine.LinkName:
		t, err := nativefs.LinkTarget(e.h)
		if err != nil {
			return ""
		}
		return t.Path()
	}
	return e.h.Path()
}

// SetFileName closes the engine and points it at name.
func (e *Engine) SetFileName(name string) {
	_ = e.Close()
	e.h = paths.FromPortable(name)
}

func (e *Engine) OwnerID(kind engine.OwnerKind) (uint32, error) {
	c := e.stat(metadata.OwnerIDs)
	if !c.HasFlags(metadata.OwnerIDs) {
		return 0, fserr.WithKind("stat", e.h.Path(), fserr.NotFound)
	}
	uid, gid := c.Owner()
	if kind == engine.OwnerGroup {
		return gid, nil
	}
	return uid, nil
}

func (e *Engine) OwnerName(kind engine.OwnerKind) string {
	id, err := e.OwnerID(kind)
	if err != nil {
		return ""
	}
	var name string
	if kind == engine.OwnerGroup {
		name, err = nativefs.GroupName(id)
	} else {
		name, err = nativefs.OwnerName(id)
	}
	if err != nil {
		return ""
	}
	return name
}

func (e *Engine) FileTime(kind metadata.FileTime) time.Time {
	return e.stat(kind.Flag()).Time(kind)
}

func (e *Engine) SetFileTime(t time.Time, kind metadata.FileTime) error {
	return nativefs.SetFileTime(e.h, t, kind)
}

// BeginIteration lists the directory this engine points at. Filtering is
// left to the caller; the iterator only honours the dot filters.
func (e *Engine) BeginIteration(filters engine.Filters, _ []string) (engine.Iterator, error) {
	dots := filters.OrDefault()&engine.NoDotAndDotDot != engine.NoDotAndDotDot
	return nativefs.OpenDir(e.h, dots)
}

func (e *Engine) EndIteration() error { return nil }

func (e *Engine) SupportsExtension(kind engine.ExtensionKind) bool {
	switch kind {
	case engine.MapExtension, engine.UnmapExtension, engine.FastReadLineExtension, engine.AtEndExtension:
		return true
	}
	return false
}

func (e *Engine) Extension(kind engine.ExtensionKind, in, out any) error {
	bad := func() error {
		return fserr.Newf(kind.String(), e.h.Path(), fserr.InvalidArgument, "unexpected arguments %T, %T", in, out)
	}
	switch kind {
	case engine.MapExtension:
		opts, ok := in.(*engine.MapOptions)
		res, rok := out.(*engine.MapResult)
		if !ok || !rok {
			return bad()
		}
		data, err := e.mmap(opts.Offset, opts.Size, opts.Private)
		if err != nil {
			return err
		}
		res.Data = data
		return nil
	case engine.UnmapExtension:
		opts, ok := in.(*engine.UnmapOptions)
		if !ok {
			return bad()
		}
		return e.unmap(opts.Data)
	case engine.FastReadLineExtension:
		p, ok := in.([]byte)
		n, nok := out.(*int)
		if !ok || !nok {
			return bad()
		}
		var err error
		*n, err = e.readLine(p)
		return err
	case engine.AtEndExtension:
		end, ok := out.(*bool)
		if !ok {
			return bad()
		}
		*end = e.atEnd()
		return nil
	}
	return fserr.WithKind(kind.String(), e.h.Path(), fserr.Unsupported)
}

// readLine reads one byte at a time so the descriptor offset never moves
// past the newline.
func (e *Engine) readLine(p []byte) (int, error) {
	e.mustBeOpen()
	if len(p) == 0 {
		panic("native: ReadLine needs a non-empty buffer")
	}
	n := 0
	for n < len(p) {
		m, err := nativefs.Read(e.fd, p[n:n+1])
		if err == io.EOF {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}
		if err != nil {
			return n, e.err("read", err)
		}
		n += m
		if p[n-1] == '\n' {
			break
		}
	}
	return n, nil
}

func (e *Engine) atEnd() bool {
	e.mustBeOpen()
	c := e.stat(metadata.SizeAttribute | metadata.SequentialType)
	if c.IsSequential() || !c.HasFlags(metadata.SizeAttribute) {
		return false
	}
	return e.Position() >= c.Size()
}
