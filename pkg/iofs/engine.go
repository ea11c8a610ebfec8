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

// Package iofs serves any io/fs filesystem, such as an indexed archive,
// as a read-only engine mounted below a path prefix.
package iofs

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"chainguard.dev/enginefs/pkg/engine"
	apkfs "chainguard.dev/enginefs/pkg/fs"
	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/passwd"
	"chainguard.dev/enginefs/pkg/paths"
)

// Factory claims the mount path and everything below it.
type Factory struct {
	mount    string
	fsys     fs.FS
	accounts func() *passwd.Accounts
}

// NewFactory mounts fsys at mount, for example ":/assets".
func NewFactory(mount string, fsys fs.FS) *Factory {
	return &Factory{
		mount:    strings.TrimSuffix(paths.Clean(mount), "/"),
		fsys:     fsys,
		accounts: accountsOf(fsys),
	}
}

// accountsOf reads the account databases of fsys on first use. Images
// without readable ones name no owners.
func accountsOf(fsys fs.FS) func() *passwd.Accounts {
	return sync.OnceValue(func() *passwd.Accounts {
		a, err := passwd.ReadAccounts(fsys)
		if err != nil {
			return nil
		}
		return a
	})
}

// Mount returns the path prefix the factory claims.
func (f *Factory) Mount() string { return f.mount }

// relative maps a path below the mount to an fs.FS name.
func (f *Factory) relative(p string) (string, bool) {
	p = paths.Clean(p)
	if p == f.mount {
		return ".", true
	}
	rest, ok := strings.CutPrefix(p, f.mount+"/")
	if !ok || !fs.ValidPath(rest) {
		return "", false
	}
	return rest, true
}

// Create implements engine.Factory.
func (f *Factory) Create(p string) engine.Engine {
	name, ok := f.relative(p)
	if !ok {
		return nil
	}
	return &Engine{factory: f, name: name}
}

// Engine is a read-only engine for one entry of a mounted filesystem.
type Engine struct {
	engine.Base
	factory *Factory
	name    string

	file fs.File
	pos  int64
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) fullPath(name string) string {
	if name == "." {
		return e.factory.mount
	}
	return e.factory.mount + "/" + name
}

func (e *Engine) path() string { return e.fullPath(e.name) }

func (e *Engine) readOnly(op string) error {
	return fserr.Newf(op, e.path(), fserr.PermissionDenied, "read-only filesystem")
}

func (e *Engine) Open(mode engine.OpenMode, _ fs.FileMode) error {
	if e.file != nil {
		return fserr.Newf("open", e.path(), fserr.InvalidArgument, "already open")
	}
	if mode.CanWrite() {
		return e.readOnly("open")
	}
	if !mode.CanRead() {
		return fserr.Newf("open", e.path(), fserr.InvalidArgument, "%s", mode)
	}
	f, err := e.factory.fsys.Open(e.name)
	if err != nil {
		return fserr.New("open", e.path(), err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fserr.New("open", e.path(), err)
	}
	if fi.IsDir() {
		f.Close()
		return fserr.WithKind("open", e.path(), fserr.IsADirectory)
	}
	e.file, e.pos = f, 0
	return nil
}

func (e *Engine) Close() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return fserr.New("close", e.path(), err)
}

func (e *Engine) mustBeOpen() {
	if e.file == nil {
		panic("iofs: engine for " + e.path() + " used before Open")
	}
}

func (e *Engine) Read(p []byte) (int, error) {
	e.mustBeOpen()
	n, err := e.file.Read(p)
	e.pos += int64(n)
	if err == io.EOF {
		return n, io.EOF
	}
	return n, fserr.New("read", e.path(), err)
}

func (e *Engine) Write([]byte) (int, error) { return 0, e.readOnly("write") }

// Seek works when the underlying file is an io.Seeker; otherwise only the
// current position can be sought to.
func (e *Engine) Seek(pos int64) error {
	e.mustBeOpen()
	if pos < 0 {
		return fserr.Newf("seek", e.path(), fserr.InvalidArgument, "negative position %d", pos)
	}
	s, ok := e.file.(io.Seeker)
	if !ok {
		if pos == e.pos {
			return nil
		}
		return fserr.WithKind("seek", e.path(), fserr.Unsupported)
	}
	if _, err := s.Seek(pos, io.SeekStart); err != nil {
		return fserr.New("seek", e.path(), err)
	}
	e.pos = pos
	return nil
}

func (e *Engine) Position() int64 { return e.pos }

func (e *Engine) stat() (fs.FileInfo, error) {
	if e.file != nil {
		return e.file.Stat()
	}
	return fs.Stat(e.factory.fsys, e.name)
}

func (e *Engine) lstat() (fs.FileInfo, error) {
	if rl, ok := e.factory.fsys.(apkfs.ReadLinkFS); ok {
		return rl.Lstat(e.name)
	}
	return fs.Stat(e.factory.fsys, e.name)
}

func (e *Engine) Size() (int64, error) {
	fi, err := e.stat()
	if err != nil {
		return 0, fserr.New("stat", e.path(), err)
	}
	return fi.Size(), nil
}

func (e *Engine) Remove() error                         { return e.readOnly("remove") }
func (e *Engine) Rename(string) error                   { return e.readOnly("rename") }
func (e *Engine) RenameOverwrite(string) error          { return e.readOnly("rename") }
func (e *Engine) Link(string) error                     { return e.readOnly("link") }
func (e *Engine) Mkdir(string, bool, fs.FileMode) error { return e.readOnly("mkdir") }
func (e *Engine) Rmdir(string, bool) error              { return e.readOnly("rmdir") }
func (e *Engine) SetSize(int64) error                   { return e.readOnly("truncate") }
func (e *Engine) SetPermissions(metadata.Flags) error   { return e.readOnly("chmod") }

func (e *Engine) SetFileTime(time.Time, metadata.FileTime) error {
	return e.readOnly("utimes")
}

// fill records what the filesystem knows about name. Files are never
// writable here, whatever their mode says.
func fill(fsys fs.FS, name string, c *metadata.Cache, what metadata.Flags) {
	base := path.Base(name)
	fi, err := fs.Stat(fsys, name)
	rl, links := fsys.(apkfs.ReadLinkFS)
	if links && what&metadata.LinkType != 0 {
		if li, lerr := rl.Lstat(name); lerr == nil && li.Mode()&fs.ModeSymlink != 0 {
			c.FromFileInfo(li, base, false)
			if err != nil {
				c.Set(metadata.ExistsAttribute, 0)
				return
			}
			c.FromFileInfo(fi, base, true)
			userPerms(c)
			return
		}
	}
	if err != nil {
		c.ClearFlags(what)
		if links {
			c.Set(metadata.ExistsAttribute, 0)
		} else {
			c.Set(metadata.ExistsAttribute|metadata.LinkType, 0)
		}
		return
	}
	// Without a link query the result came from following, so the link
	// bit stays unknown on filesystems that have links.
	c.FromFileInfo(fi, base, links && what&metadata.LinkType == 0)
	userPerms(c)
}

func userPerms(c *metadata.Cache) {
	owner := c.Entry() & (metadata.OwnerRead | metadata.OwnerExecute)
	c.Set(metadata.UserPermissions, owner>>4)
}

// EntryFlags answers from the filesystem. Writes are never permitted.
func (e *Engine) EntryFlags(what metadata.Flags) metadata.Flags {
	var c metadata.Cache
	fill(e.factory.fsys, e.name, &c, what)
	return c.Entry() & what
}

func (e *Engine) FileName(kind engine.NameKind) string {
	switch kind {
	case engine.BaseName:
		return paths.FromPortable(e.path()).FileName()
	case engine.PathName, engine.AbsolutePathName:
		return paths.FromPortable(e.path()).DirectoryPart()
	case engine.CanonicalName, engine.CanonicalPathName:
		if _, err := fs.Stat(e.factory.fsys, e.name); err != nil {
			return ""
		}
		if target := e.FileName(engine.LinkName); target != "" {
			return target
		}
		if kind == engine.CanonicalPathName {
			return paths.FromPortable(e.path()).DirectoryPart()
		}
		return e.path()
	case engine.LinkName:
		rl, ok := e.factory.fsys.(apkfs.ReadLinkFS)
		if !ok {
			return ""
		}
		target, err := rl.Readlink(e.name)
		if err != nil {
			return ""
		}
		if path.IsAbs(target) {
			return e.fullPath(path.Clean(strings.TrimPrefix(target, "/")))
		}
		return e.fullPath(path.Join(path.Dir(e.name), target))
	}
	return e.path()
}

// SetFileName retargets the engine, which must stay below the same mount.
func (e *Engine) SetFileName(name string) {
	_ = e.Close()
	if rel, ok := e.factory.relative(name); ok {
		e.name = rel
	}
}

func (e *Engine) header() (*tar.Header, bool) {
	fi, err := e.lstat()
	if err != nil {
		return nil, false
	}
	hdr, ok := fi.Sys().(*tar.Header)
	return hdr, ok
}

// OwnerID is available when the filesystem reports *tar.Header values from
// FileInfo.Sys, as archives do.
func (e *Engine) OwnerID(kind engine.OwnerKind) (uint32, error) {
	hdr, ok := e.header()
	if !ok {
		return 0, fserr.WithKind("owner", e.path(), fserr.Unsupported)
	}
	if kind == engine.OwnerGroup {
		return uint32(hdr.Gid), nil
	}
	return uint32(hdr.Uid), nil
}

// OwnerName prefers the names recorded in the archive and falls back to
// the image's own etc/passwd and etc/group.
func (e *Engine) OwnerName(kind engine.OwnerKind) string {
	hdr, ok := e.header()
	if !ok {
		return ""
	}
	if kind == engine.OwnerGroup {
		if hdr.Gname != "" {
			return hdr.Gname
		}
		return e.factory.accounts().GroupName(uint32(hdr.Gid))
	}
	if hdr.Uname != "" {
		return hdr.Uname
	}
	return e.factory.accounts().UserName(uint32(hdr.Uid))
}

func (e *Engine) FileTime(kind metadata.FileTime) time.Time {
	if kind != metadata.Modification {
		return time.Time{}
	}
	fi, err := e.stat()
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func (e *Engine) BeginIteration(engine.Filters, []string) (engine.Iterator, error) {
	ents, err := fs.ReadDir(e.factory.fsys, e.name)
	if err != nil {
		return nil, fserr.New("readdir", e.path(), err)
	}
	return &dirIterator{fsys: e.factory.fsys, dir: e.name, path: e.path(), ents: ents}, nil
}

func (e *Engine) SupportsExtension(kind engine.ExtensionKind) bool {
	switch kind {
	case engine.AtEndExtension:
		return true
	case engine.MapExtension, engine.UnmapExtension:
		_, ok := e.file.(apkfs.BytesFile)
		return ok
	}
	return false
}

func (e *Engine) Extension(kind engine.ExtensionKind, in, out any) error {
	switch kind {
	case engine.AtEndExtension:
		end, ok := out.(*bool)
		if !ok {
			return fserr.Newf("at-end", e.path(), fserr.InvalidArgument, "unexpected output %T", out)
		}
		e.mustBeOpen()
		size, err := e.Size()
		if err != nil {
			return err
		}
		*end = e.pos >= size
		return nil
	case engine.MapExtension:
		e.mustBeOpen()
		bf, ok := e.file.(apkfs.BytesFile)
		if !ok {
			return fserr.WithKind("mmap", e.path(), fserr.Unsupported)
		}
		opts, ok := in.(*engine.MapOptions)
		res, rok := out.(*engine.MapResult)
		if !ok || !rok {
			return fserr.Newf("mmap", e.path(), fserr.InvalidArgument, "unexpected arguments %T, %T", in, out)
		}
		data := bf.Bytes()
		if opts.Offset < 0 || opts.Size <= 0 || opts.Offset > int64(len(data)) || opts.Size > int64(len(data))-opts.Offset {
			return fserr.Newf("mmap", e.path(), fserr.InvalidArgument, "bad range offset=%d size=%d", opts.Offset, opts.Size)
		}
		res.Data = data[opts.Offset : opts.Offset+opts.Size : opts.Offset+opts.Size]
		return nil
	case engine.UnmapExtension:
		// Mapped archive bytes are owned by the archive.
		return nil
	}
	return fserr.WithKind(kind.String(), e.path(), fserr.Unsupported)
}

type dirIterator struct {
	fsys fs.FS
	dir  string
	path string
	ents []fs.DirEntry
	next int

	cur  fs.DirEntry
	meta metadata.Cache
}

func (it *dirIterator) Path() string  { return it.path }
func (it *dirIterator) HasNext() bool { return it.next < len(it.ents) }

func (it *dirIterator) Next() string {
	if !it.HasNext() {
		panic("iofs: Next called on exhausted directory iterator")
	}
	it.cur = it.ents[it.next]
	it.next++
	it.meta.Clear()
	return it.CurrentPath()
}

func (it *dirIterator) CurrentName() string {
	if it.cur == nil {
		return ""
	}
	return it.cur.Name()
}

func (it *dirIterator) CurrentPath() string {
	if it.cur == nil {
		return ""
	}
	return it.path + "/" + it.cur.Name()
}

func (it *dirIterator) CurrentInfo(what metadata.Flags) *metadata.Cache {
	if it.cur != nil && it.meta.MissingFlags(what) != 0 {
		fill(it.fsys, path.Join(it.dir, it.cur.Name()), &it.meta, what|metadata.LinkType)
	}
	return &it.meta
}

func (it *dirIterator) Err() error { return nil }

func (it *dirIterator) Close() error {
	it.ents = nil
	it.cur = nil
	return nil
}

var errNotDir = errors.New("not a directory")

// Sub mounts the directory dir of fsys rather than its root.
func Sub(mount string, fsys fs.FS, dir string) (*Factory, error) {
	fi, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &fs.PathError{Op: "sub", Path: dir, Err: errNotDir}
	}
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	f := NewFactory(mount, sub)
	f.accounts = accountsOf(fsys)
	return f, nil
}
