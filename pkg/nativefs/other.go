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

//go:build !unix

package nativefs

import (
	"io/fs"
	"os"
	"time"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

// Path based operations go through package os here. Raw descriptors are
// only available on Unix; the descriptor functions report fserr.Unsupported.

func FillMetaData(h *paths.Handle, c *metadata.Cache, what metadata.Flags) bool {
	path := h.NativePath()
	fi, err := os.Lstat(path)
	if err != nil {
		c.ClearFlags(what)
		c.Set(metadata.ExistsAttribute, 0)
		return false
	}
	c.FromFileInfo(fi, h.FileName(), false)
	if fi.Mode()&fs.ModeSymlink != 0 {
		if fi, err = os.Stat(path); err != nil {
			c.ClearFlags(what &^ (metadata.LinkType | metadata.HiddenAttribute))
			c.Set(metadata.ExistsAttribute, 0)
			return false
		}
		c.FromFileInfo(fi, h.FileName(), true)
	}
	if what&metadata.UserPermissions != 0 {
		perm := c.Entry() & metadata.OwnerPermissions
		c.Set(metadata.UserPermissions, perm>>4)
	}
	return c.HasFlags(what &^ (metadata.Times &^ metadata.ModifyTime) &^ metadata.OwnerIDs)
}

func FillMetaDataFd(int, *metadata.Cache, metadata.Flags) bool { return false }

func unsupported(op string) error { return fserr.WithKind(op, "", fserr.Unsupported) }

func Open(path string, _ int, _ uint32) (int, error) {
	return -1, fserr.WithKind("open", path, fserr.Unsupported)
}

func Read(int, []byte) (int, error)                    { return 0, unsupported("read") }
func Write(int, []byte) (int, error)                   { return 0, unsupported("write") }
func Seek(int, int64, int) (int64, error)              { return 0, unsupported("seek") }
func Close(int) error                                  { return unsupported("close") }
func Sync(int) error                                   { return unsupported("sync") }
func Ftruncate(int, int64) error                       { return unsupported("truncate") }
func Fchmod(int, os.FileMode) error                    { return unsupported("chmod") }
func PageSize() int64                                  { return int64(os.Getpagesize()) }
func Mmap(int, int64, int, bool, bool) ([]byte, error) { return nil, unsupported("mmap") }
func Munmap([]byte) error                              { return unsupported("munmap") }

func Rename(src, dst *paths.Handle) error {
	if _, err := os.Lstat(dst.NativePath()); err == nil {
		return fserr.WithKind("rename", dst.Path(), fserr.AlreadyExists)
	}
	return RenameOverwrite(src, dst)
}

func RenameOverwrite(src, dst *paths.Handle) error {
	return fserr.New("rename", src.Path(), unwrapError(os.Rename(src.NativePath(), dst.NativePath())))
}

func Remove(h *paths.Handle) error {
	return fserr.New("remove", h.Path(), unwrapError(os.Remove(h.NativePath())))
}

func CreateLink(target, link *paths.Handle) error {
	return fserr.New("symlink", link.Path(), unwrapError(os.Symlink(target.NativePath(), link.NativePath())))
}

func CreateDirectory(h *paths.Handle, parents bool, perm fs.FileMode) error {
	if parents {
		return fserr.New("mkdir", h.Path(), unwrapError(os.MkdirAll(h.NativePath(), perm)))
	}
	return fserr.New("mkdir", h.Path(), unwrapError(os.Mkdir(h.NativePath(), perm)))
}

func RemoveDirectory(h *paths.Handle, removeEmptyParents bool) error {
	if err := os.Remove(h.NativePath()); err != nil {
		return fserr.New("rmdir", h.Path(), unwrapError(err))
	}
	for p := paths.FromPortable(h.DirectoryPart()); removeEmptyParents && !p.IsRoot() && p.Path() != "."; p = paths.FromPortable(p.DirectoryPart()) {
		if os.Remove(p.NativePath()) != nil {
			break
		}
	}
	return nil
}

func ModeFromPermissions(perm metadata.Flags) fs.FileMode {
	user := perm & metadata.UserPermissions
	return metadata.PermToMode(perm|user<<4) & fs.ModePerm
}

func SetPermissions(h *paths.Handle, perm metadata.Flags) error {
	return fserr.New("chmod", h.Path(), unwrapError(os.Chmod(h.NativePath(), ModeFromPermissions(perm))))
}

func SetFileTime(h *paths.Handle, t time.Time, which metadata.FileTime) error {
	fi, err := os.Stat(h.NativePath())
	if err != nil {
		return fserr.New("utimes", h.Path(), unwrapError(err))
	}
	switch which {
	case metadata.Access:
		err = os.Chtimes(h.NativePath(), t, fi.ModTime())
	case metadata.Modification:
		err = os.Chtimes(h.NativePath(), time.Time{}, t)
	default:
		return fserr.Newf("utimes", h.Path(), fserr.Unsupported, "cannot set %s time", which)
	}
	return fserr.New("utimes", h.Path(), unwrapError(err))
}

func Truncate(h *paths.Handle, size int64) error {
	return fserr.New("truncate", h.Path(), unwrapError(os.Truncate(h.NativePath(), size)))
}
