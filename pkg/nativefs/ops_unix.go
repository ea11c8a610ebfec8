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

//go:build unix

package nativefs

import (
	"errors"
	"io/fs"
	"time"

	"golang.org/x/sys/unix"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

// Rename moves src to dst, failing with fserr.AlreadyExists if dst exists.
func Rename(src, dst *paths.Handle) error {
	s, d := src.NativePath(), dst.NativePath()
	err := renameNoReplace(s, d)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errors.ErrUnsupported) && !errors.Is(err, unix.EINVAL) {
		return fserr.New("rename", src.Path(), err)
	}

	// Hard link and unlink gives the same guarantee for regular files.
	switch err := unix.Link(s, d); {
	case err == nil:
		if err := unix.Unlink(s); err != nil {
			_ = unix.Unlink(d)
			return fserr.New("rename", src.Path(), err)
		}
		return nil
	case errors.Is(err, unix.EEXIST):
		return fserr.New("rename", dst.Path(), err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(d, &st); err == nil {
		return fserr.New("rename", dst.Path(), unix.EEXIST)
	}
	return RenameOverwrite(src, dst)
}

// RenameOverwrite moves src to dst, atomically replacing dst.
func RenameOverwrite(src, dst *paths.Handle) error {
	err := ignoringEINTR(func() error { return unix.Rename(src.NativePath(), dst.NativePath()) })
	return fserr.New("rename", src.Path(), err)
}

// Remove unlinks the file h.
func Remove(h *paths.Handle) error {
	return fserr.New("remove", h.Path(), unix.Unlink(h.NativePath()))
}

// CreateLink creates a symlink at link pointing to target.
func CreateLink(target, link *paths.Handle) error {
	return fserr.New("symlink", link.Path(), unix.Symlink(target.NativePath(), link.NativePath()))
}

// CreateDirectory creates h. With parents, missing ancestors are created and
// an existing directory is not an error.
func CreateDirectory(h *paths.Handle, parents bool, perm fs.FileMode) error {
	path := h.NativePath()
	err := unix.Mkdir(path, uint32(perm.Perm()))
	if err == nil || !parents {
		return fserr.New("mkdir", h.Path(), err)
	}

	switch {
	case errors.Is(err, unix.EEXIST):
		var c metadata.Cache
		if FillMetaData(h, &c, metadata.DirectoryType) && c.IsDirectory() {
			return nil
		}
		return fserr.New("mkdir", h.Path(), err)
	case errors.Is(err, unix.ENOENT):
		parent := paths.FromPortable(h.DirectoryPart())
		if parent.Path() == h.Path() || parent.Path() == "." {
			return fserr.New("mkdir", h.Path(), err)
		}
		if err := CreateDirectory(parent, true, perm); err != nil {
			return err
		}
		if err := unix.Mkdir(path, uint32(perm.Perm())); err != nil && !errors.Is(err, unix.EEXIST) {
			return fserr.New("mkdir", h.Path(), err)
		}
		return nil
	}
	return fserr.New("mkdir", h.Path(), err)
}

// RemoveDirectory removes the empty directory h. With removeEmptyParents,
// ancestors are removed too until one is not empty.
func RemoveDirectory(h *paths.Handle, removeEmptyParents bool) error {
	if err := unix.Rmdir(h.NativePath()); err != nil {
		return fserr.New("rmdir", h.Path(), err)
	}
	if !removeEmptyParents {
		return nil
	}
	for p := paths.FromPortable(h.DirectoryPart()); !p.IsRoot() && p.Path() != "."; p = paths.FromPortable(p.DirectoryPart()) {
		if unix.Rmdir(p.NativePath()) != nil {
			break
		}
	}
	return nil
}

// ModeFromPermissions converts permission flags to mode bits. User flags
// stand in for owner flags.
func ModeFromPermissions(perm metadata.Flags) fs.FileMode {
	user := perm & metadata.UserPermissions
	return metadata.PermToMode(perm|user<<4) & fs.ModePerm
}

// SetPermissions changes the permission bits of h.
func SetPermissions(h *paths.Handle, perm metadata.Flags) error {
	mode := ModeFromPermissions(perm)
	return fserr.New("chmod", h.Path(), ignoringEINTR(func() error {
		return unix.Chmod(h.NativePath(), uint32(mode))
	}))
}

// SetFileTime sets the access or modification time of h. Other timestamps
// cannot be set.
func SetFileTime(h *paths.Handle, t time.Time, which metadata.FileTime) error {
	omit := unix.Timespec{Nsec: unix.UTIME_OMIT}
	ts := []unix.Timespec{omit, omit}
	switch which {
	case metadata.Access:
		ts[0] = unix.NsecToTimespec(t.UnixNano())
	case metadata.Modification:
		ts[1] = unix.NsecToTimespec(t.UnixNano())
	default:
		return fserr.Newf("utimes", h.Path(), fserr.Unsupported, "cannot set %s time", which)
	}
	return fserr.New("utimes", h.Path(), unix.UtimesNanoAt(unix.AT_FDCWD, h.NativePath(), ts, 0))
}

// Truncate resizes the file h.
func Truncate(h *paths.Handle, size int64) error {
	return fserr.New("truncate", h.Path(), ignoringEINTR(func() error {
		return unix.Truncate(h.NativePath(), size)
	}))
}
