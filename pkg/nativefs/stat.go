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
	"io/fs"
	"time"

	"golang.org/x/sys/unix"

	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

// statResult is the platform neutral subset of a stat call.
type statResult struct {
	mode     uint32
	size     int64
	uid, gid uint32
	times    [4]time.Time
	known    metadata.Flags
}

func (r *statResult) isLink() bool { return r.mode&unix.S_IFMT == unix.S_IFLNK }

// apply records everything r answers except the link bit.
func (r *statResult) apply(c *metadata.Cache) {
	var entry metadata.Flags = metadata.ExistsAttribute
	entry |= metadata.ModeToPerm(fs.FileMode(r.mode & 0o777))
	switch r.mode & unix.S_IFMT {
	case unix.S_IFREG:
		entry |= metadata.FileType
	case unix.S_IFDIR:
		entry |= metadata.DirectoryType
	case unix.S_IFLNK:
	default:
		entry |= metadata.SequentialType
	}
	mask := metadata.PosixPermissions | metadata.ExistsAttribute |
		metadata.FileType | metadata.DirectoryType | metadata.SequentialType
	c.Set(mask, entry)
	c.SetSize(r.size)
	c.SetOwner(r.uid, r.gid)
	for i, t := range r.times {
		which := metadata.FileTime(i)
		if r.known&which.Flag() != 0 {
			c.SetTime(which, t)
		}
	}
	var special fs.FileMode
	if r.mode&unix.S_ISUID != 0 {
		special |= fs.ModeSetuid
	}
	if r.mode&unix.S_ISGID != 0 {
		special |= fs.ModeSetgid
	}
	if r.mode&unix.S_ISVTX != 0 {
		special |= fs.ModeSticky
	}
	c.SetSpecialBits(special)
}

// FillMetaData queries the filesystem for the flags in what and records the
// answers in c, issuing as few system calls as possible. LinkType is
// answered without following links, everything else follows them.
//
// On failure the requested flags are forgotten and existence is recorded as
// known and unset, so a missing file is not a hard error. The return value
// reports whether every requested flag is now known.
func FillMetaData(h *paths.Handle, c *metadata.Cache, what metadata.Flags) bool {
	path := h.NativePath()
	if path == "" {
		c.ClearFlags(what)
		c.Set(metadata.ExistsAttribute, 0)
		return false
	}

	needStat := what & (metadata.PosixStat &^ metadata.LinkType)
	if what&metadata.UserPermissions != 0 {
		needStat |= metadata.ExistsAttribute
	}
	linkKnown := false
	if what&metadata.LinkType != 0 {
		r, err := lstatPath(path)
		if err != nil {
			return fillFailed(c, what)
		}
		linkKnown = true
		if r.isLink() {
			c.Set(metadata.LinkType, metadata.LinkType)
		} else {
			c.Set(metadata.LinkType, 0)
			r.apply(c)
			needStat = 0
		}
	}
	if needStat != 0 {
		r, err := statPath(path)
		if err != nil {
			if linkKnown {
				// A dangling link: it exists as a link but not as a target.
				what &^= metadata.LinkType
			}
			fillHidden(h, c, what)
			return fillFailed(c, what&^metadata.HiddenAttribute)
		}
		r.apply(c)
	}
	fillHidden(h, c, what)
	if what&metadata.UserPermissions != 0 {
		fillAccess(path, c, what&metadata.UserPermissions)
	}
	return c.HasFlags(what)
}

// FillMetaDataFd is FillMetaData for an open descriptor. Link and hidden
// flags cannot be answered from a descriptor and are left untouched.
func FillMetaDataFd(fd int, c *metadata.Cache, what metadata.Flags) bool {
	r, err := fstatFd(fd)
	if err != nil {
		return fillFailed(c, what)
	}
	r.apply(c)
	return c.HasFlags(what &^ (metadata.LinkType | metadata.HiddenAttribute | metadata.UserPermissions | metadata.BirthTime))
}

func fillFailed(c *metadata.Cache, what metadata.Flags) bool {
	c.ClearFlags(what)
	c.Set(metadata.ExistsAttribute, 0)
	return false
}

func fillHidden(h *paths.Handle, c *metadata.Cache, what metadata.Flags) {
	if what&metadata.HiddenAttribute == 0 {
		return
	}
	var v metadata.Flags
	if name := h.FileName(); len(name) > 0 && name[0] == '.' {
		v = metadata.HiddenAttribute
	}
	c.Set(metadata.HiddenAttribute, v)
}

func fillAccess(path string, c *metadata.Cache, what metadata.Flags) {
	if !c.Exists() {
		c.Set(what, 0)
		return
	}
	var v metadata.Flags
	for _, a := range [...]struct {
		flag metadata.Flags
		mode uint32
	}{
		{metadata.UserRead, unix.R_OK},
		{metadata.UserWrite, unix.W_OK},
		{metadata.UserExecute, unix.X_OK},
	} {
		if what&a.flag != 0 && unix.Access(path, a.mode) == nil {
			v |= a.flag
		}
	}
	c.Set(what, v)
}
