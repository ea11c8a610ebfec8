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

package vfs

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/nativefs"
	"chainguard.dev/enginefs/pkg/paths"
)

// Info answers questions about one path. Answers are cached; each query
// fetches only the attributes it is missing.
type Info struct {
	ctx     context.Context
	h       *paths.Handle
	e       engine.Engine // nil for native paths
	stat    StatFunc
	meta    metadata.Cache
	caching bool
}

// Stat returns the Info for name. Nothing is read from disk until the
// first query, apart from what resolving search roots needs.
func Stat(ctx context.Context, name string, opts ...Option) *Info {
	o := newOptions(opts)
	i := &Info{ctx: ctx, stat: o.stat, caching: true}
	i.h, i.e = o.resolver.Resolve(ctx, paths.FromNative(name), &i.meta)
	return i
}

// Path returns the resolved path in portable form.
func (i *Info) Path() string { return i.h.Path() }

// Name returns the last path element.
func (i *Info) Name() string { return i.h.FileName() }

// Engine returns the custom engine serving the path, or nil.
func (i *Info) Engine() engine.Engine { return i.e }

// Refresh forgets everything cached.
func (i *Info) Refresh() { i.meta.Clear() }

// SetCaching turns caching off or on. Without caching every query goes
// back to the filesystem.
func (i *Info) SetCaching(enabled bool) {
	i.caching = enabled
	if !enabled {
		i.meta.Clear()
	}
}

func (i *Info) ensure(what metadata.Flags) *metadata.Cache {
	if !i.caching {
		i.meta.ClearFlags(what)
	}
	missing := i.meta.MissingFlags(what)
	if missing == 0 {
		return &i.meta
	}
	if i.e == nil {
		i.stat(i.h, &i.meta, missing)
		return &i.meta
	}

	flags := missing &^ (metadata.SizeAttribute | metadata.Times | metadata.OwnerIDs | metadata.SetUIDGIDStick)
	if flags != 0 {
		i.meta.Set(flags, i.e.EntryFlags(flags))
	}
	if missing&metadata.SizeAttribute != 0 {
		size, err := i.e.Size()
		if err != nil {
			clog.FromContext(i.ctx).Debugf("size of %s: %v", i.h.Path(), err)
		}
		i.meta.SetSize(size)
	}
	for _, kind := range []metadata.FileTime{metadata.Access, metadata.Birth, metadata.MetadataChange, metadata.Modification} {
		if missing&kind.Flag() != 0 {
			i.meta.SetTime(kind, i.e.FileTime(kind))
		}
	}
	if missing&metadata.OwnerIDs != 0 {
		uid, _ := i.e.OwnerID(engine.OwnerUser)
		gid, _ := i.e.OwnerID(engine.OwnerGroup)
		i.meta.SetOwner(uid, gid)
	}
	return &i.meta
}

func (i *Info) Exists() bool       { return i.ensure(metadata.ExistsAttribute).Exists() }
func (i *Info) IsFile() bool       { return i.ensure(metadata.FileType).IsFile() }
func (i *Info) IsDir() bool        { return i.ensure(metadata.DirectoryType).IsDirectory() }
func (i *Info) IsSymlink() bool    { return i.ensure(metadata.LinkType).IsLink() }
func (i *Info) IsHidden() bool     { return i.ensure(metadata.HiddenAttribute).IsHidden() }
func (i *Info) IsSequential() bool { return i.ensure(metadata.SequentialType).IsSequential() }

// Size returns the size in bytes, or 0 when unknown.
func (i *Info) Size() int64 {
	c := i.ensure(metadata.SizeAttribute | metadata.ExistsAttribute)
	if !c.Exists() {
		return 0
	}
	return c.Size()
}

// Permissions returns the POSIX permission bits together with what the
// current user may do.
func (i *Info) Permissions() metadata.Flags {
	return i.ensure(metadata.Permissions).Permissions()
}

// ModTime returns the modification time.
func (i *Info) ModTime() time.Time { return i.FileTime(metadata.Modification) }

// FileTime returns one timestamp, or the zero time when the filesystem does
// not record it.
func (i *Info) FileTime(kind metadata.FileTime) time.Time {
	return i.ensure(kind.Flag()).Time(kind)
}

// OwnerID returns the id of the owning user.
func (i *Info) OwnerID() uint32 {
	uid, _ := i.ensure(metadata.OwnerIDs).Owner()
	return uid
}

// GroupID returns the id of the owning group.
func (i *Info) GroupID() uint32 {
	_, gid := i.ensure(metadata.OwnerIDs).Owner()
	return gid
}

// Owner returns the name of the owning user, or "" when it cannot be found.
func (i *Info) Owner() string {
	if i.e != nil {
		return i.e.OwnerName(engine.OwnerUser)
	}
	if !i.Exists() {
		return ""
	}
	name, err := nativefs.OwnerName(i.OwnerID())
	if err != nil {
		return ""
	}
	return name
}

// Group returns the name of the owning group, or "" when it cannot be found.
func (i *Info) Group() string {
	if i.e != nil {
		return i.e.OwnerName(engine.OwnerGroup)
	}
	if !i.Exists() {
		return ""
	}
	name, err := nativefs.GroupName(i.GroupID())
	if err != nil {
		return ""
	}
	return name
}

// AbsolutePath returns the path made absolute, without resolving links.
func (i *Info) AbsolutePath() string {
	if i.e != nil {
		return i.e.FileName(engine.AbsoluteName)
	}
	return nativefs.Absolute(i.h).Path()
}

// CanonicalPath returns the absolute path with every link resolved, or ""
// when the path does not exist.
func (i *Info) CanonicalPath() string {
	if i.e != nil {
		return i.e.FileName(engine.CanonicalName)
	}
	c, err := nativefs.Canonical(i.ctx, i.h)
	if err != nil {
		clog.FromContext(i.ctx).Debugf("canonical path of %s: %v", i.h.Path(), err)
		return ""
	}
	return c.Path()
}

// SymlinkTarget returns the absolute target of a link, or "" when the path
// is not one.
func (i *Info) SymlinkTarget() string {
	if !i.IsSymlink() {
		return ""
	}
	if i.e != nil {
		return i.e.FileName(engine.LinkName)
	}
	target, err := nativefs.LinkTarget(i.h)
	if err != nil {
		return ""
	}
	return target.Path()
}
