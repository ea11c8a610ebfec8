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
	"io"
	"io/fs"
	"time"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

func withEngine(ctx context.Context, name string, opts []Option, fn func(h *paths.Handle, e engine.Engine) error) error {
	h, e := resolve(ctx, name, nil, opts)
	defer e.Close()
	return fn(h, e)
}

// target resolves a destination path the same way sources are resolved,
// so search root prefixes work on both sides.
func target(ctx context.Context, name string, opts []Option) string {
	o := newOptions(opts)
	h, e := o.resolver.Resolve(ctx, paths.FromNative(name), nil)
	if e != nil {
		_ = e.Close()
	}
	return h.Path()
}

// Remove removes the file name.
func Remove(ctx context.Context, name string, opts ...Option) error {
	return withEngine(ctx, name, opts, func(_ *paths.Handle, e engine.Engine) error {
		return e.Remove()
	})
}

// Rename renames oldName to newName, failing if newName exists.
func Rename(ctx context.Context, oldName, newName string, opts ...Option) error {
	to := target(ctx, newName, opts)
	return withEngine(ctx, oldName, opts, func(_ *paths.Handle, e engine.Engine) error {
		return e.Rename(to)
	})
}

// RenameOverwrite renames oldName to newName, replacing newName.
func RenameOverwrite(ctx context.Context, oldName, newName string, opts ...Option) error {
	to := target(ctx, newName, opts)
	return withEngine(ctx, oldName, opts, func(_ *paths.Handle, e engine.Engine) error {
		return e.RenameOverwrite(to)
	})
}

// Symlink creates link as a symbolic link to target.
func Symlink(ctx context.Context, targetName, link string, opts ...Option) error {
	to := target(ctx, link, opts)
	return withEngine(ctx, targetName, opts, func(_ *paths.Handle, e engine.Engine) error {
		return e.Link(to)
	})
}

// Mkdir creates the directory name, and its missing parents if parents is
// set.
func Mkdir(ctx context.Context, name string, parents bool, perm fs.FileMode, opts ...Option) error {
	return withEngine(ctx, name, opts, func(h *paths.Handle, e engine.Engine) error {
		return e.Mkdir(h.Path(), parents, perm)
	})
}

// Rmdir removes the empty directory name. With removeEmptyParents it then
// removes each parent that became empty.
func Rmdir(ctx context.Context, name string, removeEmptyParents bool, opts ...Option) error {
	return withEngine(ctx, name, opts, func(h *paths.Handle, e engine.Engine) error {
		return e.Rmdir(h.Path(), removeEmptyParents)
	})
}

// Chmod sets the permission bits of name.
func Chmod(ctx context.Context, name string, perm metadata.Flags, opts ...Option) error {
	return withEngine(ctx, name, opts, func(_ *paths.Handle, e engine.Engine) error {
		return e.SetPermissions(perm)
	})
}

// Chtimes sets one timestamp of name.
func Chtimes(ctx context.Context, name string, t time.Time, kind metadata.FileTime, opts ...Option) error {
	return withEngine(ctx, name, opts, func(_ *paths.Handle, e engine.Engine) error {
		return e.SetFileTime(t, kind)
	})
}

// Copy copies the file src to dst, which must not exist. Works across
// engines, for example to extract a file out of an archive mount.
func Copy(ctx context.Context, src, dst string, opts ...Option) (err error) {
	in, err := Open(ctx, src, opts...)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := OpenFile(ctx, dst, engine.WriteOnly|engine.NewOnly, 0o644, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fserr.New("copy", out.Name(), err)
	}
	return nil
}
