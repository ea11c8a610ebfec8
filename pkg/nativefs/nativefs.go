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

// Package nativefs wraps the host operating system's filesystem calls.
//
// The functions are stateless: they take a path handle (or a raw descriptor)
// and translate platform errors into *fserr.Error values. Higher layers use
// them directly for the native fast path and through the native engine.
package nativefs

import (
	"errors"
	"io"
	"os"
	"os/user"
	"strconv"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/paths"
)

// maxLinks is the maximum number of symlink substitutions while resolving a
// single path, matching Linux since 4.2, see path_resolution(7).
const maxLinks = 40

// Absolute returns h made absolute against the working directory and
// cleaned. Symlinks are not resolved.
func Absolute(h *paths.Handle) *paths.Handle {
	if h.IsAbsolute() {
		return paths.FromPortable(paths.Clean(h.Path()))
	}
	wd, err := os.Getwd()
	if err != nil {
		return h.Clone()
	}
	return paths.FromPortable(paths.Join(paths.FromNative(wd).Path(), h.Path()))
}

// ReadLink returns the raw target of the symlink h.
func ReadLink(h *paths.Handle) (*paths.Handle, error) {
	target, err := os.Readlink(h.NativePath())
	if err != nil {
		return nil, fserr.New("readlink", h.Path(), unwrapError(err))
	}
	return paths.FromNative(target), nil
}

// LinkTarget returns the absolute, cleaned target of the symlink h.
func LinkTarget(h *paths.Handle) (*paths.Handle, error) {
	target, err := ReadLink(h)
	if err != nil {
		return nil, err
	}
	if target.IsAbsolute() {
		return paths.FromPortable(paths.Clean(target.Path())), nil
	}
	dir := Absolute(h).DirectoryPart()
	return paths.FromPortable(paths.Join(dir, target.Path())), nil
}

// OwnerName looks up the name of a user id.
func OwnerName(uid uint32) (string, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// GroupName looks up the name of a group id.
func GroupName(gid uint32) (string, error) {
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return "", err
	}
	return g.Name, nil
}

// Copy copies the regular file src to the new file dst, keeping the
// permission bits. dst must not exist. Filesystems that support reflinks
// share the data blocks instead of copying them.
func Copy(src, dst *paths.Handle) (err error) {
	in, err := os.Open(src.NativePath())
	if err != nil {
		return fserr.New("copy", src.Path(), unwrapError(err))
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return fserr.New("copy", src.Path(), unwrapError(err))
	}
	if fi.IsDir() {
		return fserr.WithKind("copy", src.Path(), fserr.IsADirectory)
	}

	out, err := os.OpenFile(dst.NativePath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, fi.Mode().Perm())
	if err != nil {
		return fserr.New("copy", dst.Path(), unwrapError(err))
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fserr.New("copy", dst.Path(), unwrapError(cerr))
		}
		if err != nil {
			_ = os.Remove(dst.NativePath())
		}
	}()

	if cloneFile(out, in) {
		return nil
	}
	if _, err := io.Copy(out, in); err != nil {
		return fserr.New("copy", dst.Path(), unwrapError(err))
	}
	return nil
}

func unwrapError(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err
	}
	return err
}
