// Copyright 2022, 2023 Chainguard, Inc.
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

// Package fs holds the io/fs extensions shared by the virtual engines.
package fs

import (
	"io/fs"
	"os"
	"path/filepath"
)

// ReadLinkFS is a filesystem that can report symlinks instead of following
// them.
type ReadLinkFS interface {
	fs.FS
	Readlink(name string) (string, error)
	Lstat(name string) (fs.FileInfo, error)
}

// BytesFile is an open file backed by an in-memory byte slice, which can
// be handed out without copying.
type BytesFile interface {
	fs.File
	Bytes() []byte
}

// DirFS returns a ReadLinkFS for the native directory dir.
func DirFS(dir string) ReadLinkFS {
	return &readLinkFS{
		FS:   os.DirFS(dir),
		base: dir,
	}
}

type readLinkFS struct {
	fs.FS
	base string
}

func (f *readLinkFS) path(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return filepath.Join(f.base, filepath.FromSlash(name)), nil
}

func (f *readLinkFS) Readlink(name string) (string, error) {
	full, err := f.path("readlink", name)
	if err != nil {
		return "", err
	}
	target, err := os.Readlink(full)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(target), nil
}

func (f *readLinkFS) Lstat(name string) (fs.FileInfo, error) {
	full, err := f.path("lstat", name)
	if err != nil {
		return nil, err
	}
	return os.Lstat(full)
}

// Stat implements fs.StatFS.
func (f *readLinkFS) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(f.FS, name)
}

// ReadDir implements fs.ReadDirFS.
func (f *readLinkFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(f.FS, name)
}
