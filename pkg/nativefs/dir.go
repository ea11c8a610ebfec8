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

package nativefs

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

const dirBatch = 128

// DirIterator lists a native directory lazily, a batch of entries at a time.
// Entry types come from the directory listing itself; anything else is
// fetched with a stat call only when asked for.
type DirIterator struct {
	dir  *paths.Handle
	f    *os.File
	buf  []fs.DirEntry
	dots []string
	err  error
	eof  bool

	name  string
	path  *paths.Handle
	entry fs.DirEntry
	meta  metadata.Cache
}

// OpenDir starts listing dir. With dots the listing begins with the "." and
// ".." entries the operating system would report.
func OpenDir(dir *paths.Handle, dots bool) (*DirIterator, error) {
	f, err := os.Open(dir.NativePath())
	if err != nil {
		return nil, fserr.New("opendir", dir.Path(), unwrapError(err))
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fserr.New("opendir", dir.Path(), unwrapError(err))
	}
	if !fi.IsDir() {
		f.Close()
		return nil, fserr.Newf("opendir", dir.Path(), fserr.InvalidArgument, "not a directory")
	}
	it := &DirIterator{dir: dir, f: f}
	if dots {
		it.dots = []string{".", ".."}
	}
	return it, nil
}

// Path returns the directory being listed.
func (it *DirIterator) Path() string { return it.dir.Path() }

// HasNext reports whether Next will produce another entry.
func (it *DirIterator) HasNext() bool {
	if len(it.dots) > 0 || len(it.buf) > 0 {
		return true
	}
	if it.eof || it.f == nil {
		return false
	}
	ents, err := it.f.ReadDir(dirBatch)
	it.buf = ents
	if err != nil {
		it.eof = true
		if !errors.Is(err, io.EOF) {
			it.err = fserr.New("readdir", it.dir.Path(), unwrapError(err))
		}
	}
	return len(it.buf) > 0
}

// Next advances to the next entry and returns its path. It must only be
// called after HasNext reported true.
func (it *DirIterator) Next() string {
	if !it.HasNext() {
		panic("nativefs: Next called on exhausted directory iterator")
	}
	it.meta.Clear()
	it.entry = nil
	if len(it.dots) > 0 {
		it.name = it.dots[0]
		it.dots = it.dots[1:]
	} else {
		it.entry = it.buf[0]
		it.buf = it.buf[1:]
		it.name = it.entry.Name()
		it.fromDirEntry()
	}
	it.path = paths.FromPortable(joinSegment(it.dir.Path(), it.name))
	return it.path.Path()
}

func (it *DirIterator) fromDirEntry() {
	var hidden metadata.Flags
	if it.name[0] == '.' {
		hidden = metadata.HiddenAttribute
	}
	t := it.entry.Type()
	switch {
	case t&fs.ModeSymlink != 0:
		it.meta.Set(metadata.LinkType|metadata.HiddenAttribute, metadata.LinkType|hidden)
		return
	case t.IsDir():
		hidden |= metadata.DirectoryType
	case t.IsRegular():
		hidden |= metadata.FileType
	default:
		hidden |= metadata.SequentialType
	}
	it.meta.Set(metadata.LinkType|metadata.FileType|metadata.DirectoryType|metadata.SequentialType|
		metadata.HiddenAttribute|metadata.ExistsAttribute, hidden|metadata.ExistsAttribute)
}

// CurrentName returns the file name of the current entry.
func (it *DirIterator) CurrentName() string { return it.name }

// CurrentPath returns the full path of the current entry.
func (it *DirIterator) CurrentPath() string {
	if it.path == nil {
		return ""
	}
	return it.path.Path()
}

// CurrentInfo returns the metadata of the current entry with at least the
// flags in what filled in.
func (it *DirIterator) CurrentInfo(what metadata.Flags) *metadata.Cache {
	if missing := it.meta.MissingFlags(what); missing != 0 && it.path != nil {
		FillMetaData(it.path, &it.meta, missing)
	}
	return &it.meta
}

// Err returns the first error hit while reading the directory.
func (it *DirIterator) Err() error { return it.err }

// Close releases the directory descriptor.
func (it *DirIterator) Close() error {
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	it.buf = nil
	it.dots = nil
	return err
}
