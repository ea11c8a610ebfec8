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

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
)

// File is an open file served by whichever engine claims its path.
type File struct {
	name string
	e    engine.Engine
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// OpenFile opens name with mode. perm applies when the file is created.
func OpenFile(ctx context.Context, name string, mode engine.OpenMode, perm fs.FileMode, opts ...Option) (*File, error) {
	h, e := resolve(ctx, name, nil, opts)
	if err := e.Open(mode, perm); err != nil {
		return nil, err
	}
	return &File{name: h.Path(), e: e}, nil
}

// Open opens name for reading.
func Open(ctx context.Context, name string, opts ...Option) (*File, error) {
	return OpenFile(ctx, name, engine.ReadOnly, 0, opts...)
}

// Create creates or truncates name for writing.
func Create(ctx context.Context, name string, opts ...Option) (*File, error) {
	return OpenFile(ctx, name, engine.ReadWrite|engine.Truncate, 0o666, opts...)
}

// Name returns the resolved path of the file.
func (f *File) Name() string { return f.name }

// Engine returns the engine serving the file.
func (f *File) Engine() engine.Engine { return f.e }

func (f *File) Read(p []byte) (int, error)  { return f.e.Read(p) }
func (f *File) Write(p []byte) (int, error) { return f.e.Write(p) }

// Seek implements io.Seeker on top of the engine's absolute positioning.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.e.Position() + offset
	case io.SeekEnd:
		size, err := f.e.Size()
		if err != nil {
			return 0, err
		}
		pos = size + offset
	default:
		return 0, fserr.Newf("seek", f.name, fserr.InvalidArgument, "invalid whence %d", whence)
	}
	if err := f.e.Seek(pos); err != nil {
		return 0, err
	}
	return pos, nil
}

func (f *File) Close() error { return f.e.Close() }
func (f *File) Flush() error { return f.e.Flush() }
func (f *File) Sync() error  { return f.e.Sync() }

// Truncate changes the size of the file.
func (f *File) Truncate(size int64) error { return f.e.SetSize(size) }

// Size returns the current size of the file.
func (f *File) Size() (int64, error) { return f.e.Size() }

// Map maps size bytes of the file starting at offset. The mapping stays
// valid until Unmap or Close.
func (f *File) Map(offset, size int64, private bool) ([]byte, error) {
	return engine.Map(f.e, offset, size, private)
}

// Unmap releases a mapping returned by Map.
func (f *File) Unmap(data []byte) error { return engine.Unmap(f.e, data) }

// ReadLine reads up to and including the next newline into p. Engines
// without a fast path read one byte at a time through Read.
func (f *File) ReadLine(p []byte) (int, error) {
	if f.e.SupportsExtension(engine.FastReadLineExtension) {
		return engine.ReadLine(f.e, p)
	}
	if len(p) == 0 {
		panic("vfs: ReadLine with an empty buffer")
	}
	var n int
	for n < len(p) {
		m, err := f.e.Read(p[n : n+1])
		n += m
		if m > 0 && p[n-1] == '\n' {
			break
		}
		if err == io.EOF && n > 0 {
			break
		}
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.ErrNoProgress
		}
	}
	return n, nil
}

// AtEnd reports whether the read position is at the end of the file.
func (f *File) AtEnd() (bool, error) {
	if f.e.SupportsExtension(engine.AtEndExtension) {
		return engine.AtEnd(f.e)
	}
	size, err := f.e.Size()
	if err != nil {
		return false, err
	}
	return f.e.Position() >= size, nil
}

// Chmod changes the permission bits of the open file.
func (f *File) Chmod(perm metadata.Flags) error { return f.e.SetPermissions(perm) }
