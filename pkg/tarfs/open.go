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

package tarfs

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"go.opentelemetry.io/otel"

	"chainguard.dev/enginefs/pkg/limitio"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression identifies how an archive stream is compressed.
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

type options struct {
	parallelBlocks int
	maxSize        int64
}

// Option configures how an archive is read.
type Option func(*options)

// WithParallelGzip decompresses gzip archives with blocks concurrent
// workers. Worth it for large archives only.
func WithParallelGzip(blocks int) Option {
	return func(o *options) { o.parallelBlocks = blocks }
}

// WithMaxSize fails indexing once the uncompressed archive grows past n
// bytes. Archives are held in memory, so this bounds what a mount costs.
func WithMaxSize(n int64) Option {
	return func(o *options) { o.maxSize = n }
}

// Detect sniffs the compression of the stream behind br without consuming
// it.
func Detect(br *bufio.Reader) Compression {
	magic, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return Gzip
	case bytes.HasPrefix(magic, zstdMagic):
		return Zstd
	}
	return None
}

// New indexes the tar archive read from r, which may be plain, gzip or zstd
// compressed.
func New(ctx context.Context, r io.Reader, opts ...Option) (*FS, error) {
	_, span := otel.Tracer("enginefs").Start(ctx, "tarfs.New")
	defer span.End()

	o := options{maxSize: -1}
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReader(r)
	comp := Detect(br)
	clog.FromContext(ctx).Debugf("indexing %s archive", comp)

	var src io.Reader = br
	switch comp {
	case Gzip:
		if o.parallelBlocks > 1 {
			zr, err := pgzip.NewReaderN(br, 1<<20, o.parallelBlocks)
			if err != nil {
				return nil, fmt.Errorf("opening gzip stream: %w", err)
			}
			defer zr.Close()
			src = zr
		} else {
			zr, err := gzip.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("opening gzip stream: %w", err)
			}
			defer zr.Close()
			src = zr
		}
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}
	return index(tar.NewReader(limitio.NewReader(src, o.maxSize)))
}

// Open indexes the archive file at path.
func Open(ctx context.Context, path string, opts ...Option) (*FS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fsys, err := New(ctx, f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fsys, nil
}
