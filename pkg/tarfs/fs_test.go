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

package tarfs_test

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/limitio"
	"chainguard.dev/enginefs/pkg/tarfs"
)

var mtime = time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

type entry struct {
	name     string
	typ      byte
	body     string
	linkname string
	mode     int64
}

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typ,
			Linkname: e.linkname,
			Mode:     mode,
			Size:     int64(len(e.body)),
			ModTime:  mtime,
			Uid:      1000,
			Gid:      1001,
			Uname:    "app",
			Gname:    "app",
		}
		if e.typ != tar.TypeReg {
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func plainEntries() []entry {
	return []entry{
		{name: "etc/", typ: tar.TypeDir, mode: 0o755},
		{name: "etc/os-release", typ: tar.TypeReg, body: "ID=wolfi\n"},
		{name: "usr/lib/libfoo.so.1", typ: tar.TypeReg, body: "ELF"},
		{name: "README", typ: tar.TypeReg, body: "hello"},
		{name: "empty", typ: tar.TypeReg},
	}
}

func linkEntries() []entry {
	return append(plainEntries(),
		entry{name: "usr/lib64", typ: tar.TypeSymlink, linkname: "lib"},
		entry{name: "usr/lib/libfoo.so", typ: tar.TypeSymlink, linkname: "libfoo.so.1"},
		entry{name: "abs", typ: tar.TypeSymlink, linkname: "/etc/os-release"},
		entry{name: "hard", typ: tar.TypeLink, linkname: "README"},
		entry{name: "loop1", typ: tar.TypeSymlink, linkname: "loop2"},
		entry{name: "loop2", typ: tar.TypeSymlink, linkname: "loop1"},
		entry{name: "dangling", typ: tar.TypeSymlink, linkname: "nowhere"},
	)
}

func TestFSConformance(t *testing.T) {
	fsys, err := tarfs.New(context.Background(), bytes.NewReader(buildTar(t, plainEntries())))
	require.NoError(t, err)
	require.NoError(t, fstest.TestFS(fsys, "etc/os-release", "usr/lib/libfoo.so.1", "README", "empty"))
}

func TestCompression(t *testing.T) {
	raw := buildTar(t, plainEntries())

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var pgz bytes.Buffer
	pw := pgzip.NewWriter(&pgz)
	_, err = pw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	for _, tc := range []struct {
		name string
		data []byte
		want tarfs.Compression
		opts []tarfs.Option
	}{
		{"plain", raw, tarfs.None, nil},
		{"gzip", gz.Bytes(), tarfs.Gzip, nil},
		{"parallel gzip", pgz.Bytes(), tarfs.Gzip, []tarfs.Option{tarfs.WithParallelGzip(4)}},
		{"zstd", zs.Bytes(), tarfs.Zstd, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tarfs.Detect(bufio.NewReader(bytes.NewReader(tc.data))))
			fsys, err := tarfs.New(context.Background(), bytes.NewReader(tc.data), tc.opts...)
			require.NoError(t, err)
			got, err := fsys.ReadFile("etc/os-release")
			require.NoError(t, err)
			require.Equal(t, "ID=wolfi\n", string(got))
		})
	}

	_, err = tarfs.New(context.Background(), bytes.NewReader(gz.Bytes()[:20]))
	require.Error(t, err, "truncated stream")
}

func TestSymlinks(t *testing.T) {
	fsys, err := tarfs.New(context.Background(), bytes.NewReader(buildTar(t, linkEntries())))
	require.NoError(t, err)

	for _, name := range []string{"usr/lib64/libfoo.so", "usr/lib/libfoo.so", "usr/lib64/libfoo.so.1"} {
		got, err := fsys.ReadFile(name)
		require.NoError(t, err, name)
		require.Equal(t, "ELF", string(got), name)
	}
	got, err := fsys.ReadFile("abs")
	require.NoError(t, err)
	require.Equal(t, "ID=wolfi\n", string(got))

	fi, err := fsys.Lstat("usr/lib64")
	require.NoError(t, err)
	require.Equal(t, fs.ModeSymlink, fi.Mode().Type())
	fi, err = fsys.Stat("usr/lib64")
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	target, err := fsys.Readlink("usr/lib/libfoo.so")
	require.NoError(t, err)
	require.Equal(t, "libfoo.so.1", target)
	_, err = fsys.Readlink("README")
	require.ErrorIs(t, err, fs.ErrInvalid)

	_, err = fsys.Stat("loop1")
	require.Error(t, err)
	require.False(t, errors.Is(err, fs.ErrNotExist), "a loop is not a missing file: %v", err)
	require.Equal(t, fserr.Loop, fserr.KindOf(err))
	_, err = fsys.Lstat("loop1")
	require.NoError(t, err)

	_, err = fsys.Stat("dangling")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.Lstat("dangling")
	require.NoError(t, err)

	hard, err := fsys.ReadFile("hard")
	require.NoError(t, err)
	require.Equal(t, "hello", string(hard))
}

func TestReadDirAndOwnership(t *testing.T) {
	fsys, err := tarfs.New(context.Background(), bytes.NewReader(buildTar(t, linkEntries())))
	require.NoError(t, err)

	ents, err := fsys.ReadDir("usr/lib")
	require.NoError(t, err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"libfoo.so", "libfoo.so.1"}, names); diff != "" {
		t.Errorf("ReadDir() mismatch (-want +got):\n%s", diff)
	}

	fi, err := fsys.Stat("etc/os-release")
	require.NoError(t, err)
	require.Equal(t, int64(9), fi.Size())
	require.True(t, fi.ModTime().Equal(mtime))
	hdr, ok := fi.Sys().(*tar.Header)
	require.True(t, ok)
	require.Equal(t, 1000, hdr.Uid)
	require.Equal(t, "app", hdr.Gname)

	_, err = fsys.ReadDir("README")
	require.Error(t, err)
	_, err = fsys.Open("../escape")
	require.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFileAccess(t *testing.T) {
	fsys, err := tarfs.New(context.Background(), bytes.NewReader(buildTar(t, plainEntries())))
	require.NoError(t, err)

	f, err := fsys.Open("etc/os-release")
	require.NoError(t, err)
	tf, ok := f.(*tarfs.File)
	require.True(t, ok)
	require.Equal(t, "ID=wolfi\n", string(tf.Bytes()))

	pos, err := tf.Seek(3, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(3), pos)
	rest, err := io.ReadAll(tf)
	require.NoError(t, err)
	require.Equal(t, "wolfi\n", string(rest))

	buf := make([]byte, 2)
	_, err = tf.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "ID", string(buf))

	require.NoError(t, tf.Close())
	_, err = tf.Read(buf)
	require.ErrorIs(t, err, fs.ErrClosed)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.tar")
	require.NoError(t, os.WriteFile(path, buildTar(t, plainEntries()), 0o644))
	fsys, err := tarfs.Open(context.Background(), path)
	require.NoError(t, err)
	_, err = fsys.Stat("README")
	require.NoError(t, err)

	_, err = tarfs.Open(context.Background(), filepath.Join(t.TempDir(), "missing.tar"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMaxSize(t *testing.T) {
	data := buildTar(t, plainEntries())

	_, err := tarfs.New(context.Background(), bytes.NewReader(data), tarfs.WithMaxSize(int64(len(data))))
	require.NoError(t, err)

	_, err = tarfs.New(context.Background(), bytes.NewReader(data), tarfs.WithMaxSize(512))
	var limitErr *limitio.SizeLimitExceededError
	require.ErrorAs(t, err, &limitErr)
}
