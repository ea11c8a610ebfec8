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

package iofs_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/psanford/memfs"
	"github.com/stretchr/testify/require"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/iofs"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
	"chainguard.dev/enginefs/pkg/tarfs"
)

func memTree(t *testing.T) *memfs.FS {
	t.Helper()
	m := memfs.New()
	require.NoError(t, m.MkdirAll("docs/sub", 0o755))
	require.NoError(t, m.WriteFile("docs/a.txt", []byte("alpha\nbeta\n"), 0o644))
	require.NoError(t, m.WriteFile("docs/sub/b.txt", []byte("b"), 0o600))
	require.NoError(t, m.WriteFile("docs/.hidden", []byte("h"), 0o644))
	return m
}

var mtime = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func archive(t *testing.T) *tarfs.FS {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, hdr := range []*tar.Header{
		{Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: "bin/busybox", Typeflag: tar.TypeReg, Mode: 0o755, Size: 12},
		{Name: "bin/sh", Typeflag: tar.TypeSymlink, Linkname: "busybox", Mode: 0o777},
		{Name: "bin/gone", Typeflag: tar.TypeSymlink, Linkname: "missing", Mode: 0o777},
	} {
		hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname, hdr.ModTime = 65532, 65533, "nonroot", "nogroup", mtime
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte("#!busybox\nx\n"))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	fsys, err := tarfs.New(context.Background(), &buf)
	require.NoError(t, err)
	return fsys
}

func TestFactoryClaims(t *testing.T) {
	f := iofs.NewFactory("/mnt/docs/", memTree(t))
	require.Equal(t, "/mnt/docs", f.Mount())

	for _, p := range []string{"/mnt/docs", "/mnt/docs/a.txt", "/mnt/docs/sub/../a.txt"} {
		require.NotNil(t, f.Create(p), p)
	}
	for _, p := range []string{"/mnt", "/mnt/docsx", "/other/docs/a.txt", "/mnt/docs/../x"} {
		require.Nil(t, f.Create(p), p)
	}
	require.Equal(t, "/mnt/docs/a.txt", f.Create("/mnt/docs/sub/../a.txt").FileName(engine.DefaultName))
}

func TestReadOnly(t *testing.T) {
	f := iofs.NewFactory("/mnt", memTree(t))
	e := f.Create("/mnt/docs/a.txt")

	for _, err := range []error{
		e.Open(engine.WriteOnly, 0o644),
		e.Remove(),
		e.Rename("/mnt/docs/c.txt"),
		e.Mkdir("/mnt/new", false, 0o755),
		e.SetSize(0),
		e.SetPermissions(metadata.OwnerRead),
		e.SetFileTime(time.Now(), metadata.Modification),
	} {
		require.True(t, fserr.Is(err, fserr.PermissionDenied), "%v", err)
	}
	_, err := e.Write([]byte("x"))
	require.True(t, fserr.Is(err, fserr.PermissionDenied))

	require.True(t, fserr.Is(f.Create("/mnt/docs").Open(engine.ReadOnly, 0), fserr.IsADirectory))
	require.True(t, fserr.Is(f.Create("/mnt/docs/nope").Open(engine.ReadOnly, 0), fserr.NotFound))
}

func TestReadMemFS(t *testing.T) {
	e := iofs.NewFactory("/mnt", memTree(t)).Create("/mnt/docs/a.txt")
	require.NoError(t, e.Open(engine.ReadOnly, 0))
	defer e.Close()

	size, err := e.Size()
	require.NoError(t, err)
	require.Equal(t, int64(11), size)

	got, err := io.ReadAll(engineReader{e})
	require.NoError(t, err)
	require.Equal(t, "alpha\nbeta\n", string(got))
	require.Equal(t, int64(11), e.Position())

	n, err := e.Read(make([]byte, 4))
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)

	end, err := engine.AtEnd(e)
	require.NoError(t, err)
	require.True(t, end)

	_, err = engine.ReadLine(e, make([]byte, 8))
	require.True(t, fserr.Is(err, fserr.Unsupported))
}

type engineReader struct{ e engine.Engine }

func (r engineReader) Read(p []byte) (int, error) { return r.e.Read(p) }

func TestEntryFlags(t *testing.T) {
	f := iofs.NewFactory("/mnt", memTree(t))

	flags := f.Create("/mnt/docs/a.txt").EntryFlags(metadata.All)
	require.NotZero(t, flags&metadata.ExistsAttribute)
	require.NotZero(t, flags&metadata.FileType)
	require.NotZero(t, flags&metadata.UserRead)
	require.Zero(t, flags&metadata.UserWrite, "never writable")
	require.Zero(t, flags&metadata.LinkType)

	require.NotZero(t, f.Create("/mnt/docs/sub").EntryFlags(metadata.DirectoryType))
	require.NotZero(t, f.Create("/mnt/docs/.hidden").EntryFlags(metadata.HiddenAttribute))
	require.Zero(t, f.Create("/mnt/docs/none").EntryFlags(metadata.ExistsAttribute))
}

func TestArchiveLinksAndOwners(t *testing.T) {
	f := iofs.NewFactory("/image", archive(t))

	sh := f.Create("/image/bin/sh")
	flags := sh.EntryFlags(metadata.LinkType | metadata.FileType | metadata.ExistsAttribute)
	require.Equal(t, metadata.LinkType|metadata.FileType|metadata.ExistsAttribute, flags)
	require.Equal(t, "/image/bin/busybox", sh.FileName(engine.LinkName))
	require.Equal(t, "/image/bin/busybox", sh.FileName(engine.CanonicalName))
	require.Equal(t, "sh", sh.FileName(engine.BaseName))
	require.Equal(t, "/image/bin", sh.FileName(engine.PathName))

	gone := f.Create("/image/bin/gone")
	flags = gone.EntryFlags(metadata.LinkType | metadata.ExistsAttribute)
	require.Equal(t, metadata.LinkType, flags, "dangling link")
	require.Empty(t, gone.FileName(engine.CanonicalName))

	bb := f.Create("/image/bin/busybox")
	uid, err := bb.OwnerID(engine.OwnerUser)
	require.NoError(t, err)
	require.Equal(t, uint32(65532), uid)
	gid, err := bb.OwnerID(engine.OwnerGroup)
	require.NoError(t, err)
	require.Equal(t, uint32(65533), gid)
	require.Equal(t, "nonroot", bb.OwnerName(engine.OwnerUser))
	require.Equal(t, "nogroup", bb.OwnerName(engine.OwnerGroup))
	require.True(t, bb.FileTime(metadata.Modification).Equal(mtime))
	require.True(t, bb.FileTime(metadata.Access).IsZero())

	_, err = iofs.NewFactory("/m", memTree(t)).Create("/m/docs/a.txt").OwnerID(engine.OwnerUser)
	require.True(t, fserr.Is(err, fserr.Unsupported))
}

func TestArchiveNumericOwners(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range []struct {
		hdr  tar.Header
		body string
	}{
		{tar.Header{Name: "etc/passwd", Mode: 0o644}, "root:x:0:0:root:/root:/bin/sh\nnonroot:x:65532:65532::/home/nonroot:/bin/sh\n"},
		{tar.Header{Name: "etc/group", Mode: 0o644}, "root:x:0:\nnonroot:x:65532:\n"},
		{tar.Header{Name: "usr/share/app/data", Mode: 0o644, Uid: 65532, Gid: 65532}, "d"},
		{tar.Header{Name: "usr/share/app/odd", Mode: 0o644, Uid: 1000, Gid: 1000}, "o"},
	} {
		e.hdr.Typeflag, e.hdr.Size = tar.TypeReg, int64(len(e.body))
		require.NoError(t, tw.WriteHeader(&e.hdr))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	fsys, err := tarfs.New(context.Background(), &buf)
	require.NoError(t, err)

	data := iofs.NewFactory("/image", fsys).Create("/image/usr/share/app/data")
	require.Equal(t, "nonroot", data.OwnerName(engine.OwnerUser))
	require.Equal(t, "nonroot", data.OwnerName(engine.OwnerGroup))

	odd := iofs.NewFactory("/image", fsys).Create("/image/usr/share/app/odd")
	require.Empty(t, odd.OwnerName(engine.OwnerUser))

	sub, err := iofs.Sub("/app", fsys, "usr/share/app")
	require.NoError(t, err)
	require.Equal(t, "nonroot", sub.Create("/app/data").OwnerName(engine.OwnerUser), "sub mounts use the image's accounts")
}

func TestArchiveSeekAndMap(t *testing.T) {
	e := iofs.NewFactory("/image", archive(t)).Create("/image/bin/sh")
	require.False(t, e.SupportsExtension(engine.MapExtension), "not open")
	require.NoError(t, e.Open(engine.ReadOnly, 0))
	defer e.Close()

	require.NoError(t, e.Seek(2))
	buf := make([]byte, 7)
	_, err := io.ReadFull(engineReader{e}, buf)
	require.NoError(t, err)
	require.Equal(t, "busybox", string(buf))

	data, err := engine.Map(e, 10, 2, true)
	require.NoError(t, err)
	require.Equal(t, "x\n", string(data))
	require.NoError(t, engine.Unmap(e, data))

	_, err = engine.Map(e, 10, 100, false)
	require.True(t, fserr.Is(err, fserr.InvalidArgument))
	require.True(t, fserr.Is(e.Seek(-1), fserr.InvalidArgument))
}

func TestIteration(t *testing.T) {
	e := iofs.NewFactory("/mnt", memTree(t)).Create("/mnt/docs")
	it, err := e.BeginIteration(engine.DefaultFilters, nil)
	require.NoError(t, err)
	defer it.Close()
	require.Equal(t, "/mnt/docs", it.Path())

	var files, dirs []string
	for it.HasNext() {
		p := it.Next()
		info := it.CurrentInfo(metadata.Types | metadata.ExistsAttribute)
		require.True(t, info.Exists(), p)
		if info.IsDirectory() {
			dirs = append(dirs, it.CurrentName())
		} else {
			files = append(files, p)
		}
	}
	require.NoError(t, it.Err())
	sort.Strings(files)
	if diff := cmp.Diff([]string{"/mnt/docs/.hidden", "/mnt/docs/a.txt"}, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"sub"}, dirs)

	_, err = iofs.NewFactory("/mnt", memTree(t)).Create("/mnt/docs/a.txt").BeginIteration(engine.DefaultFilters, nil)
	require.Error(t, err)
}

func TestResolveThroughRegistry(t *testing.T) {
	reg := engine.NewRegistry()
	reg.Register(iofs.NewFactory("/image", archive(t)))
	roots := engine.NewSearchRoots()
	require.NoError(t, roots.Set("img", []string{"/nowhere", "/image/bin"}))
	r := &engine.Resolver{Registry: reg, Roots: roots}

	var c metadata.Cache
	h, e := r.Resolve(context.Background(), paths.FromPortable("img:busybox"), &c)
	require.NotNil(t, e)
	require.Equal(t, "/image/bin/busybox", h.Path())
	require.True(t, c.Exists())

	_, e = r.Resolve(context.Background(), paths.FromPortable("img:nothing"), &c)
	require.Nil(t, e)
	require.True(t, c.HasFlags(metadata.ExistsAttribute))
	require.False(t, c.Exists())
}

func TestSub(t *testing.T) {
	f, err := iofs.Sub("/docs", memTree(t), "docs")
	require.NoError(t, err)
	require.NotZero(t, f.Create("/docs/sub/b.txt").EntryFlags(metadata.FileType))

	_, err = iofs.Sub("/docs", memTree(t), "docs/a.txt")
	require.Error(t, err)
}
