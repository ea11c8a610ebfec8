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
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

func handle(elem ...string) *paths.Handle {
	return paths.FromNative(filepath.Join(elem...))
}

func TestFillMetaData(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".data")
	require.NoError(t, os.WriteFile(file, []byte("0123456789"), 0o640))

	var c metadata.Cache
	ok := FillMetaData(paths.FromNative(file), &c, metadata.ExistsAttribute|metadata.SizeAttribute|
		metadata.FileType|metadata.HiddenAttribute|metadata.LinkType|metadata.UserRead|metadata.ModifyTime)
	require.True(t, ok)
	require.True(t, c.Exists())
	require.True(t, c.IsFile())
	require.True(t, c.IsHidden())
	require.False(t, c.IsLink())
	require.True(t, c.HasFlags(metadata.UserRead))
	require.Equal(t, int64(10), c.Size())
	require.WithinDuration(t, time.Now(), c.Time(metadata.Modification), time.Minute)
	require.Equal(t, metadata.OwnerRead|metadata.OwnerWrite|metadata.GroupRead, c.Permissions()&metadata.PosixPermissions)

	var d metadata.Cache
	require.True(t, FillMetaData(paths.FromNative(dir), &d, metadata.DirectoryType|metadata.ExistsAttribute))
	require.True(t, d.IsDirectory())
	require.False(t, d.IsFile())
}

func TestFillMetaDataMissing(t *testing.T) {
	var c metadata.Cache
	c.SetSize(99)
	ok := FillMetaData(handle(t.TempDir(), "nope"), &c, metadata.ExistsAttribute|metadata.SizeAttribute)
	require.False(t, ok)
	require.True(t, c.HasFlags(metadata.ExistsAttribute))
	require.False(t, c.Exists())
	require.False(t, c.HasFlags(metadata.SizeAttribute))

	var e metadata.Cache
	require.False(t, FillMetaData(&paths.Handle{}, &e, metadata.ExistsAttribute))
	require.False(t, e.Exists())
}

func TestFillMetaDataDanglingLink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), link))

	var c metadata.Cache
	FillMetaData(paths.FromNative(link), &c, metadata.LinkType|metadata.ExistsAttribute|metadata.FileType)
	require.True(t, c.IsLink())
	require.True(t, c.HasFlags(metadata.ExistsAttribute))
	require.False(t, c.Exists())
}

func TestFillMetaDataFd(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0o600))
	fd, err := Open(file, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer Close(fd)

	var c metadata.Cache
	require.True(t, FillMetaDataFd(fd, &c, metadata.SizeAttribute|metadata.FileType))
	require.Equal(t, int64(3), c.Size())
	require.True(t, c.IsFile())
}

func TestCanonical(t *testing.T) {
	ctx := context.Background()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "real", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real", "sub", "f"), nil, 0o644))
	require.NoError(t, os.Symlink("real", filepath.Join(dir, "link")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real", "sub"), filepath.Join(dir, "abs")))

	want := filepath.ToSlash(filepath.Join(dir, "real", "sub", "f"))
	for _, in := range []string{
		filepath.Join(dir, "link", "sub", "f"),
		filepath.Join(dir, "abs", "f"),
		filepath.Join(dir, "link", "sub", "..", "sub", ".", "f"),
	} {
		got, err := Canonical(ctx, paths.FromNative(in))
		require.NoError(t, err, in)
		require.Equal(t, want, got.Path(), in)

		walked, err := CanonicalWalk(ctx, paths.FromNative(in))
		require.NoError(t, err, in)
		require.Equal(t, want, walked.Path(), in)
	}

	_, err = Canonical(ctx, handle(dir, "missing"))
	require.True(t, fserr.Is(err, fserr.NotFound), "%v", err)
	_, err = CanonicalWalk(ctx, handle(dir, "missing"))
	require.True(t, fserr.Is(err, fserr.NotFound), "%v", err)
}

func TestCanonicalCycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.Symlink("b", filepath.Join(dir, "a")))
	require.NoError(t, os.Symlink("a", filepath.Join(dir, "b")))
	require.NoError(t, os.Symlink("self/x", filepath.Join(dir, "self")))

	for _, name := range []string{"a", "b", "self"} {
		got, err := CanonicalWalk(ctx, handle(dir, name))
		require.Nil(t, got, name)
		require.True(t, fserr.Is(err, fserr.Loop), "%s: %v", name, err)

		got, err = Canonical(ctx, handle(dir, name))
		require.Nil(t, got, name)
		require.True(t, fserr.Is(err, fserr.Loop), "%s: %v", name, err)
	}
}

func TestAbsoluteAndLinkTarget(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, filepath.ToSlash(filepath.Join(wd, "x", "y")), Absolute(paths.FromPortable("x/./y")).Path())
	require.Equal(t, "/a/c", Absolute(paths.FromPortable("/a/b/../c")).Path())

	dir := t.TempDir()
	require.NoError(t, os.Symlink("../target", filepath.Join(dir, "l")))
	target, err := LinkTarget(handle(dir, "l"))
	require.NoError(t, err)
	require.Equal(t, filepath.ToSlash(filepath.Join(filepath.Dir(dir), "target")), target.Path())

	raw, err := ReadLink(handle(dir, "l"))
	require.NoError(t, err)
	require.Equal(t, "../target", raw.Path())
}

func TestCreateAndRemoveDirectory(t *testing.T) {
	dir := t.TempDir()
	deep := handle(dir, "a", "b", "c")

	err := CreateDirectory(deep, false, 0o755)
	require.True(t, fserr.Is(err, fserr.NotFound), "%v", err)

	require.NoError(t, CreateDirectory(deep, true, 0o755))
	require.DirExists(t, deep.NativePath())
	require.NoError(t, CreateDirectory(deep, true, 0o755), "existing directory is fine with parents")

	err = CreateDirectory(deep, false, 0o755)
	require.True(t, fserr.Is(err, fserr.AlreadyExists), "%v", err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), nil, 0o644))
	err = CreateDirectory(handle(dir, "file"), true, 0o755)
	require.True(t, fserr.Is(err, fserr.AlreadyExists), "%v", err)

	require.NoError(t, RemoveDirectory(deep, true))
	require.NoDirExists(t, filepath.Join(dir, "a"))
	require.DirExists(t, dir, "non-empty ancestor stays")
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	a, b := handle(dir, "a"), handle(dir, "b")
	require.NoError(t, os.WriteFile(a.NativePath(), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(b.NativePath(), []byte("B"), 0o644))

	err := Rename(a, b)
	require.True(t, fserr.Is(err, fserr.AlreadyExists), "%v", err)

	c := handle(dir, "c")
	require.NoError(t, Rename(a, c))
	require.NoFileExists(t, a.NativePath())

	require.NoError(t, RenameOverwrite(c, b))
	got, err := os.ReadFile(b.NativePath())
	require.NoError(t, err)
	require.Equal(t, "A", string(got))

	require.NoError(t, Remove(b))
	require.True(t, fserr.Is(Remove(b), fserr.NotFound))
}

func TestCopyAndLink(t *testing.T) {
	dir := t.TempDir()
	src := handle(dir, "src")
	require.NoError(t, os.WriteFile(src.NativePath(), []byte("payload"), 0o600))

	dst := handle(dir, "dst")
	require.NoError(t, Copy(src, dst))
	got, err := os.ReadFile(dst.NativePath())
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
	fi, err := os.Stat(dst.NativePath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.True(t, fserr.Is(Copy(src, dst), fserr.AlreadyExists))
	require.True(t, fserr.Is(Copy(paths.FromNative(dir), handle(dir, "d2")), fserr.IsADirectory))

	link := handle(dir, "ln")
	require.NoError(t, CreateLink(src, link))
	target, err := os.Readlink(link.NativePath())
	require.NoError(t, err)
	require.Equal(t, src.NativePath(), target)
}

func TestPermissionsAndTimes(t *testing.T) {
	file := handle(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file.NativePath(), nil, 0o644))

	require.NoError(t, SetPermissions(file, metadata.UserRead|metadata.UserWrite|metadata.UserExecute|metadata.OtherRead))
	fi, err := os.Stat(file.NativePath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o704), fi.Mode().Perm())

	when := time.Date(2020, 2, 2, 2, 2, 2, 0, time.UTC)
	require.NoError(t, SetFileTime(file, when, metadata.Modification))
	fi, err = os.Stat(file.NativePath())
	require.NoError(t, err)
	require.True(t, fi.ModTime().Equal(when))

	err = SetFileTime(file, when, metadata.Birth)
	require.True(t, fserr.Is(err, fserr.Unsupported))

	require.NoError(t, Truncate(file, 128))
	fi, err = os.Stat(file.NativePath())
	require.NoError(t, err)
	require.Equal(t, int64(128), fi.Size())
}

func TestDescriptorIO(t *testing.T) {
	file := filepath.Join(t.TempDir(), "io")
	fd, err := Open(file, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	require.NoError(t, err)
	defer Close(fd)

	n, err := Write(fd, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)

	pos, err := Seek(fd, 6, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	buf := make([]byte, 32)
	n, err = Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))

	n, err = Read(fd, buf)
	require.Equal(t, io.EOF, err)
	require.Zero(t, n)

	require.NoError(t, Ftruncate(fd, 5))
	require.NoError(t, Sync(fd))

	_, err = Open(file, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	require.True(t, fserr.Is(fserr.New("open", file, err), fserr.AlreadyExists))
}

func TestDirIterator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "link")))

	it, err := OpenDir(paths.FromNative(dir), true)
	require.NoError(t, err)
	defer it.Close()

	var names []string
	kinds := map[string]string{}
	for it.HasNext() {
		p := it.Next()
		require.Equal(t, it.CurrentPath(), p)
		name := it.CurrentName()
		names = append(names, name)
		info := it.CurrentInfo(metadata.FileType | metadata.DirectoryType | metadata.LinkType | metadata.HiddenAttribute | metadata.SizeAttribute)
		switch {
		case info.IsLink() && info.IsFile():
			kinds[name] = "link-to-file"
		case info.IsDirectory():
			kinds[name] = "dir"
		case info.IsFile():
			kinds[name] = "file"
		}
		if name == "a.txt" {
			require.Equal(t, int64(1), info.Size())
		}
		if name == ".hidden" {
			require.True(t, info.IsHidden())
		}
	}
	require.NoError(t, it.Err())
	sort.Strings(names)
	if diff := cmp.Diff([]string{".", "..", ".hidden", "a.txt", "link", "sub"}, names); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "link-to-file", kinds["link"])
	require.Equal(t, "dir", kinds["sub"])
	require.Equal(t, "dir", kinds["."])
	require.Equal(t, "file", kinds["a.txt"])
	require.Equal(t, dir, filepath.FromSlash(it.Path()))

	_, err = OpenDir(handle(dir, "a.txt"), false)
	require.True(t, fserr.Is(err, fserr.InvalidArgument))
	_, err = OpenDir(handle(dir, "missing"), false)
	require.True(t, fserr.Is(err, fserr.NotFound))
}
