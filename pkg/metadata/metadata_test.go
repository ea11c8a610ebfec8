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

package metadata

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMissingFlags(t *testing.T) {
	var c Cache
	require.Equal(t, ExistsAttribute|SizeAttribute, c.MissingFlags(ExistsAttribute|SizeAttribute))

	c.Set(ExistsAttribute, ExistsAttribute)
	require.Equal(t, SizeAttribute, c.MissingFlags(ExistsAttribute|SizeAttribute))
	require.True(t, c.HasFlags(ExistsAttribute))
	require.False(t, c.HasFlags(ExistsAttribute|SizeAttribute))

	c.SetSize(42)
	require.Zero(t, c.MissingFlags(ExistsAttribute|SizeAttribute))
	require.Equal(t, int64(42), c.Size())
}

func TestUnknownBitsAreNotReported(t *testing.T) {
	var c Cache
	// A value bit outside the mask stays invisible.
	c.Set(FileType, FileType|DirectoryType)
	require.True(t, c.IsFile())
	require.False(t, c.IsDirectory())
	require.Equal(t, FileType, c.Entry())
}

func TestKnownAbsence(t *testing.T) {
	var c Cache
	c.Set(ExistsAttribute, 0)
	require.True(t, c.HasFlags(ExistsAttribute))
	require.False(t, c.Exists())
}

func TestClear(t *testing.T) {
	var c Cache
	c.Set(All, ExistsAttribute|FileType)
	c.SetSize(10)
	c.SetOwner(1, 2)

	c.ClearFlags(FileType)
	require.False(t, c.HasFlags(FileType))
	require.True(t, c.Exists())

	c.Clear()
	require.Zero(t, c.Known())
	require.Zero(t, c.Size())
	uid, gid := c.Owner()
	require.Zero(t, uid)
	require.Zero(t, gid)
}

func TestCopyIsIndependent(t *testing.T) {
	var a Cache
	a.Set(ExistsAttribute, ExistsAttribute)
	b := a
	b.Clear()
	require.True(t, a.Exists())
	require.False(t, b.Exists())
}

func TestTimes(t *testing.T) {
	var c Cache
	now := time.Now()
	require.True(t, c.Time(Modification).IsZero())
	c.SetTime(Modification, now)
	require.Equal(t, now, c.Time(Modification))
	require.True(t, c.Time(Access).IsZero())
	require.Equal(t, ModifyTime, Modification.Flag())
	require.Equal(t, "birth", Birth.String())
}

func TestPermissionConversion(t *testing.T) {
	for _, m := range []fs.FileMode{0o755, 0o644, 0o600, 0o000, 0o777, 0o421} {
		require.Equal(t, m, PermToMode(ModeToPerm(m)))
	}
	require.Equal(t, OwnerRead|OwnerWrite|GroupRead|OtherRead, ModeToPerm(0o644))
}

func TestFromFileInfo(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".profile")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o640))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(file, link))

	fi, err := os.Lstat(file)
	require.NoError(t, err)
	var c Cache
	c.FromFileInfo(fi, fi.Name(), false)
	require.True(t, c.Exists())
	require.True(t, c.IsFile())
	require.True(t, c.IsHidden())
	require.True(t, c.HasFlags(LinkType))
	require.False(t, c.IsLink())
	require.Equal(t, int64(5), c.Size())
	require.Equal(t, fs.FileMode(0o640), c.Mode().Perm())

	li, err := os.Lstat(link)
	require.NoError(t, err)
	var l Cache
	l.FromFileInfo(li, li.Name(), false)
	require.True(t, l.IsLink())
	require.False(t, l.HasFlags(FileType), "target type is unknown without following")

	ti, err := os.Stat(link)
	require.NoError(t, err)
	l.FromFileInfo(ti, li.Name(), true)
	require.True(t, l.IsLink())
	require.True(t, l.IsFile())
}
