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

package config_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"chainguard.dev/enginefs/pkg/config"
	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/limitio"
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/paths"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := write(t, dir, "enginefs.yaml", `
search-paths:
  data: [/srv/data, /opt/app/data]
archives:
  - mount: ":/assets"
    path: assets.tar.gz
    dir: share
    parallel-gzip: 4
directories:
  - mount: /mnt/etc
    path: /etc
`)
	cfg, err := config.Load(p)
	require.NoError(t, err)

	want := &config.Config{
		SearchPaths: map[string][]string{"data": {"/srv/data", "/opt/app/data"}},
		Archives: []config.Archive{{
			Mount:        ":/assets",
			Path:         filepath.Join(dir, "assets.tar.gz"),
			Dir:          "share",
			ParallelGzip: 4,
		}},
		Directories: []config.Directory{{Mount: "/mnt/etc", Path: "/etc"}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadINI(t *testing.T) {
	dir := t.TempDir()
	p := write(t, dir, "enginefs.ini", `
[search-paths]
data = /srv/data, /opt/app/data
icons = /usr/share/icons

[archives]
:/assets = assets.tar

[directories]
/mnt/etc = /etc
`)
	cfg, err := config.Load(p)
	require.NoError(t, err)

	want := &config.Config{
		SearchPaths: map[string][]string{
			"data":  {"/srv/data", "/opt/app/data"},
			"icons": {"/usr/share/icons"},
		},
		Archives:    []config.Archive{{Mount: ":/assets", Path: filepath.Join(dir, "assets.tar")}},
		Directories: []config.Directory{{Mount: "/mnt/etc", Path: "/etc"}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, config.ErrConfigNotFound)

	for name, content := range map[string]string{
		"bad.yaml":      "search-paths: [",
		"prefix.yaml":   "search-paths:\n  d: [/x]\n",
		"sep.yaml":      "search-paths:\n  a/b: [/x]\n",
		"archive.yaml":  "archives:\n  - mount: /x\n",
		"maxsize.yaml":  "archives:\n  - mount: /x\n    path: a.tar\n    max-size: -5\n",
		"negative.yaml": "archives:\n  - mount: /x\n    path: a.tar\n    parallel-gzip: -1\n",
		"dir.yaml":      "directories:\n  - path: /etc\n",
	} {
		_, err := config.Load(write(t, dir, name, content))
		require.Error(t, err, name)
		require.NotErrorIs(t, err, config.ErrConfigNotFound, name)
	}
}

func TestEnvOverlay(t *testing.T) {
	cfg := &config.Config{SearchPaths: map[string][]string{"data": {"/old"}, "keep": {"/k"}}}
	cfg.ApplyEnv([]string{
		"ENGINEFS_SEARCH_PATH_DATA=/a" + string(os.PathListSeparator) + "/b",
		"ENGINEFS_SEARCH_PATH_=ignored",
		"HOME=/root",
	})
	want := map[string][]string{"data": {"/a", "/b"}, "keep": {"/k"}}
	if diff := cmp.Diff(want, cfg.SearchPaths); diff != "" {
		t.Errorf("ApplyEnv() mismatch (-want +got):\n%s", diff)
	}

	p := write(t, t.TempDir(), ".env", "ENGINEFS_SEARCH_PATH_FONTS=/usr/share/fonts\nOTHER=x\n")
	require.NoError(t, cfg.ApplyEnvFile(p))
	require.Equal(t, []string{"/usr/share/fonts"}, cfg.SearchPaths["fonts"])
	_, set := os.LookupEnv("ENGINEFS_SEARCH_PATH_FONTS")
	require.False(t, set, "the process environment is untouched")

	require.Error(t, cfg.ApplyEnvFile(filepath.Join(t.TempDir(), "none.env")))
}

func gzipTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets.tar.gz"),
		gzipTar(t, map[string]string{"share/logo.svg": "<svg/>", "README": "r"}), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	write(t, filepath.Join(dir, "data"), "x.txt", "x")

	cfg := &config.Config{
		SearchPaths: map[string][]string{"data": {filepath.Join(dir, "data")}},
		Archives: []config.Archive{
			{Mount: "/assets", Path: filepath.Join(dir, "assets.tar.gz")},
			{Mount: "/share", Path: filepath.Join(dir, "assets.tar.gz"), Dir: "share", ParallelGzip: 2},
		},
		Directories: []config.Directory{{Mount: "/mnt/data", Path: filepath.Join(dir, "data")}},
	}
	roots := engine.NewSearchRoots()
	reg := engine.NewRegistry()
	factories, err := cfg.Apply(context.Background(), roots, reg)
	require.NoError(t, err)
	require.Len(t, factories, 3)
	require.Equal(t, 3, reg.Len())
	require.Equal(t, []string{"data"}, roots.Prefixes())

	for _, p := range []string{"/assets/README", "/assets/share/logo.svg", "/share/logo.svg", "/mnt/data/x.txt"} {
		e := reg.Create(p)
		require.NotNil(t, e, p)
		require.NotZero(t, e.EntryFlags(metadata.FileType), p)
	}

	r := &engine.Resolver{Registry: reg, Roots: roots}
	var c metadata.Cache
	h, e := r.Resolve(context.Background(), paths.FromPortable("data:x.txt"), &c)
	require.Nil(t, e)
	require.Equal(t, filepath.ToSlash(filepath.Join(dir, "data", "x.txt")), h.Path())
	require.True(t, c.Exists())

	for _, f := range factories {
		require.True(t, reg.Unregister(f))
	}
}

func TestApplyMissingArchive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.tar.gz"), gzipTar(t, map[string]string{"a": "a"}), 0o644))
	cfg := &config.Config{Archives: []config.Archive{
		{Mount: "/ok", Path: filepath.Join(dir, "ok.tar.gz")},
		{Mount: "/missing", Path: filepath.Join(dir, "missing.tar")},
	}}
	reg := engine.NewRegistry()
	_, err := cfg.Apply(context.Background(), engine.NewSearchRoots(), reg)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Zero(t, reg.Len(), "mounts registered before the failure are removed")

	cfg = &config.Config{Archives: []config.Archive{{Mount: "/ok", Path: filepath.Join(dir, "ok.tar.gz"), Dir: "a"}}}
	_, err = cfg.Apply(context.Background(), engine.NewSearchRoots(), reg)
	require.Error(t, err, "dir is a file")

	cfg = &config.Config{Archives: []config.Archive{{Mount: "/ok", Path: filepath.Join(dir, "ok.tar.gz"), MaxSize: 100}}}
	_, err = cfg.Apply(context.Background(), engine.NewSearchRoots(), reg)
	var limitErr *limitio.SizeLimitExceededError
	require.ErrorAs(t, err, &limitErr)
}
