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

// Package tarfs indexes a tar archive into a read-only in-memory
// filesystem.
package tarfs

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	apkfs "chainguard.dev/enginefs/pkg/fs"
	"chainguard.dev/enginefs/pkg/fserr"
)

const (
	pathSep = "/"
	// maxLinks maximum permitted depths of symlinks, to prevent infinite recursion
	// matches what Linux kernel does from 4.2 onwards, see https://man7.org/linux/man-pages/man7/path_resolution.7.html
	maxLinks = 40
)

var errTooManyLinks = fserr.Newf("resolve", "", fserr.Loop, "maximum symlink depth exceeded")

// FS is an immutable filesystem built from a tar archive. It is safe for
// concurrent use.
type FS struct {
	tree *node
}

var (
	_ fs.StatFS        = (*FS)(nil)
	_ fs.ReadDirFS     = (*FS)(nil)
	_ fs.ReadFileFS    = (*FS)(nil)
	_ apkfs.ReadLinkFS = (*FS)(nil)
)

type node struct {
	name       string
	mode       fs.FileMode
	uid, gid   int
	uname      string
	gname      string
	modTime    time.Time
	linkTarget string
	data       []byte
	children   map[string]*node
}

func newDir(name string, mode fs.FileMode) *node {
	return &node{
		name:     name,
		mode:     fs.ModeDir | mode.Perm(),
		children: map[string]*node{},
	}
}

func (n *node) isDir() bool     { return n.mode.IsDir() }
func (n *node) isSymlink() bool { return n.mode&fs.ModeSymlink != 0 }

// index reads every entry of tr into a fresh tree.
func index(tr *tar.Reader) (*FS, error) {
	m := &FS{tree: newDir("/", 0o755)}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return m, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}
		if err := m.add(hdr, tr); err != nil {
			return nil, fmt.Errorf("indexing %q: %w", hdr.Name, err)
		}
	}
}

func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean(pathSep+name), pathSep)
}

func (m *FS) add(hdr *tar.Header, r io.Reader) error {
	name := cleanName(hdr.Name)
	n := &node{
		name:    path.Base(name),
		mode:    hdr.FileInfo().Mode(),
		uid:     hdr.Uid,
		gid:     hdr.Gid,
		uname:   hdr.Uname,
		gname:   hdr.Gname,
		modTime: hdr.ModTime,
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if name == "" {
			m.tree.mode = fs.ModeDir | n.mode.Perm()
			m.tree.uid, m.tree.gid, m.tree.modTime = n.uid, n.gid, n.modTime
			return nil
		}
		parent, err := m.mkdirAll(path.Dir(name))
		if err != nil {
			return err
		}
		if existing, ok := parent.children[n.name]; ok && existing.isDir() {
			existing.mode = n.mode
			existing.uid, existing.gid, existing.modTime = n.uid, n.gid, n.modTime
			return nil
		}
		n.children = map[string]*node{}
		parent.children[n.name] = n
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // old archives still use TypeRegA
		data, err := io.ReadAll(io.LimitReader(r, hdr.Size))
		if err != nil {
			return err
		}
		n.data = data
		return m.put(name, n)
	case tar.TypeSymlink:
		n.linkTarget = hdr.Linkname
		return m.put(name, n)
	case tar.TypeLink:
		target, err := m.getNodeCountLinks(cleanName(hdr.Linkname), true, 0)
		if err != nil {
			return fmt.Errorf("hard link to %q: %w", hdr.Linkname, err)
		}
		return m.put(name, target)
	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		return m.put(name, n)
	}
	// Extended headers and other metadata-only entries carry no file.
	return nil
}

func (m *FS) put(name string, n *node) error {
	if name == "" {
		return fmt.Errorf("cannot replace the root")
	}
	parent, err := m.mkdirAll(path.Dir(name))
	if err != nil {
		return err
	}
	parent.children[path.Base(name)] = n
	return nil
}

// mkdirAll returns the directory node for dir, creating missing
// directories. Symlinks to directories are followed.
func (m *FS) mkdirAll(dir string) (*node, error) {
	if dir == "." || dir == "" {
		return m.tree, nil
	}
	anode := m.tree
	traversed := make([]string, 0)
	for _, part := range strings.Split(dir, pathSep) {
		if part == "" {
			continue
		}
		next, ok := anode.children[part]
		if !ok {
			next = newDir(part, 0o755)
			anode.children[part] = next
		}
		if next.isSymlink() {
			target, err := m.getNodeCountLinks(m.resolveLink(traversed, next.linkTarget), true, 1)
			if err != nil {
				return nil, err
			}
			next = target
		}
		if !next.isDir() {
			return nil, fmt.Errorf("%s: path is not a directory", dir)
		}
		anode = next
		traversed = append(traversed, part)
	}
	return anode, nil
}

// resolveLink turns a link target into a path relative to the archive root.
// Relative targets are taken relative to the directory holding the link.
func (m *FS) resolveLink(traversed []string, target string) string {
	if path.IsAbs(target) {
		return cleanName(target)
	}
	return cleanName(path.Join(strings.Join(traversed, pathSep), target))
}

// getNodeCountLinks walks to name. Symlinks in the middle of the path are
// always followed; the final element only with followLast.
func (m *FS) getNodeCountLinks(name string, followLast bool, linkDepth int) (*node, error) {
	if name == "" || name == "." {
		return m.tree, nil
	}
	parts := strings.Split(name, pathSep)
	anode := m.tree
	traversed := make([]string, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			continue
		}
		if !anode.isDir() {
			return nil, fs.ErrNotExist
		}
		child, ok := anode.children[part]
		if !ok {
			return nil, fs.ErrNotExist
		}
		last := i == len(parts)-1
		if child.isSymlink() && (!last || followLast) {
			newDepth := linkDepth + 1
			if newDepth > maxLinks {
				return nil, errTooManyLinks
			}
			target, err := m.getNodeCountLinks(m.resolveLink(traversed, child.linkTarget), true, newDepth)
			if err != nil {
				return nil, err
			}
			child = target
		}
		anode = child
		traversed = append(traversed, part)
	}
	return anode, nil
}

func (m *FS) lookup(op, name string, followLast bool) (*node, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	n, err := m.getNodeCountLinks(name, followLast, 0)
	if err != nil {
		return nil, &fs.PathError{Op: op, Path: name, Err: err}
	}
	return n, nil
}

// Open implements fs.FS.
func (m *FS) Open(name string) (fs.File, error) {
	n, err := m.lookup("open", name, true)
	if err != nil {
		return nil, err
	}
	if n.isDir() {
		return &dirFile{node: n, name: name}, nil
	}
	return &File{node: n, name: name, r: bytes.NewReader(n.data)}, nil
}

// Stat implements fs.StatFS.
func (m *FS) Stat(name string) (fs.FileInfo, error) {
	n, err := m.lookup("stat", name, true)
	if err != nil {
		return nil, err
	}
	return n.fileInfo(path.Base(name)), nil
}

// Lstat is Stat without following a final symlink.
func (m *FS) Lstat(name string) (fs.FileInfo, error) {
	n, err := m.lookup("lstat", name, false)
	if err != nil {
		return nil, err
	}
	return n.fileInfo(path.Base(name)), nil
}

// Readlink returns the target of the symlink name as stored in the archive.
func (m *FS) Readlink(name string) (string, error) {
	n, err := m.lookup("readlink", name, false)
	if err != nil {
		return "", err
	}
	if !n.isSymlink() {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}
	return n.linkTarget, nil
}

// ReadFile implements fs.ReadFileFS.
func (m *FS) ReadFile(name string) ([]byte, error) {
	n, err := m.lookup("read", name, true)
	if err != nil {
		return nil, err
	}
	if n.isDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: errors.New("is a directory")}
	}
	return bytes.Clone(n.data), nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (m *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	n, err := m.lookup("readdir", name, true)
	if err != nil {
		return nil, err
	}
	if !n.isDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not a directory")}
	}
	return n.entries(), nil
}

func (n *node) entries() []fs.DirEntry {
	de := make([]fs.DirEntry, 0, len(n.children))
	for name, child := range n.children {
		de = append(de, fs.FileInfoToDirEntry(child.fileInfo(name)))
	}
	// we need them in a consistent order, so sort them by filename, which is what os.ReadDir() does
	sort.Slice(de, func(i, j int) bool {
		return de[i].Name() < de[j].Name()
	})
	return de
}

// File is an open regular file of an archive.
type File struct {
	node *node
	name string
	r    *bytes.Reader
}

var (
	_ io.ReaderAt     = (*File)(nil)
	_ io.Seeker       = (*File)(nil)
	_ apkfs.BytesFile = (*File)(nil)
)

func (f *File) Stat() (fs.FileInfo, error) {
	if f.r == nil {
		return nil, fs.ErrClosed
	}
	return f.node.fileInfo(path.Base(f.name)), nil
}

func (f *File) Read(b []byte) (int, error) {
	if f.r == nil {
		return 0, fs.ErrClosed
	}
	return f.r.Read(b)
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.r == nil {
		return 0, fs.ErrClosed
	}
	return f.r.ReadAt(p, off)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.r == nil {
		return 0, fs.ErrClosed
	}
	return f.r.Seek(offset, whence)
}

// Bytes returns the file contents. The slice must not be modified.
func (f *File) Bytes() []byte { return f.node.data }

func (f *File) Close() error {
	if f.r == nil {
		return fs.ErrClosed
	}
	f.r = nil
	return nil
}

type dirFile struct {
	node    *node
	name    string
	entries []fs.DirEntry
	read    bool
	closed  bool
}

func (d *dirFile) Stat() (fs.FileInfo, error) {
	return d.node.fileInfo(path.Base(d.name)), nil
}

func (d *dirFile) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: errors.New("is a directory")}
}

func (d *dirFile) ReadDir(count int) ([]fs.DirEntry, error) {
	if d.closed {
		return nil, fs.ErrClosed
	}
	if !d.read {
		d.entries, d.read = d.node.entries(), true
	}
	if count <= 0 {
		all := d.entries
		d.entries = nil
		return all, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	count = min(count, len(d.entries))
	batch := d.entries[:count]
	d.entries = d.entries[count:]
	return batch, nil
}

func (d *dirFile) Close() error {
	d.closed = true
	return nil
}

func (n *node) fileInfo(name string) fs.FileInfo {
	return &memFileInfo{node: n, name: name}
}

type memFileInfo struct {
	*node
	name string
}

func (m *memFileInfo) Name() string {
	return m.name
}

func (m *memFileInfo) Size() int64 {
	return int64(len(m.data))
}

func (m *memFileInfo) Mode() fs.FileMode {
	return m.mode
}

func (m *memFileInfo) ModTime() time.Time {
	return m.modTime
}

func (m *memFileInfo) IsDir() bool {
	return m.isDir()
}

// Sys returns the entry's *tar.Header, carrying ownership.
func (m *memFileInfo) Sys() any {
	return &tar.Header{
		Name:     m.name,
		Mode:     int64(m.mode.Perm()),
		Uid:      m.uid,
		Gid:      m.gid,
		Uname:    m.uname,
		Gname:    m.gname,
		ModTime:  m.modTime,
		Linkname: m.linkTarget,
	}
}
