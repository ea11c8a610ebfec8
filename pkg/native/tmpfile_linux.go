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

package native

import (
	"context"
	"io/fs"
	"strconv"

	"golang.org/x/sys/unix"

	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/nativefs"
	"chainguard.dev/enginefs/pkg/paths"
)

// NewUnnamedTemp opens an anonymous read-write file in dir. The file has no
// name until Materialize links it into the directory tree, and disappears
// when closed otherwise.
func NewUnnamedTemp(ctx context.Context, dir string, perm fs.FileMode) (*Engine, error) {
	if perm == 0 {
		perm = 0o600
	}
	fd, err := nativefs.Open(dir, unix.O_TMPFILE|unix.O_RDWR, uint32(perm.Perm()))
	if err != nil {
		return nil, fserr.New("open", dir, err)
	}
	return OpenFD(ctx, fd, engine.ReadWrite, true), nil
}

// Materialize gives an unnamed temporary file the name name. It fails with
// fserr.AlreadyExists when name is taken, so callers can retry with another
// candidate.
func (e *Engine) Materialize(name string) error {
	e.mustBeOpen()
	h := paths.FromPortable(name)
	proc := "/proc/self/fd/" + strconv.Itoa(e.fd)
	err := unix.Linkat(unix.AT_FDCWD, proc, unix.AT_FDCWD, h.NativePath(), unix.AT_SYMLINK_FOLLOW)
	if err != nil {
		return fserr.New("link", h.Path(), err)
	}
	e.h = h
	return nil
}
