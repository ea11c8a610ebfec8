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

//go:build unix && !linux

package nativefs

import (
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"chainguard.dev/enginefs/pkg/metadata"
)

func fromFileInfo(fi fs.FileInfo) *statResult {
	r := &statResult{size: fi.Size(), known: metadata.ModifyTime}
	r.times[metadata.Modification] = fi.ModTime()
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		r.mode = uint32(st.Mode)
		r.uid = st.Uid
		r.gid = st.Gid
	}
	return r
}

func lstatPath(path string) (*statResult, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, unwrapError(err)
	}
	return fromFileInfo(fi), nil
}

func statPath(path string) (*statResult, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, unwrapError(err)
	}
	return fromFileInfo(fi), nil
}

func fstatFd(fd int) (*statResult, error) {
	var st unix.Stat_t
	if err := ignoringEINTR(func() error { return unix.Fstat(fd, &st) }); err != nil {
		return nil, err
	}
	return &statResult{
		mode: uint32(st.Mode),
		size: st.Size,
		uid:  st.Uid,
		gid:  st.Gid,
	}, nil
}
