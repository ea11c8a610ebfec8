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
	"io"
	"os"

	"golang.org/x/sys/unix"
)

func ignoringEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}

// Open opens path with os.O_* flags and returns the raw descriptor. The
// descriptor is always close-on-exec.
func Open(path string, flag int, perm uint32) (int, error) {
	var fd int
	err := ignoringEINTR(func() error {
		var err error
		fd, err = unix.Open(path, flag|unix.O_CLOEXEC, perm)
		return err
	})
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// Read reads from fd, retrying interrupted calls. A zero byte read at end of
// file is reported as io.EOF.
func Read(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, err
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of p to fd, retrying interrupted and short writes.
func Write(fd int, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if err == unix.EINTR {
			continue
		}
		if n > 0 {
			written += n
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Seek repositions fd.
func Seek(fd int, offset int64, whence int) (int64, error) {
	return unix.Seek(fd, offset, whence)
}

// Close closes fd. EINTR is not retried: the descriptor is gone either way.
func Close(fd int) error {
	err := unix.Close(fd)
	if err == unix.EINTR {
		return nil
	}
	return err
}

// Sync flushes fd to stable storage.
func Sync(fd int) error {
	return ignoringEINTR(func() error { return unix.Fsync(fd) })
}

// Ftruncate resizes the file behind fd.
func Ftruncate(fd int, size int64) error {
	return ignoringEINTR(func() error { return unix.Ftruncate(fd, size) })
}

// Fchmod changes the permissions of the file behind fd.
func Fchmod(fd int, mode os.FileMode) error {
	return ignoringEINTR(func() error { return unix.Fchmod(fd, uint32(mode.Perm())) })
}

// PageSize is the granularity of memory mappings.
func PageSize() int64 { return int64(unix.Getpagesize()) }

// Mmap maps length bytes of fd starting at the page aligned offset.
func Mmap(fd int, offset int64, length int, writable, private bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	flags := unix.MAP_SHARED
	if private {
		flags = unix.MAP_PRIVATE
	}
	return unix.Mmap(fd, offset, length, prot, flags)
}

// Munmap releases a region returned by Mmap.
func Munmap(region []byte) error {
	return unix.Munmap(region)
}
