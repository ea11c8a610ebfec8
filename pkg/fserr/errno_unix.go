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

package fserr

import (
	"errors"

	"golang.org/x/sys/unix"
)

func errnoKind(err error) (Kind, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return Unspecified, false
	}
	switch errno {
	case unix.ENOENT, unix.ENOTDIR:
		return NotFound, true
	case unix.EACCES, unix.EPERM, unix.EROFS:
		return PermissionDenied, true
	case unix.EISDIR:
		return IsADirectory, true
	case unix.EEXIST, unix.ENOTEMPTY:
		return AlreadyExists, true
	case unix.EMFILE, unix.ENFILE, unix.ENOSPC, unix.ENOMEM, unix.EDQUOT, unix.EFBIG:
		return ResourceExhausted, true
	case unix.EIO:
		return IOError, true
	case unix.EINVAL, unix.EBADF, unix.ENAMETOOLONG, unix.EXDEV:
		return InvalidArgument, true
	case unix.ENOSYS, unix.ENOTSUP, unix.ENODEV:
		return Unsupported, true
	case unix.ELOOP:
		return Loop, true
	}
	return Unspecified, true
}
