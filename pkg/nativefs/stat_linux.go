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

package nativefs

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"chainguard.dev/enginefs/pkg/metadata"
)

// noStatx is set once the kernel reports that statx is unavailable.
var noStatx atomic.Bool

const statxMask = unix.STATX_TYPE | unix.STATX_MODE | unix.STATX_NLINK | unix.STATX_UID |
	unix.STATX_GID | unix.STATX_ATIME | unix.STATX_MTIME | unix.STATX_CTIME |
	unix.STATX_SIZE | unix.STATX_BTIME

func statx(dirfd int, path string, flags int) (*statResult, error) {
	if !noStatx.Load() {
		var stx unix.Statx_t
		err := ignoringEINTR(func() error {
			return unix.Statx(dirfd, path, flags|unix.AT_STATX_SYNC_AS_STAT, statxMask, &stx)
		})
		switch {
		case err == nil:
			return fromStatx(&stx), nil
		case errors.Is(err, unix.ENOSYS):
			noStatx.Store(true)
		default:
			return nil, err
		}
	}

	var st unix.Stat_t
	var err error
	switch {
	case path == "":
		err = ignoringEINTR(func() error { return unix.Fstat(dirfd, &st) })
	default:
		err = ignoringEINTR(func() error { return unix.Fstatat(dirfd, path, &st, flags) })
	}
	if err != nil {
		return nil, err
	}
	return fromStat(&st), nil
}

func timespec(sec int64, nsec int64) time.Time { return time.Unix(sec, nsec) }

func fromStatx(stx *unix.Statx_t) *statResult {
	r := &statResult{
		mode: uint32(stx.Mode),
		size: int64(stx.Size),
		uid:  stx.Uid,
		gid:  stx.Gid,
	}
	r.times[metadata.Access] = timespec(stx.Atime.Sec, int64(stx.Atime.Nsec))
	r.times[metadata.MetadataChange] = timespec(stx.Ctime.Sec, int64(stx.Ctime.Nsec))
	r.times[metadata.Modification] = timespec(stx.Mtime.Sec, int64(stx.Mtime.Nsec))
	r.known = metadata.AccessTime | metadata.ChangeTime | metadata.ModifyTime
	if stx.Mask&unix.STATX_BTIME != 0 {
		r.times[metadata.Birth] = timespec(stx.Btime.Sec, int64(stx.Btime.Nsec))
		r.known |= metadata.BirthTime
	}
	return r
}

func fromStat(st *unix.Stat_t) *statResult {
	r := &statResult{
		mode: st.Mode,
		size: st.Size,
		uid:  st.Uid,
		gid:  st.Gid,
	}
	r.times[metadata.Access] = time.Unix(st.Atim.Unix())
	r.times[metadata.MetadataChange] = time.Unix(st.Ctim.Unix())
	r.times[metadata.Modification] = time.Unix(st.Mtim.Unix())
	r.known = metadata.AccessTime | metadata.ChangeTime | metadata.ModifyTime
	return r
}

func lstatPath(path string) (*statResult, error) {
	return statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW)
}

func statPath(path string) (*statResult, error) {
	return statx(unix.AT_FDCWD, path, 0)
}

func fstatFd(fd int) (*statResult, error) {
	if noStatx.Load() {
		return statx(fd, "", 0)
	}
	return statx(fd, "", unix.AT_EMPTY_PATH)
}
