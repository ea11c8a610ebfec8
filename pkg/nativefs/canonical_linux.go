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
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// realpath asks the kernel for the path of an O_PATH descriptor. It needs
// /proc; without it the caller falls back to the segment walk.
func realpath(path string) (string, error) {
	fd, err := Open(path, unix.O_PATH, 0)
	if err != nil {
		return "", err
	}
	defer Close(fd)

	buf := make([]byte, unix.PathMax)
	n, err := unix.Readlink("/proc/self/fd/"+strconv.Itoa(fd), buf)
	if err != nil || n <= 0 || n >= len(buf) {
		return "", errNoRealpath
	}
	target := string(buf[:n])
	if !strings.HasPrefix(target, "/") || strings.HasSuffix(target, " (deleted)") {
		return "", errNoRealpath
	}
	return target, nil
}
