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
	"math"
	"unsafe"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/nativefs"
)

// mapping is the page aligned region behind a slice handed out by mmap.
type mapping struct {
	adjust int64
	region []byte
}

func sliceKey(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }

func (e *Engine) mmap(offset, size int64, private bool) ([]byte, error) {
	if e.fd < 0 {
		panic("native: map of " + e.h.Path() + " without an open descriptor")
	}
	if offset < 0 || size <= 0 || offset > math.MaxInt64-size || size > math.MaxInt {
		return nil, fserr.Newf("mmap", e.h.Path(), fserr.InvalidArgument, "bad range offset=%d size=%d", offset, size)
	}
	if fileSize, err := e.Size(); err == nil && offset+size > fileSize {
		clog.FromContext(e.ctx).Warnf("mapping %s beyond end of file: offset=%d size=%d file size=%d",
			e.h.Path(), offset, size, fileSize)
	}

	adjust := offset % nativefs.PageSize()
	length := size + adjust
	if length > math.MaxInt {
		return nil, fserr.Newf("mmap", e.h.Path(), fserr.InvalidArgument, "size %d too large", size)
	}
	region, err := nativefs.Mmap(e.fd, offset-adjust, int(length), e.mode.CanWrite(), private)
	if err != nil {
		return nil, e.err("mmap", err)
	}
	data := region[adjust:length:length]
	if e.maps == nil {
		e.maps = map[uintptr]mapping{}
	}
	e.maps[sliceKey(data)] = mapping{adjust: adjust, region: region}
	return data, nil
}

func (e *Engine) unmap(data []byte) error {
	key := sliceKey(data)
	m, ok := e.maps[key]
	if !ok || len(data) == 0 {
		return fserr.Newf("munmap", e.h.Path(), fserr.InvalidArgument, "not a mapping of this file")
	}
	delete(e.maps, key)
	return e.err("munmap", nativefs.Munmap(m.region))
}

func (e *Engine) unmapAll() {
	if len(e.maps) == 0 {
		return
	}
	clog.FromContext(e.ctx).Debugf("unmapping %d leftover mappings of %s", len(e.maps), e.h.Path())
	for key, m := range e.maps {
		_ = nativefs.Munmap(m.region)
		delete(e.maps, key)
	}
}
