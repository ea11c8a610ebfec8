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

// Package limitio bounds how much a reader may produce.
package limitio

import (
	"fmt"
	"io"
)

// SizeLimitExceededError is returned once a stream is found to be longer
// than its limit.
type SizeLimitExceededError struct {
	Limit int64
}

func (e *SizeLimitExceededError) Error() string {
	return fmt.Sprintf("size limit exceeded: limit is %d bytes", e.Limit)
}

// Reader yields at most Limit bytes of R. Unlike io.LimitedReader, a stream
// that would go on past the limit fails with SizeLimitExceededError instead
// of ending early, so truncated input is never mistaken for complete input.
type Reader struct {
	R     io.Reader
	Limit int64

	read     int64
	exceeded bool
}

// NewReader limits r to limit bytes. A negative limit leaves r unwrapped.
func NewReader(r io.Reader, limit int64) io.Reader {
	if limit < 0 {
		return r
	}
	return &Reader{R: r, Limit: limit}
}

func (l *Reader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, &SizeLimitExceededError{Limit: l.Limit}
	}
	if left := l.Limit - l.read; left == 0 {
		// Probe for a byte past the limit.
		var one [1]byte
		n, err := io.ReadFull(l.R, one[:])
		if n > 0 {
			l.exceeded = true
			return 0, &SizeLimitExceededError{Limit: l.Limit}
		}
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	} else if int64(len(p)) > left {
		p = p[:left]
	}
	n, err := l.R.Read(p)
	l.read += int64(n)
	return n, err
}
