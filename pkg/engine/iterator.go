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

package engine

import (
	"chainguard.dev/enginefs/pkg/metadata"
	"chainguard.dev/enginefs/pkg/nativefs"
)

// Iterator lists the raw entries of one directory. Filtering is up to the
// consumer; an iterator may pre-filter but is not required to.
type Iterator interface {
	// Path is the directory being listed.
	Path() string
	HasNext() bool
	// Next advances and returns the path of the new current entry. It
	// panics when HasNext would report false.
	Next() string
	CurrentName() string
	CurrentPath() string
	// CurrentInfo returns the current entry's metadata with at least the
	// flags in what known, as far as the back end can answer them.
	CurrentInfo(what metadata.Flags) *metadata.Cache
	Err() error
	Close() error
}

var _ Iterator = (*nativefs.DirIterator)(nil)
