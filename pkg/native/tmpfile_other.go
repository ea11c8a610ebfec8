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

//go:build !linux

package native

import (
	"context"
	"io/fs"

	"chainguard.dev/enginefs/pkg/fserr"
)

// NewUnnamedTemp needs O_TMPFILE and is only available on Linux.
func NewUnnamedTemp(_ context.Context, dir string, _ fs.FileMode) (*Engine, error) {
	return nil, fserr.WithKind("open", dir, fserr.Unsupported)
}

func (e *Engine) Materialize(name string) error {
	return fserr.WithKind("link", name, fserr.Unsupported)
}
