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
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/util/sets"

	"chainguard.dev/enginefs/pkg/fserr"
	"chainguard.dev/enginefs/pkg/paths"
)

// errNoRealpath means the platform shortcut is unavailable and the
// segment walk has to be used.
var errNoRealpath = errors.New("realpath unavailable")

// Canonical returns the absolute path of h with every symlink, "." and ".."
// resolved. The entry must exist.
func Canonical(ctx context.Context, h *paths.Handle) (*paths.Handle, error) {
	ctx, span := otel.Tracer("enginefs").Start(ctx, "Canonical")
	defer span.End()

	abs := Absolute(h)
	p, err := realpath(abs.NativePath())
	switch {
	case err == nil:
		return paths.FromNative(p), nil
	case !errors.Is(err, errNoRealpath):
		return nil, fserr.New("canonical", h.Path(), err)
	}
	return CanonicalWalk(ctx, abs)
}

// CanonicalWalk resolves h one segment at a time. Each symlink target is
// spliced into the remaining path and the scan restarts from the root of the
// result. A result seen before, or more than maxLinks substitutions, means a
// cycle and fails with fserr.Loop.
func CanonicalWalk(ctx context.Context, h *paths.Handle) (*paths.Handle, error) {
	log := clog.FromContext(ctx)

	root, rest := paths.SplitRoot(Absolute(h).Path())
	resolved := root
	todo := strings.Split(rest, "/")
	seen := sets.New[string]()

	for len(todo) > 0 {
		seg := todo[0]
		todo = todo[1:]
		switch seg {
		case "", ".":
			continue
		case "..":
			resolved = parentWithin(resolved, root)
			continue
		}

		candidate := joinSegment(resolved, seg)
		native := paths.FromPortable(candidate).NativePath()
		fi, err := os.Lstat(native)
		if err != nil {
			return nil, fserr.New("canonical", h.Path(), unwrapError(err))
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			if len(todo) > 0 && !fi.IsDir() && hasNonEmpty(todo) {
				return nil, fserr.Newf("canonical", h.Path(), fserr.NotFound, "%s is not a directory", candidate)
			}
			resolved = candidate
			continue
		}

		target, err := os.Readlink(native)
		if err != nil {
			return nil, fserr.New("canonical", h.Path(), unwrapError(err))
		}
		target = paths.FromNative(target).Path()

		next := target
		if !paths.FromPortable(target).IsAbsolute() {
			next = joinSegment(resolved, target)
		}
		if len(todo) > 0 {
			next += "/" + strings.Join(todo, "/")
		}

		if seen.Has(next) || seen.Len() >= maxLinks {
			log.Debugf("symlink cycle while resolving %s at %s", h.Path(), candidate)
			trace.SpanFromContext(ctx).AddEvent("symlink cycle")
			return nil, fserr.Newf("canonical", h.Path(), fserr.Loop, "symlink cycle at %s", candidate)
		}
		seen.Insert(next)

		root, rest = paths.SplitRoot(next)
		resolved = root
		todo = strings.Split(rest, "/")
	}
	return paths.FromPortable(resolved), nil
}

func hasNonEmpty(segs []string) bool {
	for _, s := range segs {
		if s != "" && s != "." {
			return true
		}
	}
	return false
}

func joinSegment(dir, seg string) string {
	if strings.HasSuffix(dir, "/") || dir == "" {
		return dir + seg
	}
	return dir + "/" + seg
}

func parentWithin(p, root string) string {
	if len(p) <= len(root) {
		return root
	}
	i := strings.LastIndexByte(p, '/')
	if i < len(root) {
		return root
	}
	return p[:i]
}
