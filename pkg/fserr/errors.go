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

// Package fserr defines the error taxonomy shared by every filesystem engine.
//
// Engines report failures as *Error values carrying the operation, the path,
// a coarse Kind and the underlying platform error. The platform error keeps
// the strerror text so messages stay familiar to users.
package fserr

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind is a coarse classification of a filesystem failure.
type Kind int

const (
	Unspecified Kind = iota
	NotFound
	PermissionDenied
	IsADirectory
	AlreadyExists
	ResourceExhausted
	IOError
	InvalidArgument
	Unsupported
	// Loop is reported for symlink or search root cycles.
	Loop
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case IsADirectory:
		return "is a directory"
	case AlreadyExists:
		return "already exists"
	case ResourceExhausted:
		return "resource exhausted"
	case IOError:
		return "i/o error"
	case InvalidArgument:
		return "invalid argument"
	case Unsupported:
		return "unsupported operation"
	case Loop:
		return "too many levels of symbolic links"
	default:
		return "unspecified error"
	}
}

// Error records a failed filesystem operation.
type Error struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path == "" {
		return e.Op + ": " + msg
	}
	return e.Op + " " + e.Path + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the io/fs sentinels by kind, so callers can keep
// using errors.Is(err, fs.ErrNotExist) regardless of the engine.
func (e *Error) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Kind == NotFound
	case fs.ErrPermission:
		return e.Kind == PermissionDenied
	case fs.ErrExist:
		return e.Kind == AlreadyExists
	case fs.ErrInvalid:
		return e.Kind == InvalidArgument
	case errors.ErrUnsupported:
		return e.Kind == Unsupported
	}
	return false
}

// New wraps err for op on path, classifying it from the platform error.
// A nil err yields nil.
func New(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Op == op && fe.Path == path {
		return err
	}
	return &Error{Op: op, Path: path, Kind: KindOf(err), Err: err}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(op, path string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithKind creates an error of the given kind, using the kind's text as the
// message.
func WithKind(op, path string, kind Kind) error {
	return &Error{Op: op, Path: path, Kind: kind}
}

// KindOf classifies any error.
func KindOf(err error) Kind {
	if err == nil {
		return Unspecified
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if k, ok := errnoKind(err); ok {
		return k
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	case errors.Is(err, fs.ErrExist):
		return AlreadyExists
	case errors.Is(err, fs.ErrInvalid):
		return InvalidArgument
	case errors.Is(err, errors.ErrUnsupported):
		return Unsupported
	}
	return Unspecified
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
