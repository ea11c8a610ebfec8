// Copyright 2023 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a compact slog handler for terminals and log files.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PathKey is the attribute shown in the handler's left column.
const PathKey = "path"

// writerFromTarget returns a writer given a target specification.
func writerFromTarget(target string) (io.Writer, error) {
	switch target {
	case "builtin:stderr":
		return os.Stderr, nil
	case "builtin:stdout":
		return os.Stdout, nil
	case "builtin:discard":
		return io.Discard, nil
	default:
		if strings.Contains(target, "/") {
			parent := filepath.Dir(target)
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}

		return out, nil
	}
}

// writer returns a writer which writes to multiple target specifications.
func writer(targets []string) (io.Writer, error) {
	if len(targets) == 0 {
		return os.Stderr, nil
	}
	if len(targets) == 1 {
		return writerFromTarget(targets[0])
	}

	writers := []io.Writer{}
	for _, target := range targets {
		writer, err := writerFromTarget(target)
		if err != nil {
			return nil, err
		}

		writers = append(writers, writer)
	}

	return io.MultiWriter(writers...), nil
}

const (
	reset   = 0
	yellow  = 33
	magenta = 35
	gray    = 37
)

func isTerminal(w io.Writer) bool {
	switch v := w.(type) {
	case *os.File:
		return term.IsTerminal(int(v.Fd()))
	default:
		return false
	}
}

func color(w io.Writer, color int) string {
	if !isTerminal(w) {
		return ""
	}

	return fmt.Sprintf("\x1b[%dm", color)
}

func levelToColor(r slog.Record) int {
	switch {
	case r.Level >= slog.LevelError:
		return magenta
	case r.Level >= slog.LevelWarn:
		return yellow
	default:
		return gray
	}
}

func levelMark(r slog.Record) string {
	switch {
	case r.Level >= slog.LevelError:
		return "E"
	case r.Level >= slog.LevelWarn:
		return "W"
	case r.Level >= slog.LevelInfo:
		return "I"
	default:
		return "D"
	}
}

// Handler returns a handler writing to every target of logPolicy. Targets
// are "builtin:stderr", "builtin:stdout", "builtin:discard" or a file path.
func Handler(logPolicy []string, level slog.Level) (slog.Handler, error) {
	out, err := writer(logPolicy)
	if err != nil {
		return nil, fmt.Errorf("opening log targets: %w", err)
	}
	return &handler{out: out, level: level, mu: &sync.Mutex{}}, nil
}

type handler struct {
	level slog.Level
	out   io.Writer
	attrs []slog.Attr

	mu *sync.Mutex
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		level: h.level,
		out:   h.out,
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		mu:    h.mu,
	}
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}

	var path string
	for _, a := range h.attrs {
		if a.Key == PathKey {
			path = a.Value.String()
		}
	}
	r.Attrs(func(s slog.Attr) bool {
		if s.Key == PathKey {
			path = s.Value.String()
			return false
		}
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	c := color(h.out, levelToColor(r))
	_, err := fmt.Fprintf(h.out, "%s %s%-20s|%s %s%s%s\n", levelMark(r), c, path, color(h.out, reset), c, r.Message, color(h.out, reset))
	return err
}

// This handler doesn't support groups.
func (h *handler) WithGroup(string) slog.Handler { return h }
