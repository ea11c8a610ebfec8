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

package log

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "logs", "enginefs.log")
	h, err := Handler([]string{target}, slog.LevelInfo)
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Debug("hidden")
	logger.Info("mounted", PathKey, ":/assets")
	logger.With(PathKey, "/srv/data").Warn("slow")
	logger.Error("plain")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "I :/assets"), lines[0])
	require.True(t, strings.HasSuffix(lines[0], "| mounted"), lines[0])
	require.True(t, strings.HasPrefix(lines[1], "W /srv/data"), lines[1])
	require.True(t, strings.HasPrefix(lines[2], "E "), lines[2])
	require.NotContains(t, string(data), "\x1b[", "files are not colored")
}

func TestWithAttrsKeepsLevel(t *testing.T) {
	h, err := Handler([]string{"builtin:discard"}, slog.LevelWarn)
	require.NoError(t, err)
	require.False(t, h.WithAttrs([]slog.Attr{slog.String(PathKey, "x")}).Enabled(context.Background(), slog.LevelInfo))
}

func TestHandlerBadTarget(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err := Handler([]string{"builtin:stderr", filepath.Join(blocker, "sub", "log")}, slog.LevelInfo)
	require.Error(t, err)
}
