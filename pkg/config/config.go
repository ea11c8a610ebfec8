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

// Package config loads the search roots and mounts a program should install
// before resolving paths.
package config

//go:generate go run ../../internal/gen-jsonschema -o schema.json

// Archive mounts a tar archive read-only.
type Archive struct {
	// Mount is the path prefix the archive appears under, for example
	// ":/assets".
	Mount string `json:"mount" yaml:"mount"`
	// Path is the archive file. Relative paths are taken relative to the
	// configuration file. The archive may be gzip or zstd compressed.
	Path string `json:"path" yaml:"path"`
	// Optional: Dir mounts this directory of the archive instead of its
	// root.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Optional: ParallelGzip decompresses gzip archives with this many
	// concurrent blocks.
	ParallelGzip int `json:"parallel-gzip,omitempty" yaml:"parallel-gzip,omitempty"`
	// Optional: MaxSize refuses archives whose uncompressed size exceeds
	// this many bytes. Zero means no limit.
	MaxSize int64 `json:"max-size,omitempty" yaml:"max-size,omitempty"`
}

// Directory mounts a native directory read-only under another prefix.
type Directory struct {
	Mount string `json:"mount" yaml:"mount"`
	Path  string `json:"path" yaml:"path"`
}

// Config is the contents of a configuration file.
type Config struct {
	// SearchPaths maps a scheme prefix to the roots tried, in order, for
	// "prefix:relative/path" lookups.
	SearchPaths map[string][]string `json:"search-paths,omitempty" yaml:"search-paths,omitempty"`
	// Archives to mount.
	Archives []Archive `json:"archives,omitempty" yaml:"archives,omitempty"`
	// Directories to mount.
	Directories []Directory `json:"directories,omitempty" yaml:"directories,omitempty"`
}
