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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// EnvPrefix starts the environment variables that add search paths:
// ENGINEFS_SEARCH_PATH_DATA=/srv/data:/opt/data sets the roots of "data".
const EnvPrefix = "ENGINEFS_SEARCH_PATH_"

var ErrConfigNotFound = errors.New("configuration file not found")

// Load reads a configuration file. Files ending in .ini use sections
// instead of YAML:
//
//	[search-paths]
//	data = /srv/data, /opt/app/data
//
//	[archives]
//	:/assets = assets.tar.gz
//
//	[directories]
//	/mnt/etc = /etc
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".ini") {
		if err := cfg.parseINI(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}

	cfg.relativeTo(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) parseINI(data []byte) error {
	// ":" starts mount names, so only "=" separates keys from values.
	f, err := ini.LoadSources(ini.LoadOptions{KeyValueDelimiters: "="}, data)
	if err != nil {
		return err
	}
	if sec, err := f.GetSection("search-paths"); err == nil {
		for _, k := range sec.Keys() {
			c.addSearchPaths(k.Name(), k.Strings(","))
		}
	}
	if sec, err := f.GetSection("archives"); err == nil {
		for _, k := range sec.Keys() {
			c.Archives = append(c.Archives, Archive{Mount: k.Name(), Path: k.String()})
		}
	}
	if sec, err := f.GetSection("directories"); err == nil {
		for _, k := range sec.Keys() {
			c.Directories = append(c.Directories, Directory{Mount: k.Name(), Path: k.String()})
		}
	}
	return nil
}

func (c *Config) addSearchPaths(prefix string, roots []string) {
	if c.SearchPaths == nil {
		c.SearchPaths = map[string][]string{}
	}
	for _, r := range roots {
		if r = strings.TrimSpace(r); r != "" {
			c.SearchPaths[prefix] = append(c.SearchPaths[prefix], r)
		}
	}
}

func (c *Config) relativeTo(dir string) {
	for i := range c.Archives {
		if p := c.Archives[i].Path; p != "" && !filepath.IsAbs(p) {
			c.Archives[i].Path = filepath.Join(dir, p)
		}
	}
	for i := range c.Directories {
		if p := c.Directories[i].Path; p != "" && !filepath.IsAbs(p) {
			c.Directories[i].Path = filepath.Join(dir, p)
		}
	}
}

// Validate checks that every mount names a prefix and a source.
func (c *Config) Validate() error {
	for prefix := range c.SearchPaths {
		if len(prefix) < 2 || strings.ContainsAny(prefix, `:/\`) {
			return fmt.Errorf("search path prefix %q must be at least two characters without separators", prefix)
		}
	}
	for _, a := range c.Archives {
		if a.Mount == "" || a.Path == "" {
			return fmt.Errorf("archive %+v needs both a mount and a path", a)
		}
		if a.ParallelGzip < 0 {
			return fmt.Errorf("archive %s: parallel-gzip must not be negative", a.Mount)
		}
		if a.MaxSize < 0 {
			return fmt.Errorf("archive %s: max-size must not be negative", a.Mount)
		}
	}
	for _, d := range c.Directories {
		if d.Mount == "" || d.Path == "" {
			return fmt.Errorf("directory %+v needs both a mount and a path", d)
		}
	}
	return nil
}

// ApplyEnv adds the search paths named by EnvPrefix variables in environ,
// which has the form of os.Environ. Prefixes are lower-cased; roots are
// separated by the platform's list separator and replace any configured
// for the same prefix.
func (c *Config) ApplyEnv(environ []string) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	c.applyEnvMap(env)
}

// ApplyEnvFile is ApplyEnv for the variables of a dotenv file. The process
// environment is left alone.
func (c *Config) ApplyEnvFile(path string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}
	c.applyEnvMap(env)
	return nil
}

func (c *Config) applyEnvMap(env map[string]string) {
	for k, v := range env {
		prefix, ok := strings.CutPrefix(k, EnvPrefix)
		if !ok || prefix == "" {
			continue
		}
		prefix = strings.ToLower(prefix)
		if c.SearchPaths != nil {
			delete(c.SearchPaths, prefix)
		}
		c.addSearchPaths(prefix, filepath.SplitList(v))
	}
}
