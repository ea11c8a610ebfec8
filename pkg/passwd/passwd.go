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

// Package passwd reads the account databases of a mounted image, so numeric
// owners can be named the way the image itself would name them.
package passwd

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// An UserEntry contains the parsed data from an /etc/passwd entry.
type UserEntry struct {
	UserName string
	Password string
	UID      uint32
	GID      uint32
	Info     string
	HomeDir  string
	Shell    string
}

// A UserFile contains the entries from an /etc/passwd file.
type UserFile struct {
	Entries []UserEntry
}

// ReadUserFile parses the passwd file at name in fsys.
func ReadUserFile(fsys fs.FS, name string) (UserFile, error) {
	uf := UserFile{}
	f, err := fsys.Open(name)
	if err != nil {
		return uf, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if err := uf.Load(f); err != nil {
		return uf, fmt.Errorf("unable to parse %s: %w", name, err)
	}
	return uf, nil
}

// Load appends the entries read from r. Blank lines and comments are
// skipped.
func (uf *UserFile) Load(r io.Reader) error {
	return scan(r, func(line string) error {
		ue := UserEntry{}
		if err := ue.Parse(line); err != nil {
			return err
		}
		uf.Entries = append(uf.Entries, ue)
		return nil
	})
}

// Write an /etc/passwd file into an io.Writer.
func (uf *UserFile) Write(w io.Writer) error {
	for _, ue := range uf.Entries {
		if err := ue.Write(w); err != nil {
			return fmt.Errorf("unable to write passwd entry: %w", err)
		}
	}
	return nil
}

// Parse an /etc/passwd line into a UserEntry.
func (ue *UserEntry) Parse(line string) error {
	parts := strings.Split(strings.TrimSpace(line), ":")
	if len(parts) != 7 {
		return fmt.Errorf("malformed line, contains %d parts, expecting 7", len(parts))
	}

	uid, err := parseID(parts[2])
	if err != nil {
		return fmt.Errorf("failed to parse UID %s: %w", parts[2], err)
	}
	gid, err := parseID(parts[3])
	if err != nil {
		return fmt.Errorf("failed to parse GID %s: %w", parts[3], err)
	}

	*ue = UserEntry{
		UserName: parts[0],
		Password: parts[1],
		UID:      uid,
		GID:      gid,
		Info:     parts[4],
		HomeDir:  parts[5],
		Shell:    parts[6],
	}
	return nil
}

// Write an /etc/passwd line into an io.Writer.
func (ue *UserEntry) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s:%s:%d:%d:%s:%s:%s\n", ue.UserName, ue.Password, ue.UID, ue.GID, ue.Info, ue.HomeDir, ue.Shell)
	return err
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	return uint32(id), err
}

func scan(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}
