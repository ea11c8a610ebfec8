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

package passwd

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// A GroupEntry describes a single line in /etc/group.
type GroupEntry struct {
	GroupName string
	Password  string
	GID       uint32
	Members   []string
}

// A GroupFile describes an entire /etc/group file's contents.
type GroupFile struct {
	Entries []GroupEntry
}

// ReadGroupFile parses the group file at name in fsys.
func ReadGroupFile(fsys fs.FS, name string) (GroupFile, error) {
	gf := GroupFile{}
	f, err := fsys.Open(name)
	if err != nil {
		return gf, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if err := gf.Load(f); err != nil {
		return gf, fmt.Errorf("unable to parse %s: %w", name, err)
	}
	return gf, nil
}

// Load appends the entries read from r.
func (gf *GroupFile) Load(r io.Reader) error {
	return scan(r, func(line string) error {
		ge := GroupEntry{}
		if err := ge.Parse(line); err != nil {
			return err
		}
		gf.Entries = append(gf.Entries, ge)
		return nil
	})
}

// Write an /etc/group file into an io.Writer.
func (gf *GroupFile) Write(w io.Writer) error {
	for _, ge := range gf.Entries {
		if err := ge.Write(w); err != nil {
			return fmt.Errorf("unable to write group entry: %w", err)
		}
	}
	return nil
}

// Parse an /etc/group line into a GroupEntry.
func (ge *GroupEntry) Parse(line string) error {
	parts := strings.Split(strings.TrimSpace(line), ":")
	if len(parts) != 4 {
		return fmt.Errorf("malformed line, contains %d parts, expecting 4", len(parts))
	}

	gid, err := parseID(parts[2])
	if err != nil {
		return fmt.Errorf("failed to parse GID %s: %w", parts[2], err)
	}

	var members []string
	if parts[3] != "" {
		members = strings.Split(parts[3], ",")
	}
	*ge = GroupEntry{
		GroupName: parts[0],
		Password:  parts[1],
		GID:       gid,
		Members:   members,
	}
	return nil
}

// Write an /etc/group line into an io.Writer.
func (ge *GroupEntry) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s:%s:%d:%s\n", ge.GroupName, ge.Password, ge.GID, strings.Join(ge.Members, ","))
	return err
}
