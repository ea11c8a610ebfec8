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
	"errors"
	"io/fs"
)

// Accounts maps the ids of an image to names.
type Accounts struct {
	users  map[uint32]string
	groups map[uint32]string
}

// ReadAccounts reads etc/passwd and etc/group from fsys. A missing file
// leaves its half empty; a malformed one is an error.
func ReadAccounts(fsys fs.FS) (*Accounts, error) {
	a := &Accounts{users: map[uint32]string{}, groups: map[uint32]string{}}

	uf, err := ReadUserFile(fsys, "etc/passwd")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, ue := range uf.Entries {
		// The first entry for an id wins, as with getpwuid.
		if _, ok := a.users[ue.UID]; !ok {
			a.users[ue.UID] = ue.UserName
		}
	}

	gf, err := ReadGroupFile(fsys, "etc/group")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, ge := range gf.Entries {
		if _, ok := a.groups[ge.GID]; !ok {
			a.groups[ge.GID] = ge.GroupName
		}
	}
	return a, nil
}

// UserName returns the name of uid, or "" when the image has none.
func (a *Accounts) UserName(uid uint32) string {
	if a == nil {
		return ""
	}
	return a.users[uid]
}

// GroupName returns the name of gid, or "" when the image has none.
func (a *Accounts) GroupName(gid uint32) string {
	if a == nil {
		return ""
	}
	return a.groups[gid]
}
