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

package limitio

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader(t *testing.T) {
	for _, tt := range []struct {
		name    string
		input   string
		limit   int64
		want    string
		wantErr bool
	}{
		{name: "under", input: "abc", limit: 5, want: "abc"},
		{name: "exact", input: "abcde", limit: 5, want: "abcde"},
		{name: "over", input: "abcdef", limit: 5, wantErr: true},
		{name: "empty", input: "", limit: 0, want: ""},
		{name: "zero limit", input: "a", limit: 0, wantErr: true},
		{name: "unlimited", input: "abcdef", limit: -1, want: "abcdef"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewReader(strings.NewReader(tt.input), tt.limit))
			if tt.wantErr {
				var limitErr *SizeLimitExceededError
				require.ErrorAs(t, err, &limitErr)
				require.Equal(t, tt.limit, limitErr.Limit)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}
}

func TestReaderStaysFailed(t *testing.T) {
	r := NewReader(strings.NewReader("abcdef"), 2)
	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for i := 0; i < 2; i++ {
		_, err = r.Read(buf)
		require.Error(t, err)
	}
}
