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

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, generate(&buf, ""))

	var schema struct {
		Ref   string                     `json:"$ref"`
		Title string                     `json:"title"`
		Defs  map[string]json.RawMessage `json:"$defs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
	require.Equal(t, "enginefs mount configuration", schema.Title)
	for _, def := range []string{"Config", "Archive", "Directory"} {
		require.Contains(t, schema.Defs, def)
	}
	require.Contains(t, string(schema.Defs["Config"]), "search-paths")
	require.Contains(t, string(schema.Defs["Archive"]), "parallel-gzip")
}
