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

// gen-jsonschema writes the JSON schema of the mount configuration file.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"chainguard.dev/enginefs/pkg/config"
)

var (
	outputFlag   = flag.String("o", "", "output path")
	commentsFlag = flag.String("comments", "../../pkg/config", "directory of the config package sources, for descriptions")
)

func generate(w io.Writer, commentsDir string) error {
	r := new(jsonschema.Reflector)
	if commentsDir != "" {
		if err := r.AddGoComments("chainguard.dev/enginefs/pkg/config", commentsDir); err != nil {
			return err
		}
	}
	schema := r.Reflect(&config.Config{})
	schema.Title = "enginefs mount configuration"

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(schema)
}

func main() {
	flag.Parse()

	if *outputFlag == "" {
		log.Fatal("output path is required")
	}

	b := new(bytes.Buffer)
	if err := generate(b, *commentsFlag); err != nil {
		log.Fatal(err)
	}
	//nolint:gosec  // gosec wants us to use 0600, but making this globally readable is preferred.
	if err := os.WriteFile(*outputFlag, b.Bytes(), 0644); err != nil {
		log.Fatal(err)
	}
}
