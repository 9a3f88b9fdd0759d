// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package imagefile

import (
	"context"
	_ "embed" // acquisition schema
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qri-io/jsonschema"
)

//go:embed acquisition.schema.json
var acquisitionSchema []byte

// nolint:gochecknoglobals
var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func setupSchemaValidation() {
	schemaOnce.Do(func() {
		schema = &jsonschema.Schema{}
		if err := json.Unmarshal(acquisitionSchema, schema); err != nil {
			panic(err)
		}
		id := string(*schema.JSONProp("$id").(*jsonschema.ID))
		schema.Resolve(nil, id)
		jsonschema.GetSchemaRegistry().Register(schema)
	})
}

func validateSchema(document []byte) (flaws []string, err error) {
	setupSchemaValidation()

	errs, err := schema.ValidateBytes(context.Background(), document)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate acquisition: %s", verr))
	}
	return flaws, nil
}
