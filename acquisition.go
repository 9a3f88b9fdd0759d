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
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// acquisitionPaths maps paths in acquisition documents to image attributes.
// nolint:gochecknoglobals
var acquisitionPaths = []struct {
	path      string
	attribute string
}{
	{"case_number", "case_number"},
	{"evidence_number", "evidence_number"},
	{"description", "description"},
	{"notes", "notes"},
	{"examiner", "acquisition_user"},
	{"acquisition_time", "acquisition_time"},
	{"tool", "acquisition_tool"},
	{"platform", "acquisition_platform"},
	{"drive.vendor", "drive_vendor"},
	{"drive.model", "drive_model"},
	{"drive.serial_number", "drive_serial_number"},
	{"image.segment_size", "segment_size"},
	{"image.chunk_size", "chunk_size"},
	{"image.sector_size", "sector_size"},
	{"image.compression_level", "compression_level"},
}

// LoadAcquisition reads an acquisition document and returns the image
// attributes it sets. Keys may use camel case.
//
// Example document:
//     {
//       "case_number": "2020-17",
//       "examiner": "jane",
//       "acquisition_time": "2020-05-06T07:08:09Z",
//       "drive": {"model": "WDC WD5000AAKS", "serial_number": "WCAWF1234567"},
//       "image": {"segment_size": 671088640, "compression_level": 1}
//     }
func LoadAcquisition(data []byte) (map[string]interface{}, error) {
	var document interface{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, errors.Wrap(err, "could not parse acquisition")
	}
	if _, ok := document.(map[string]interface{}); !ok {
		return nil, errors.New("acquisition must be a json object")
	}

	normalized, err := json.Marshal(snakeKeys(document))
	if err != nil {
		return nil, err
	}

	flaws, err := validateSchema(normalized)
	if err != nil {
		return nil, err
	}
	if len(flaws) > 0 {
		return nil, errors.New(strings.Join(flaws, ", "))
	}

	attributes := map[string]interface{}{}
	for _, p := range acquisitionPaths {
		value := gjson.GetBytes(normalized, p.path)
		switch value.Type {
		case gjson.Number:
			attributes[p.attribute] = value.Int()
		case gjson.String:
			attributes[p.attribute] = value.String()
		}
	}
	return attributes, nil
}
