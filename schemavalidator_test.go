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
	"testing"
)

func Test_validateSchema(t *testing.T) {
	type args struct {
		document []byte
	}
	tests := []struct {
		name      string
		args      args
		wantFlaws bool
		wantErr   bool
	}{
		{"valid", args{[]byte(`{"case_number": "1", "image": {"compression_level": 2}}`)}, false, false},
		{"empty", args{[]byte(`{}`)}, false, false},
		{"unknown key", args{[]byte(`{"color": "red"}`)}, true, false},
		{"wrong type", args{[]byte(`{"drive": {"model": 42}}`)}, true, false},
		{"bad compression", args{[]byte(`{"image": {"compression_level": 5}}`)}, true, false},
		{"bad time", args{[]byte(`{"acquisition_time": "yesterday"}`)}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFlaws, err := validateSchema(tt.args.document)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchema() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if (len(gotFlaws) > 0) != tt.wantFlaws {
				t.Errorf("validateSchema() = %v, want %v", gotFlaws, tt.wantFlaws)
			}
		})
	}
}
