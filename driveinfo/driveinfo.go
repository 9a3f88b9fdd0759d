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

// Package driveinfo splits the model strings reported by drives into vendor
// and model and cleans up serial numbers.
package driveinfo

import (
	"regexp"
	"strings"
)

type vendor struct {
	name    string
	pattern *regexp.Regexp
	strip   bool
}

// vendors maps model prefixes to vendor names. strip removes the matched
// prefix from the model.
// nolint:gochecknoglobals
var vendors = []vendor{
	{"Western Digital", regexp.MustCompile(`(?i)^(WDC|WESTERN DIGITAL)[ _-]+`), true},
	{"Western Digital", regexp.MustCompile(`^WD[0-9]`), false},
	{"Seagate", regexp.MustCompile(`(?i)^SEAGATE[ _-]+`), true},
	{"Seagate", regexp.MustCompile(`^ST[0-9]`), false},
	{"Hitachi", regexp.MustCompile(`(?i)^HITACHI[ _-]+`), true},
	{"Hitachi", regexp.MustCompile(`^(HDS|HTS|HDT|HUA)[0-9]`), false},
	{"Toshiba", regexp.MustCompile(`(?i)^TOSHIBA[ _-]+`), true},
	{"Samsung", regexp.MustCompile(`(?i)^SAMSUNG[ _-]+`), true},
	{"Samsung", regexp.MustCompile(`^(HD|SP)[0-9]{3}[A-Z]`), false},
	{"Maxtor", regexp.MustCompile(`(?i)^MAXTOR[ _-]+`), true},
	{"Fujitsu", regexp.MustCompile(`(?i)^FUJITSU[ _-]+`), true},
	{"Intel", regexp.MustCompile(`(?i)^INTEL[ _-]+`), true},
	{"Kingston", regexp.MustCompile(`(?i)^KINGSTON[ _-]+`), true},
	{"SanDisk", regexp.MustCompile(`(?i)^SANDISK[ _-]+`), true},
	{"Crucial", regexp.MustCompile(`(?i)^CRUCIAL[ _-]+`), true},
	{"Micron", regexp.MustCompile(`(?i)^MICRON[ _-]+`), true},
	{"Apple", regexp.MustCompile(`(?i)^APPLE[ _-]+`), true},
}

// Normalize trims all values and derives the vendor from the model if it is
// not set. A vendor name in front of the model is removed.
func Normalize(vendorName, model, serial string) (string, string, string) {
	vendorName = clean(vendorName)
	model = clean(model)
	serial = clean(serial)

	for _, v := range vendors {
		loc := v.pattern.FindStringIndex(model)
		if loc == nil {
			continue
		}
		if vendorName == "" {
			vendorName = v.name
		}
		if v.strip {
			model = model[loc[1]:]
		}
		break
	}
	return vendorName, model, serial
}

// clean removes padding and control characters drives commonly report.
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
