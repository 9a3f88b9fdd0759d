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

package ewf

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	numericSegments = 99
	// MaxSegments is the number of segment names the naming scheme can produce.
	MaxSegments = numericSegments + 22*26*26
)

// SegmentName returns the file extension of the segment with the zero based
// index. The first 99 segments are named E01 to E99, later segments EAA to ZZZ.
func SegmentName(index int) (string, error) {
	switch {
	case index < 0:
		return "", errors.Wrapf(ErrOutOfRange, "segment index %d", index)
	case index < numericSegments:
		return fmt.Sprintf("E%02d", index+1), nil
	case index < MaxSegments:
		value := index - numericSegments
		return string([]byte{
			byte('E' + value/676),
			byte('A' + (value%676)/26),
			byte('A' + value%26),
		}), nil
	}
	return "", errors.Wrapf(ErrOutOfRange, "segment index %d exceeds %d", index, MaxSegments-1)
}

// segmentIndex is the inverse of SegmentName.
func segmentIndex(ext string) (int, bool) {
	ext = strings.ToUpper(ext)
	if len(ext) != 3 {
		return 0, false
	}
	if ext[0] == 'E' && isDigit(ext[1]) && isDigit(ext[2]) {
		n := int(ext[1]-'0')*10 + int(ext[2]-'0')
		if n == 0 {
			return 0, false
		}
		return n - 1, true
	}
	for _, c := range []byte(ext) {
		if c < 'A' || c > 'Z' {
			return 0, false
		}
	}
	if ext[0] < 'E' {
		return 0, false
	}
	value := int(ext[0]-'E')*676 + int(ext[1]-'A')*26 + int(ext[2]-'A')
	return numericSegments + value, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
