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
	"encoding/binary"
	"encoding/hex"
	"hash/adler32"
	"io"

	"github.com/pkg/errors"
)

const hashSize = 36

// HashSection is the decoded view of a hash section.
type HashSection struct {
	Section  *Section
	MD5      string
	Checksum Checksum
}

// DecodeHash reads the MD5 digest of the media data.
func DecodeHash(r io.ReaderAt, s *Section) (*HashSection, error) {
	buf := make([]byte, hashSize)
	if err := readFullAt(r, buf, s.DataOffset()); err != nil {
		return nil, errors.Wrap(err, "could not read hash section")
	}
	return &HashSection{
		Section:  s,
		MD5:      hex.EncodeToString(buf[:16]),
		Checksum: newChecksum(buf[:32], buf[32:]),
	}, nil
}

func encodeHash(digest []byte) []byte {
	buf := make([]byte, hashSize)
	copy(buf[:16], digest)
	binary.LittleEndian.PutUint32(buf[32:], adler32.Checksum(buf[:32]))
	return buf
}
