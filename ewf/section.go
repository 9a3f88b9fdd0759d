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
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	fileHeaderSize = 13
	descriptorSize = 76
	// the descriptor checksum covers everything before the checksum field
	descriptorSumSize = descriptorSize - 4
	sectionNameSize   = 16
)

// Section names used by this package.
const (
	SectionHeader  = "header"
	SectionHeader2 = "header2"
	SectionVolume  = "volume"
	SectionDisk    = "disk"
	SectionData    = "data"
	SectionSectors = "sectors"
	SectionTable   = "table"
	SectionTable2  = "table2"
	SectionHash    = "hash"
	SectionNext    = "next"
	SectionDone    = "done"
)

var signature = []byte("EVF\x09\x0d\x0a\xff\x00") // nolint:gochecknoglobals

// Checksum holds an Adler-32 as stored in the image and as calculated over
// the bytes it protects.
type Checksum struct {
	Stored     uint32
	Calculated uint32
}

// Valid reports whether the stored checksum matches.
func (c Checksum) Valid() bool {
	return c.Stored == c.Calculated
}

func newChecksum(data []byte, stored []byte) Checksum {
	return Checksum{
		Stored:     binary.LittleEndian.Uint32(stored),
		Calculated: adler32.Checksum(data),
	}
}

// Section is a generic section descriptor.
type Section struct {
	Name       string
	Offset     uint64
	NextOffset uint64
	Size       uint64
	Checksum   Checksum
}

// DataOffset is the file offset of the section payload.
func (s *Section) DataOffset() int64 {
	return int64(s.Offset) + descriptorSize
}

// DataSize is the payload size announced by the descriptor. Sizes that do
// not fit a file offset yield -1.
func (s *Section) DataSize() int64 {
	if s.Offset > math.MaxInt64 || s.Size > math.MaxInt64-s.Offset {
		return -1
	}
	if s.Size < descriptorSize {
		return 0
	}
	return int64(s.Size) - descriptorSize
}

// checkPayload verifies that the announced payload lies within r. It must
// be called before a payload sized by the descriptor is allocated.
func (s *Section) checkPayload(r io.ReaderAt) error {
	size := s.DataSize()
	if size < 0 {
		return errors.Wrapf(ErrCorruptSection, "%s section at 0x%x announces size 0x%x", s.Name, s.Offset, s.Size)
	}
	if size == 0 {
		return nil
	}
	last := make([]byte, 1)
	if err := readFullAt(r, last, s.DataOffset()+size-1); err != nil {
		return errors.Wrapf(ErrCorruptSection, "%s section at 0x%x ends beyond the segment (size 0x%x)", s.Name, s.Offset, s.Size)
	}
	return nil
}

// Last reports whether the section terminates the chain of its segment.
func (s *Section) Last() bool {
	return s.NextOffset == s.Offset
}

func (s *Section) String() string {
	return fmt.Sprintf("<section %s offset=0x%x next=0x%x size=0x%x>", s.Name, s.Offset, s.NextOffset, s.Size)
}

func decodeSection(r io.ReaderAt, offset uint64) (*Section, error) {
	buf := make([]byte, descriptorSize)
	if err := readFullAt(r, buf, int64(offset)); err != nil {
		return nil, errors.Wrapf(err, "could not read section descriptor at 0x%x", offset)
	}
	return &Section{
		Name:       string(bytes.TrimRight(buf[:sectionNameSize], "\x00")),
		Offset:     offset,
		NextOffset: binary.LittleEndian.Uint64(buf[16:24]),
		Size:       binary.LittleEndian.Uint64(buf[24:32]),
		Checksum:   newChecksum(buf[:descriptorSumSize], buf[descriptorSumSize:]),
	}, nil
}

// encode renders the descriptor and fills in its checksum.
func (s *Section) encode() []byte {
	buf := make([]byte, descriptorSize)
	copy(buf[:sectionNameSize], s.Name)
	binary.LittleEndian.PutUint64(buf[16:24], s.NextOffset)
	binary.LittleEndian.PutUint64(buf[24:32], s.Size)
	sum := adler32.Checksum(buf[:descriptorSumSize])
	binary.LittleEndian.PutUint32(buf[descriptorSumSize:], sum)
	s.Checksum = Checksum{Stored: sum, Calculated: sum}
	return buf
}

// SectionIterator walks the section chain of one segment. Every iterator
// decodes from the first section again; iterators share no state.
//     it := NewSectionIterator(f)
//     for it.Next() {
//         fmt.Println(it.Section())
//     }
//     err := it.Err()
type SectionIterator struct {
	r       io.ReaderAt
	offset  uint64
	section *Section
	done    bool
	err     error
}

// NewSectionIterator starts at the first section behind the file header.
func NewSectionIterator(r io.ReaderAt) *SectionIterator {
	return &SectionIterator{r: r, offset: fileHeaderSize}
}

// Next decodes the next section. It returns false at the end of the chain or
// on error.
func (it *SectionIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if it.section != nil && it.offset < it.section.Offset+descriptorSize {
		it.err = errors.Errorf("section %s at 0x%x links back to 0x%x", it.section.Name, it.section.Offset, it.offset)
		return false
	}

	section, err := decodeSection(it.r, it.offset)
	if err != nil {
		it.err = err
		return false
	}
	it.section = section
	if section.Last() {
		it.done = true
	} else {
		it.offset = section.NextOffset
	}
	return true
}

// Section returns the section decoded by the last call to Next.
func (it *SectionIterator) Section() *Section {
	return it.section
}

// Err returns the error that stopped the iteration, if any.
func (it *SectionIterator) Err() error {
	return it.err
}

func readFileHeader(r io.ReaderAt) (uint32, error) {
	buf := make([]byte, fileHeaderSize)
	if err := readFullAt(r, buf, 0); err != nil {
		return 0, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if !bytes.Equal(buf[:len(signature)], signature) {
		return 0, errors.Wrapf(ErrInvalidSignature, "got %q", buf[:len(signature)])
	}
	return binary.LittleEndian.Uint32(buf[9:13]), nil
}

func encodeFileHeader(segment uint32) []byte {
	buf := make([]byte, fileHeaderSize)
	copy(buf, signature)
	buf[8] = 1
	binary.LittleEndian.PutUint32(buf[9:13], segment)
	return buf
}

// IsInstance reports whether name starts with the EWF signature. Only the
// signature is checked. A bare base name is resolved to its first segment.
func IsInstance(fs afero.Fs, name string) (bool, error) {
	exists, err := afero.Exists(fs, name)
	if err != nil {
		return false, err
	}
	if !exists {
		if name, err = NewSegmentArray(fs, name).Path(0); err != nil {
			return false, err
		}
	}

	f, err := fs.Open(name)
	if err != nil {
		if exists {
			return false, err
		}
		return false, nil
	}
	defer f.Close()

	buf := make([]byte, len(signature))
	if err := readFullAt(f, buf, 0); err != nil {
		return false, nil
	}
	return bytes.Equal(buf, signature), nil
}

// readFullAt reads exactly len(buf) bytes at off.
func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// readAtMost reads up to len(buf) bytes at off and treats the end of file as
// a short read.
func readAtMost(r io.ReaderAt, buf []byte, off int64) (int, error) {
	n, err := r.ReadAt(buf, off)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}
