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
	"hash/adler32"
	"io"

	"github.com/pkg/errors"
)

const (
	tableHeaderSize = 24
	// compressedFlag marks compressed chunks in expanded 64 bit offsets.
	compressedFlag uint64 = 1 << 63
	entryFlag      uint32 = 1 << 31
	entryMask      uint32 = entryFlag - 1
)

// TableSection is the decoded view of a table or table2 section.
type TableSection struct {
	Section *Section

	ChunkCount uint32
	BaseOffset uint64
	// Offsets are absolute file offsets, bit 63 set for compressed chunks.
	Offsets []uint64

	HeaderChecksum  Checksum
	OffsetsChecksum Checksum
}

// DecodeTable reads the chunk offsets of a table section.
func DecodeTable(r io.ReaderAt, s *Section) (*TableSection, error) {
	if err := s.checkPayload(r); err != nil {
		return nil, err
	}
	header := make([]byte, tableHeaderSize)
	if err := readFullAt(r, header, s.DataOffset()); err != nil {
		return nil, errors.Wrapf(err, "could not read %s header", s.Name)
	}

	t := &TableSection{
		Section:        s,
		ChunkCount:     binary.LittleEndian.Uint32(header[0:4]),
		BaseOffset:     binary.LittleEndian.Uint64(header[8:16]),
		HeaderChecksum: newChecksum(header[:20], header[20:24]),
	}

	if int64(t.ChunkCount)*4+tableHeaderSize+4 > s.DataSize() {
		return nil, errors.Wrapf(ErrCorruptSection, "%s section at 0x%x announces %d entries but holds %d bytes",
			s.Name, s.Offset, t.ChunkCount, s.DataSize())
	}

	entries := make([]byte, int(t.ChunkCount)*4+4)
	if err := readFullAt(r, entries, s.DataOffset()+tableHeaderSize); err != nil {
		return nil, errors.Wrapf(err, "could not read %s entries", s.Name)
	}
	t.OffsetsChecksum = newChecksum(entries[:len(entries)-4], entries[len(entries)-4:])

	t.Offsets = make([]uint64, t.ChunkCount)
	for i := range t.Offsets {
		t.Offsets[i] = expandOffset(t.BaseOffset, binary.LittleEndian.Uint32(entries[i*4:]))
	}
	return t, nil
}

func expandOffset(base uint64, entry uint32) uint64 {
	offset := base + uint64(entry&entryMask)
	if entry&entryFlag != 0 {
		offset |= compressedFlag
	}
	return offset
}

// encodeTable renders the payload of a table section from entries relative
// to base.
func encodeTable(base uint64, entries []uint32) []byte {
	buf := make([]byte, tableHeaderSize+len(entries)*4+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(entries)))
	binary.LittleEndian.PutUint64(buf[8:16], base)
	binary.LittleEndian.PutUint32(buf[20:24], adler32.Checksum(buf[:20]))

	body := buf[tableHeaderSize:]
	for i, entry := range entries {
		binary.LittleEndian.PutUint32(body[i*4:], entry)
	}
	binary.LittleEndian.PutUint32(body[len(entries)*4:], adler32.Checksum(body[:len(entries)*4]))
	return buf
}

func tableSectionSize(entries int) int64 {
	return descriptorSize + tableHeaderSize + int64(entries)*4 + 4
}
