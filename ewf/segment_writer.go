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
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Sizes of the sections written after the last chunk of a segment:
// table and table2 headers, data, hash and next or done.
const (
	tableOverhead  = 2 * (descriptorSize + tableHeaderSize + 4)
	volumeOverhead = descriptorSize + volumeSize
	hashOverhead   = descriptorSize + hashSize
	trailingSize   = tableOverhead + volumeOverhead + hashOverhead + descriptorSize
)

// segmentWriter lays out one segment file:
// header2, header2, header, volume, sectors, chunks, table, table2, data,
// hash and next or done. Every byte is written in order, the volume, data,
// hash and terminal sections start out as zeros and are patched at
// finalize.
type segmentWriter struct {
	file     afero.File
	index    int
	capacity int64

	offset        int64
	volumeOffset  int64
	sectorsOffset int64
	trailerOffset int64
	entries       []uint32
	sealed        bool
	finalized     bool
}

func newSegmentWriter(file afero.File, index int, capacity int64, header2, header []byte) (*segmentWriter, error) {
	s := &segmentWriter{file: file, index: index, capacity: capacity}

	if err := s.write(encodeFileHeader(uint32(index + 1))); err != nil {
		return nil, err
	}
	for _, h := range []struct {
		name    string
		payload []byte
	}{
		{SectionHeader2, header2},
		{SectionHeader2, header2},
		{SectionHeader, header},
	} {
		if err := s.writeSection(h.name, h.payload); err != nil {
			return nil, err
		}
	}

	s.volumeOffset = s.offset
	s.sectorsOffset = s.offset + volumeOverhead
	if err := s.write(make([]byte, volumeOverhead+descriptorSize)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *segmentWriter) write(b []byte) error {
	if _, err := s.file.WriteAt(b, s.offset); err != nil {
		return errors.Wrapf(err, "could not write segment %d", s.index+1)
	}
	s.offset += int64(len(b))
	return nil
}

// writeSection writes a descriptor followed by payload and links it to the
// next section.
func (s *segmentWriter) writeSection(name string, payload []byte) error {
	section := &Section{
		Name:       name,
		Offset:     uint64(s.offset),
		Size:       uint64(descriptorSize + len(payload)),
		NextOffset: uint64(s.offset) + descriptorSize + uint64(len(payload)),
	}
	if err := s.write(section.encode()); err != nil {
		return err
	}
	return s.write(payload)
}

// patchSection overwrites a section written as zeros.
func (s *segmentWriter) patchSection(offset int64, name string, payload []byte) error {
	end := s.offset
	s.offset = offset
	err := s.writeSection(name, payload)
	s.offset = end
	return err
}

// fits reports whether one more chunk and its table entries fit in front of
// the trailing sections.
func (s *segmentWriter) fits(chunkSize int64) bool {
	need := s.offset + chunkSize + 4 + 8*int64(len(s.entries)+1) + trailingSize
	return need <= s.capacity
}

// writeChunk stores one encoded chunk. It returns false without writing if
// the segment is full.
func (s *segmentWriter) writeChunk(data []byte, compressed bool, chunkSize int64) (bool, error) {
	if s.sealed || !s.fits(chunkSize) {
		return false, nil
	}
	entry := uint32(s.offset)
	if compressed {
		entry |= entryFlag
	}
	if err := s.write(data); err != nil {
		return false, err
	}
	s.entries = append(s.entries, entry)
	return true, nil
}

// seal writes the sectors descriptor and the chunk tables once no more
// chunks follow. The data, hash and terminal sections are reserved.
func (s *segmentWriter) seal() error {
	if s.sealed {
		return nil
	}
	sectors := &Section{
		Name:       SectionSectors,
		Offset:     uint64(s.sectorsOffset),
		Size:       uint64(s.offset - s.sectorsOffset),
		NextOffset: uint64(s.offset),
	}
	if _, err := s.file.WriteAt(sectors.encode(), s.sectorsOffset); err != nil {
		return errors.Wrapf(err, "could not write segment %d", s.index+1)
	}

	table := encodeTable(0, s.entries)
	if err := s.writeSection(SectionTable, table); err != nil {
		return err
	}
	if err := s.writeSection(SectionTable2, table); err != nil {
		return err
	}
	s.trailerOffset = s.offset
	if err := s.write(make([]byte, volumeOverhead+hashOverhead+descriptorSize)); err != nil {
		return err
	}
	s.sealed = true
	return nil
}

// release seals a full segment and closes its file until finalize.
func (s *segmentWriter) release() error {
	if err := s.seal(); err != nil {
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// finalize writes the sections that depend on the complete image and closes
// the file. reopen is called if the segment was released.
func (s *segmentWriter) finalize(reopen func(int) (afero.File, error), volume *VolumeSection, digest []byte, last bool) error {
	if s.finalized {
		return nil
	}
	if s.file == nil {
		f, err := reopen(s.index)
		if err != nil {
			return err
		}
		s.file = f
	}
	s.finalized = true
	if err := s.writeTrailer(volume, digest, last); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *segmentWriter) writeTrailer(volume *VolumeSection, digest []byte, last bool) error {
	if err := s.seal(); err != nil {
		return err
	}

	offset := s.trailerOffset
	if err := s.patchSection(offset, SectionData, volume.encode()); err != nil {
		return err
	}
	offset += volumeOverhead
	if err := s.patchSection(offset, SectionHash, encodeHash(digest)); err != nil {
		return err
	}
	offset += hashOverhead

	name := SectionNext
	if last {
		name = SectionDone
	}
	end := &Section{Name: name, Offset: uint64(offset), Size: descriptorSize, NextOffset: uint64(offset)}
	if _, err := s.file.WriteAt(end.encode(), offset); err != nil {
		return errors.Wrapf(err, "could not write segment %d", s.index+1)
	}

	return s.patchSection(s.volumeOffset, SectionVolume, volume.encode())
}

// abort closes the file without writing the trailer.
func (s *segmentWriter) abort() {
	if !s.finalized {
		s.finalized = true
		if s.file != nil {
			_ = s.file.Close()
			s.file = nil
		}
	}
}
