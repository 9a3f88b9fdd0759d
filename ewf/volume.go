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
	"hash/adler32"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const volumeSize = 1052

// Media types and flags of the volume section.
const (
	MediaRemovable uint32 = 0x00
	MediaFixed     uint32 = 0x01
	MediaOptical   uint32 = 0x03
	MediaLogical   uint32 = 0x0e
	MediaRAM       uint32 = 0x10

	FlagImage    uint32 = 0x01
	FlagPhysical uint32 = 0x02
)

// Compression levels stored in the volume section.
const (
	CompressionNone uint32 = 0
	CompressionFast uint32 = 1
	CompressionBest uint32 = 2
)

type volumeData struct {
	MediaType        uint32
	ChunkCount       uint32
	ChunkSectors     uint32
	SectorSize       uint32
	Sectors          uint64
	CHS              [12]byte
	MediaFlags       uint32
	Reserved1        [12]byte
	CompressionLevel uint32
	Reserved2        [8]byte
	GUID             [16]byte
	Reserved3        [968]byte
	Checksum         uint32
}

// VolumeSection is the decoded view of a volume, disk or data section.
type VolumeSection struct {
	Section *Section

	MediaType        uint32
	ChunkCount       uint32
	ChunkSectors     uint32
	SectorSize       uint32
	Sectors          uint64
	MediaFlags       uint32
	CompressionLevel uint32
	GUID             uuid.UUID
	Checksum         Checksum
}

// DecodeVolume reads the fixed geometry layout of a volume, disk or data section.
func DecodeVolume(r io.ReaderAt, s *Section) (*VolumeSection, error) {
	buf := make([]byte, volumeSize)
	if err := readFullAt(r, buf, s.DataOffset()); err != nil {
		return nil, errors.Wrapf(err, "could not read %s section", s.Name)
	}

	var data volumeData
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &data); err != nil {
		return nil, err
	}

	return &VolumeSection{
		Section:          s,
		MediaType:        data.MediaType,
		ChunkCount:       data.ChunkCount,
		ChunkSectors:     data.ChunkSectors,
		SectorSize:       data.SectorSize,
		Sectors:          data.Sectors,
		MediaFlags:       data.MediaFlags,
		CompressionLevel: data.CompressionLevel,
		GUID:             uuid.UUID(data.GUID),
		Checksum:         newChecksum(buf[:volumeSize-4], buf[volumeSize-4:]),
	}, nil
}

// ChunkSize is the uncompressed size of a chunk in bytes.
func (v *VolumeSection) ChunkSize() uint64 {
	return uint64(v.ChunkSectors) * uint64(v.SectorSize)
}

// Size is the size of the media in bytes.
func (v *VolumeSection) Size() uint64 {
	return v.Sectors * uint64(v.SectorSize)
}

func (v *VolumeSection) encode() []byte {
	data := volumeData{
		MediaType:        v.MediaType,
		ChunkCount:       v.ChunkCount,
		ChunkSectors:     v.ChunkSectors,
		SectorSize:       v.SectorSize,
		Sectors:          v.Sectors,
		MediaFlags:       v.MediaFlags,
		CompressionLevel: v.CompressionLevel,
		GUID:             v.GUID,
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &data)
	b := buf.Bytes()
	sum := adler32.Checksum(b[:volumeSize-4])
	binary.LittleEndian.PutUint32(b[volumeSize-4:], sum)
	v.Checksum = Checksum{Stored: sum, Calculated: sum}
	return b
}
