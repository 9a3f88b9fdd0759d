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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/imagefile/driveinfo"
)

// Image is a handle on an EWF image. Metadata and the chunk offset table are
// loaded lazily, at most once. An Image is not safe for concurrent use.
type Image struct {
	fs       afero.Fs
	name     string
	segments *SegmentArray

	once           sync.Once
	err            error
	scans          int
	metadata       Metadata
	chunks         *ChunkTable
	checksumErrors []*ChecksumError

	overrides map[string]interface{}
}

// New creates a handle without touching the file system. Use it to create
// images with SetAttribute and NewWriter.
func New(fs afero.Fs, name string) *Image {
	return &Image{
		fs:        fs,
		name:      name,
		segments:  NewSegmentArray(fs, name),
		overrides: map[string]interface{}{},
	}
}

// Open opens an existing image. Only the signature of the first segment is
// checked, everything else is loaded on first use.
func Open(fs afero.Fs, name string) (*Image, error) {
	img := New(fs, name)
	f, err := img.segments.OpenReader(0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := readFileHeader(f); err != nil {
		return nil, errors.Wrap(err, name)
	}
	return img, nil
}

func (img *Image) load() error {
	img.once.Do(func() {
		img.err = img.scan()
	})
	return img.err
}

type scanState struct {
	volume      *VolumeSection
	header      *HeaderSection
	header2     *HeaderSection
	hash        *HashSection
	tables      []pendingTable
	segmentSize int64
}

func (img *Image) scan() error {
	img.scans++

	n, err := img.segments.Scan()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrap(ErrSegmentMissing, img.name)
	}

	st := &scanState{}
	for i := 0; i < n; i++ {
		if err := img.scanSegment(i, st); err != nil {
			return errors.Wrapf(err, "segment %d", i+1)
		}
	}

	if st.volume == nil {
		return errors.New("image has no volume section")
	}
	chunkSize := st.volume.ChunkSize()
	if chunkSize == 0 {
		return errors.New("image has a chunk size of zero")
	}

	m := &img.metadata
	m.Segments = n
	m.Sectors = st.volume.Sectors
	m.SectorSize = st.volume.SectorSize
	m.Size = int64(st.volume.Size())
	m.ChunkSize = int64(chunkSize)
	m.ChunkCount = (m.Size + m.ChunkSize - 1) / m.ChunkSize
	m.CompressionLevel = int(st.volume.CompressionLevel)
	m.SegmentSize = st.segmentSize
	if n == 1 {
		m.SegmentSize = m.Size
	}

	header := st.header2
	if header == nil {
		header = st.header
	}
	if header != nil {
		m.DriveVendor = header.Vendor
		m.DriveModel = strings.TrimSpace(strings.TrimPrefix(header.Model, header.Vendor))
		m.DriveSerialNumber = header.Serial
		m.AcquisitionTime = header.AcquisitionTime
		m.AcquisitionTool = header.Tool
		m.AcquisitionPlatform = header.Platform
		m.AcquisitionUser = header.User
	}
	m.DriveVendor, m.DriveModel, m.DriveSerialNumber = driveinfo.Normalize(m.DriveVendor, m.DriveModel, m.DriveSerialNumber)

	if st.hash != nil {
		m.HashMD5 = st.hash.MD5
	}

	img.chunks = buildChunkTable(chunkSize, st.tables)
	return nil
}

func (img *Image) scanSegment(index int, st *scanState) error {
	f, err := img.segments.OpenReader(index)
	if err != nil {
		return err
	}
	defer f.Close()

	if index == 0 {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		st.segmentSize = info.Size()
	}

	number, err := readFileHeader(f)
	if err != nil {
		return err
	}
	if number != uint32(index+1) {
		logger.Warn().Int("segment", index+1).Uint32("number", number).Msg("segment number does not match file name")
	}

	it := NewSectionIterator(f)
	for it.Next() {
		s := it.Section()
		img.check(index, s, "descriptor", s.Checksum)

		switch s.Name {
		case SectionHash:
			hash, err := DecodeHash(f, s)
			if err != nil {
				return err
			}
			img.check(index, s, "payload", hash.Checksum)
			st.hash = hash
		case SectionVolume, SectionDisk, SectionData:
			volume, err := DecodeVolume(f, s)
			if err != nil {
				return err
			}
			img.check(index, s, "payload", volume.Checksum)
			st.volume = volume
		case SectionHeader2:
			if st.header2 == nil {
				if st.header2, err = DecodeHeader(f, s); err != nil {
					return err
				}
			}
		case SectionHeader:
			if st.header == nil {
				if st.header, err = DecodeHeader(f, s); err != nil {
					return err
				}
			}
		case SectionTable:
			table, err := DecodeTable(f, s)
			if err != nil {
				return err
			}
			img.check(index, s, "header", table.HeaderChecksum)
			img.check(index, s, "offsets", table.OffsetsChecksum)
			st.tables = append(st.tables, pendingTable{segment: index, table: table})
		}
	}
	return it.Err()
}

func (img *Image) check(segment int, s *Section, field string, sum Checksum) {
	if sum.Valid() {
		return
	}
	cerr := &ChecksumError{
		Segment:    segment + 1,
		Section:    s.Name,
		Offset:     s.Offset,
		Field:      field,
		Stored:     sum.Stored,
		Calculated: sum.Calculated,
	}
	img.checksumErrors = append(img.checksumErrors, cerr)
	logger.Warn().Err(cerr).Msg("checksum mismatch")
}

// Metadata returns a copy of the image metadata.
func (img *Image) Metadata() (*Metadata, error) {
	if err := img.load(); err != nil {
		return nil, err
	}
	m := img.metadata
	return &m, nil
}

// Size returns the size of the media data in bytes.
func (img *Image) Size() (int64, error) {
	if err := img.load(); err != nil {
		return 0, err
	}
	return img.metadata.Size, nil
}

func (img *Image) Sectors() (uint64, error) {
	if err := img.load(); err != nil {
		return 0, err
	}
	return img.metadata.Sectors, nil
}

func (img *Image) SectorSize() (uint32, error) {
	if err := img.load(); err != nil {
		return 0, err
	}
	return img.metadata.SectorSize, nil
}

func (img *Image) ChunkSize() (int64, error) {
	if err := img.load(); err != nil {
		return 0, err
	}
	return img.metadata.ChunkSize, nil
}

func (img *Image) ChunkCount() (int64, error) {
	if err := img.load(); err != nil {
		return 0, err
	}
	return img.metadata.ChunkCount, nil
}

// ChunkTable returns the chunk offset table of the image.
func (img *Image) ChunkTable() (*ChunkTable, error) {
	if err := img.load(); err != nil {
		return nil, err
	}
	return img.chunks, nil
}

// ChecksumErrors lists all checksum mismatches found while loading.
func (img *Image) ChecksumErrors() ([]*ChecksumError, error) {
	if err := img.load(); err != nil {
		return nil, err
	}
	return img.checksumErrors, nil
}

// Sections decodes the section chain of the segment with the zero based index.
func (img *Image) Sections(index int) ([]*Section, error) {
	f, err := img.segments.OpenReader(index)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := readFileHeader(f); err != nil {
		return nil, err
	}
	var sections []*Section
	it := NewSectionIterator(f)
	for it.Next() {
		sections = append(sections, it.Section())
	}
	return sections, it.Err()
}

// Segments returns the number of segment files.
func (img *Image) Segments() (int, error) {
	return img.segments.Scan()
}

// SegmentPath returns the file name of a segment.
func (img *Image) SegmentPath(index int) (string, error) {
	return img.segments.Path(index)
}

// Attributes returns the image metadata keyed by attribute name. Values set
// with SetAttribute take precedence.
func (img *Image) Attributes() (map[string]interface{}, error) {
	if err := img.load(); err != nil {
		return nil, err
	}
	attributes := img.metadata.Attributes()
	for name, value := range img.overrides {
		attributes[name] = value
	}
	return attributes, nil
}

// Attribute returns a single attribute.
func (img *Image) Attribute(name string) (interface{}, error) {
	if value, ok := img.overrides[name]; ok {
		return value, nil
	}
	attributes, err := img.Attributes()
	if err != nil {
		return nil, err
	}
	value, ok := attributes[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownAttribute, name)
	}
	return value, nil
}

type attributeKind int

const (
	intAttribute attributeKind = iota
	stringAttribute
	timeAttribute
)

// nolint:gochecknoglobals
var writableAttributes = map[string]attributeKind{
	"segment_size":         intAttribute,
	"chunk_size":           intAttribute,
	"sector_size":          intAttribute,
	"compression_level":    intAttribute,
	"drive_vendor":         stringAttribute,
	"drive_model":          stringAttribute,
	"drive_serial_number":  stringAttribute,
	"acquisition_time":     timeAttribute,
	"acquisition_tool":     stringAttribute,
	"acquisition_platform": stringAttribute,
	"acquisition_user":     stringAttribute,
	"case_number":          stringAttribute,
	"evidence_number":      stringAttribute,
	"description":          stringAttribute,
	"notes":                stringAttribute,
}

// SetAttribute sets a value used by NewWriter: geometry (segment_size,
// chunk_size, sector_size, compression_level), drive and acquisition
// attributes, case_number, evidence_number, description and notes.
func (img *Image) SetAttribute(name string, value interface{}) error {
	kind, ok := writableAttributes[name]
	if !ok {
		return errors.Wrapf(ErrUnknownAttribute, "%s cannot be set", name)
	}

	var err error
	switch kind {
	case intAttribute:
		value, err = toInt64(value)
	case timeAttribute:
		value, err = toTime(value)
	case stringAttribute:
		s, ok := value.(string)
		if !ok {
			err = errors.Errorf("expected string, got %T", value)
		}
		value = s
	}
	if err != nil {
		return errors.Wrapf(err, "invalid value for %s", name)
	}
	img.overrides[name] = value
	return nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, errors.Errorf("expected integer, got %T", value)
}

func toTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		return time.Parse(time.RFC3339, v)
	}
	return time.Time{}, errors.Errorf("expected time, got %T", value)
}
