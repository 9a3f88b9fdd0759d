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
	"crypto/md5" // #nosec
	"encoding/hex"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nolint:gochecknoglobals
var testTime = time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)

// testOptions returns options for segments that hold chunksPerSegment
// uncompressed chunks of chunkSectors sectors.
func testOptions(t *testing.T, chunkSectors uint32, chunksPerSegment int, level uint32) Options {
	opts := Options{
		SectorSize:       512,
		ChunkSectors:     chunkSectors,
		CompressionLevel: level,
		Header:           HeaderInfo{User: "tester", Time: testTime},
	}
	minimum, err := MinimumSegmentSize(opts)
	require.NoError(t, err)
	opts.SegmentSize = minimum + int64(chunksPerSegment-1)*(int64(chunkSectors)*512+12)
	return opts
}

// testData alternates random and zero blocks of 1024 bytes.
func testData(size int) []byte {
	data := make([]byte, size)
	rnd := rand.New(rand.NewSource(int64(size))) // #nosec
	for i := 0; i < size; i += 2048 {
		end := i + 1024
		if end > size {
			end = size
		}
		_, _ = rnd.Read(data[i:end])
	}
	return data
}

// padded appends zeros up to the next sector boundary.
func padded(data []byte) []byte {
	if rest := len(data) % 512; rest != 0 {
		return append(append([]byte{}, data...), make([]byte, 512-rest)...)
	}
	return data
}

func writeImage(t *testing.T, fs afero.Fs, name string, data []byte, opts Options) {
	w, err := Create(fs, name, opts)
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Close())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		level uint32
		size  int
	}{
		{"uncompressed", CompressionNone, 40*1024 + 300},
		{"fast", CompressionFast, 40*1024 + 300},
		{"best", CompressionBest, 40*1024 + 300},
		{"exact chunks", CompressionNone, 24 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			data := testData(tt.size)
			writeImage(t, fs, "case/disk", data, testOptions(t, 2, 4, tt.level))

			img, err := Open(fs, "case/disk.E01")
			require.NoError(t, err)

			segments, err := img.Segments()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, segments, 3)

			want := padded(data)
			size, err := img.Size()
			require.NoError(t, err)
			assert.Equal(t, int64(len(want)), size)

			r, err := img.NewReader()
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(want, got), "image data differs")

			sum := md5.Sum(want) // #nosec
			hash, err := img.Attribute("hash_md5")
			require.NoError(t, err)
			assert.Equal(t, hex.EncodeToString(sum[:]), hash)

			level, err := img.Attribute("compression_level")
			require.NoError(t, err)
			assert.Equal(t, int(tt.level), level)

			checksumErrors, err := img.ChecksumErrors()
			require.NoError(t, err)
			assert.Empty(t, checksumErrors)

			// reads straddling chunk and segment borders
			for _, off := range []int64{0, 1000, 1023, 1024, 4095, 4096, 8191, size - 600} {
				buf := make([]byte, 600)
				n, err := r.ReadAt(buf, off)
				require.NoError(t, err)
				assert.Equal(t, 600, n)
				assert.Equal(t, want[off:off+600], buf)
			}
		})
	}
}

func TestImage_chunkTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	const chunkSize = 1024
	data := testData(14*chunkSize + 512)
	writeImage(t, fs, "disk", data, testOptions(t, 2, 4, CompressionNone))

	img, err := Open(fs, "disk")
	require.NoError(t, err)
	segments, err := img.Segments()
	require.NoError(t, err)
	assert.Equal(t, 4, segments)

	table, err := img.ChunkTable()
	require.NoError(t, err)
	ranges := table.Ranges()
	require.Len(t, ranges, 4)

	size, err := img.Size()
	require.NoError(t, err)
	for pos := int64(0); pos < size; pos++ {
		segment, chunk, _, compressed, err := table.Locate(uint64(pos))
		require.NoError(t, err)
		globalChunk := int(pos / chunkSize)
		if segment != globalChunk/4 || chunk != globalChunk%4 || compressed {
			t.Fatalf("Locate(%d) = segment %d chunk %d, want segment %d chunk %d", pos, segment, chunk, globalChunk/4, globalChunk%4)
		}
	}

	for i, r := range ranges[:len(ranges)-1] {
		segment, chunk, _, _, err := table.Locate(r.End + 1)
		require.NoError(t, err)
		assert.Equal(t, ranges[i+1].Segment, segment)
		assert.Equal(t, 0, chunk)
	}

	_, _, _, _, err = table.Locate(ranges[len(ranges)-1].End + 1)
	assert.True(t, errors.Is(err, ErrSegmentNotFound))
}

func TestReader_lastChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := testData(3*2048 + 700)
	writeImage(t, fs, "disk", data, testOptions(t, 4, 8, CompressionNone))

	img, err := Open(fs, "disk.E01")
	require.NoError(t, err)

	count, err := img.ChunkCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	chunkSize, err := img.ChunkSize()
	require.NoError(t, err)
	assert.Equal(t, int64(2048), chunkSize)

	r, err := img.NewReader()
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, padded(data), got)
}

func TestReader_boundaries(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := padded(testData(5000))
	writeImage(t, fs, "disk", data, testOptions(t, 2, 2, CompressionFast))

	img, err := Open(fs, "disk")
	require.NoError(t, err)
	r, err := img.NewReader()
	require.NoError(t, err)
	defer r.Close()

	size := r.Size()
	assert.Equal(t, int64(len(data)), size)

	pos, err := r.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, size, pos)

	n, err := r.Read(make([]byte, 10))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	_, err = r.Seek(size+1, io.SeekStart)
	assert.True(t, errors.Is(err, ErrInvalidOffset))
	_, err = r.Seek(-1, io.SeekStart)
	assert.True(t, errors.Is(err, ErrInvalidOffset))
	_, err = r.Seek(0, 42)
	assert.Error(t, err)

	pos, err = r.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, size-10, pos)
	buf := make([]byte, 100)
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[size-10:], buf[:n])

	pos, err = r.Seek(-20, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, size-20, pos)

	n, err = r.ReadAt(buf[:10], size-5)
	assert.Equal(t, 5, n)
	assert.Equal(t, io.EOF, err)

	n, err = r.ReadAt(buf[:10], size)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// ReadAt does not move the position
	n, err = r.Read(buf[:20])
	require.NoError(t, err)
	assert.Equal(t, data[size-20:], buf[:n])

	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestImage_metadataOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "disk", testData(8192), testOptions(t, 2, 2, CompressionNone))

	img, err := Open(fs, "disk.E01")
	require.NoError(t, err)
	assert.Equal(t, 0, img.scans)

	first, err := img.Attributes()
	require.NoError(t, err)
	second, err := img.Attributes()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = img.Size()
	require.NoError(t, err)
	r, err := img.NewReader()
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, 1, img.scans)

	for _, key := range []string{
		"segments", "segment_size", "chunk_size", "chunk_count", "compression_level",
		"drive_vendor", "drive_model", "drive_serial_number", "acquisition_time",
		"acquisition_tool", "acquisition_platform", "acquisition_user", "hash_md5",
	} {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, "tester", first["acquisition_user"])
	assert.Equal(t, testTime, first["acquisition_time"])
	assert.Equal(t, int64(1024), first["chunk_size"])
	assert.Equal(t, int64(8), first["chunk_count"])
}

func TestImage_singleSegment(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := testData(10000)
	writeImage(t, fs, "disk", data, Options{SegmentSize: 1 << 20, Header: HeaderInfo{Time: testTime}})

	img, err := Open(fs, "disk.E01")
	require.NoError(t, err)

	attributes, err := img.Attributes()
	require.NoError(t, err)
	assert.Equal(t, 1, attributes["segments"])
	assert.Equal(t, int64(len(padded(data))), attributes["segment_size"])
}

func TestImage_multiSegmentSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "disk", testData(8192), testOptions(t, 2, 2, CompressionNone))

	info, err := fs.Stat("disk.E01")
	require.NoError(t, err)

	img, err := Open(fs, "disk.E01")
	require.NoError(t, err)
	segmentSize, err := img.Attribute("segment_size")
	require.NoError(t, err)
	assert.Equal(t, info.Size(), segmentSize)
}

func TestImage_Sections(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "disk", testData(8192), testOptions(t, 2, 2, CompressionNone))

	img, err := Open(fs, "disk")
	require.NoError(t, err)
	count, err := img.Segments()
	require.NoError(t, err)
	require.Greater(t, count, 1)

	names := func(index int) []string {
		sections, err := img.Sections(index)
		require.NoError(t, err)
		var names []string
		for _, s := range sections {
			names = append(names, s.Name)
			assert.True(t, s.Checksum.Valid(), s.String())
		}
		return names
	}

	layout := []string{
		SectionHeader2, SectionHeader2, SectionHeader, SectionVolume, SectionSectors,
		SectionTable, SectionTable2, SectionData, SectionHash,
	}
	assert.Equal(t, append(layout, SectionNext), names(0))
	assert.Equal(t, append(layout, SectionDone), names(count-1))

	for i := 0; i < count; i++ {
		f, err := img.segments.OpenReader(i)
		require.NoError(t, err)
		number, err := readFileHeader(f)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), number)
		require.NoError(t, f.Close())
	}
}

func TestImage_checksumErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := padded(testData(5000))
	writeImage(t, fs, "disk", data, testOptions(t, 2, 2, CompressionNone))

	img, err := Open(fs, "disk")
	require.NoError(t, err)
	sections, err := img.Sections(0)
	require.NoError(t, err)
	var volume *Section
	for _, s := range sections {
		if s.Name == SectionVolume {
			volume = s
		}
	}
	require.NotNil(t, volume)

	raw, err := afero.ReadFile(fs, "disk.E01")
	require.NoError(t, err)
	raw[volume.DataOffset()+100]++
	require.NoError(t, afero.WriteFile(fs, "disk.E01", raw, 0644))

	img, err = Open(fs, "disk")
	require.NoError(t, err)
	checksumErrors, err := img.ChecksumErrors()
	require.NoError(t, err)
	require.Len(t, checksumErrors, 1)
	assert.True(t, errors.Is(checksumErrors[0], ErrChecksumMismatch))
	assert.Equal(t, 1, checksumErrors[0].Segment)
	assert.Equal(t, SectionVolume, checksumErrors[0].Section)

	r, err := img.NewReader()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReader_corruptChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "disk", make([]byte, 8192), testOptions(t, 2, 4, CompressionFast))

	img, err := Open(fs, "disk")
	require.NoError(t, err)
	table, err := img.ChunkTable()
	require.NoError(t, err)
	_, _, offset, compressed, err := table.Locate(0)
	require.NoError(t, err)
	require.True(t, compressed)

	raw, err := afero.ReadFile(fs, "disk.E01")
	require.NoError(t, err)
	raw[offset], raw[offset+1] = 0xff, 0xff
	require.NoError(t, afero.WriteFile(fs, "disk.E01", raw, 0644))

	img, err = Open(fs, "disk")
	require.NoError(t, err)
	r, err := img.NewReader()
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read(make([]byte, 10))
	assert.True(t, errors.Is(err, ErrCorruptChunk))

	// other chunks are still readable
	buf := make([]byte, 10)
	_, err = r.ReadAt(buf, 2048)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 10), buf)
}

func TestOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "disk.dd", make([]byte, 100), 0644))

	_, err := Open(fs, "disk.dd")
	assert.Error(t, err)
	_, err = Open(fs, "missing.E01")
	assert.True(t, errors.Is(err, ErrSegmentMissing))

	require.NoError(t, afero.WriteFile(fs, "bad.E01", make([]byte, 100), 0644))
	_, err = Open(fs, "bad.E01")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestImage_attributes(t *testing.T) {
	fs := afero.NewMemMapFs()
	img := New(fs, "out/disk")

	for name, value := range map[string]interface{}{
		"chunk_size":          4096,
		"segment_size":        "1048576",
		"compression_level":   int64(2),
		"drive_vendor":        "Seagate",
		"drive_model":         "ST1000DM003",
		"drive_serial_number": "Z1D5ABCD",
		"acquisition_time":    "2021-02-03T04:05:06Z",
		"acquisition_tool":    "7.1",
		"acquisition_user":    "jane",
		"case_number":         "2021-1",
		"notes":               "seized",
	} {
		require.NoError(t, img.SetAttribute(name, value), name)
	}

	assert.True(t, errors.Is(img.SetAttribute("segments", 3), ErrUnknownAttribute))
	assert.True(t, errors.Is(img.SetAttribute("color", "red"), ErrUnknownAttribute))
	assert.Error(t, img.SetAttribute("chunk_size", "big"))
	assert.Error(t, img.SetAttribute("drive_model", 42))

	value, err := img.Attribute("drive_model")
	require.NoError(t, err)
	assert.Equal(t, "ST1000DM003", value)

	w, err := img.NewWriter()
	require.NoError(t, err)
	data := testData(20000)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	img, err = Open(fs, "out/disk.E01")
	require.NoError(t, err)
	attributes, err := img.Attributes()
	require.NoError(t, err)

	assert.Equal(t, int64(4096), attributes["chunk_size"])
	assert.Equal(t, 2, attributes["compression_level"])
	assert.Equal(t, "Seagate", attributes["drive_vendor"])
	assert.Equal(t, "ST1000DM003", attributes["drive_model"])
	assert.Equal(t, "Z1D5ABCD", attributes["drive_serial_number"])
	assert.Equal(t, "Encase v7.1", attributes["acquisition_tool"])
	assert.Equal(t, "jane", attributes["acquisition_user"])
	assert.Equal(t, testTime, attributes["acquisition_time"])
	assert.Equal(t, 1, attributes["segments"])

	_, err = img.Attribute("nonexistent")
	assert.True(t, errors.Is(err, ErrUnknownAttribute))
}

func TestImage_attributesChunkSize(t *testing.T) {
	img := New(afero.NewMemMapFs(), "disk")
	require.NoError(t, img.SetAttribute("chunk_size", 1000))
	_, err := img.NewWriter()
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestImage_corruptSectionSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "disk", padded(testData(3000)), testOptions(t, 2, 4, CompressionFast))

	raw, err := afero.ReadFile(fs, "disk.E01")
	require.NoError(t, err)
	// size field of the first header2 descriptor
	for i := 13 + 24; i < 13+32; i++ {
		raw[i] = 0xff
	}
	require.NoError(t, afero.WriteFile(fs, "disk.E01", raw, 0644))

	img, err := Open(fs, "disk")
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		_, err = img.Attributes()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptSection), err.Error())
}

func TestImage_driveVendor(t *testing.T) {
	tests := []struct {
		name      string
		vendor    string
		model     string
		wantModel string
	}{
		{"unknown vendor", "Acme", "X100", "X100"},
		{"vendor in model", "Acme", "Acme X100", "X100"},
		{"vendor only", "Acme", "", ""},
		{"derived vendor", "", "WDC WD5000", "WD5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			img := New(fs, "disk")
			require.NoError(t, img.SetAttribute("drive_vendor", tt.vendor))
			require.NoError(t, img.SetAttribute("drive_model", tt.model))
			require.NoError(t, img.SetAttribute("acquisition_time", testTime))

			w, err := img.NewWriter()
			require.NoError(t, err)
			_, err = w.Write(make([]byte, 4096))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			img, err = Open(fs, "disk")
			require.NoError(t, err)
			vendorName, err := img.Attribute("drive_vendor")
			require.NoError(t, err)
			model, err := img.Attribute("drive_model")
			require.NoError(t, err)

			wantVendor := tt.vendor
			if wantVendor == "" {
				wantVendor = "Western Digital"
			}
			assert.Equal(t, wantVendor, vendorName)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}
