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
	"compress/zlib"
	"crypto/md5" // #nosec
	"encoding/binary"
	"hash"
	"hash/adler32"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// maxSegmentSize keeps every chunk offset below the 31 bit limit of table entries.
const maxSegmentSize = 1<<31 - 1

// Options configure a Writer. Zero values are replaced by DefaultOptions.
type Options struct {
	SegmentSize      int64
	SectorSize       uint32
	ChunkSectors     uint32
	CompressionLevel uint32
	MediaType        uint32
	MediaFlags       uint32
	Header           HeaderInfo
}

// DefaultOptions are used for every option that is not set.
// nolint:gochecknoglobals
var DefaultOptions = Options{
	SegmentSize:  1500 * 1024 * 1024,
	SectorSize:   512,
	ChunkSectors: 64,
	MediaType:    MediaFixed,
	MediaFlags:   FlagImage,
	Header: HeaderInfo{
		Tool:     "imagefile",
		Platform: runtime.GOOS,
	},
}

type writerState int

const (
	writerIdle writerState = iota
	writerOpen
	writerClosed
)

// Writer creates an image from a linear stream of media data. Segments are
// created on demand. The image is complete after Close.
type Writer struct {
	segments  *SegmentArray
	opts      Options
	chunkSize int64
	header2   []byte
	header    []byte
	guid      uuid.UUID

	state   writerState
	written []*segmentWriter
	active  *segmentWriter
	total   int64
	hash    hash.Hash

	buf     []byte
	encoded []byte
	zbuf    bytes.Buffer
	zw      *zlib.Writer
}

// Create validates opts and returns a Writer for a new image. No file is
// created before the first write or Close.
func Create(fs afero.Fs, name string, opts Options) (*Writer, error) {
	return newWriter(newWriteArray(fs, name), opts)
}

// NewWriter returns a Writer configured by the attributes set with
// SetAttribute.
func (img *Image) NewWriter() (*Writer, error) {
	opts, err := img.writerOptions()
	if err != nil {
		return nil, err
	}
	return Create(img.fs, img.name, opts)
}

func newWriter(segments *SegmentArray, opts Options) (*Writer, error) {
	opts, err := prepareOptions(opts)
	if err != nil {
		return nil, err
	}
	header2, header, err := encodeHeaders(opts.Header)
	if err != nil {
		return nil, err
	}
	chunkSize := int64(opts.ChunkSectors) * int64(opts.SectorSize)
	if minimum := minimumSegmentSize(chunkSize, header2, header); opts.SegmentSize < minimum {
		return nil, errors.Wrapf(ErrConfiguration, "segment size %d is below the minimum of %d", opts.SegmentSize, minimum)
	}

	w := &Writer{
		segments:  segments,
		opts:      opts,
		chunkSize: chunkSize,
		header2:   header2,
		header:    header,
		guid:      uuid.New(),
		hash:      md5.New(), // #nosec
		buf:       make([]byte, 0, chunkSize),
	}
	if opts.CompressionLevel != CompressionNone {
		level := zlib.BestSpeed
		if opts.CompressionLevel == CompressionBest {
			level = zlib.BestCompression
		}
		if w.zw, err = zlib.NewWriterLevel(&w.zbuf, level); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func prepareOptions(opts Options) (Options, error) {
	if err := mergo.Merge(&opts, DefaultOptions); err != nil {
		return opts, err
	}
	if opts.Header.Time.IsZero() {
		opts.Header.Time = time.Now().UTC()
	}
	switch {
	case opts.SegmentSize > maxSegmentSize:
		return opts, errors.Wrapf(ErrConfiguration, "segment size %d exceeds %d", opts.SegmentSize, maxSegmentSize)
	case opts.SegmentSize < 0:
		return opts, errors.Wrapf(ErrConfiguration, "negative segment size %d", opts.SegmentSize)
	case opts.CompressionLevel > CompressionBest:
		return opts, errors.Wrapf(ErrConfiguration, "unknown compression level %d", opts.CompressionLevel)
	case int64(opts.ChunkSectors)*int64(opts.SectorSize) > maxSegmentSize:
		return opts, errors.Wrapf(ErrConfiguration, "chunk of %d sectors is too large", opts.ChunkSectors)
	}
	return opts, nil
}

func encodeHeaders(info HeaderInfo) ([]byte, []byte, error) {
	header2, err := encodeHeader(SectionHeader2, info)
	if err != nil {
		return nil, nil, err
	}
	header, err := encodeHeader(SectionHeader, info)
	if err != nil {
		return nil, nil, err
	}
	return header2, header, nil
}

func minimumSegmentSize(chunkSize int64, header2, header []byte) int64 {
	overhead := int64(fileHeaderSize) +
		2*(descriptorSize+int64(len(header2))) +
		descriptorSize + int64(len(header)) +
		volumeOverhead + descriptorSize + trailingSize
	return overhead + chunkSize + 4 + 8
}

// MinimumSegmentSize returns the smallest segment size that holds all
// sections of a segment and one chunk.
func MinimumSegmentSize(opts Options) (int64, error) {
	opts, err := prepareOptions(opts)
	if err != nil {
		return 0, err
	}
	header2, header, err := encodeHeaders(opts.Header)
	if err != nil {
		return 0, err
	}
	return minimumSegmentSize(int64(opts.ChunkSectors)*int64(opts.SectorSize), header2, header), nil
}

// Write buffers p into chunks and stores every complete chunk.
func (w *Writer) Write(p []byte) (int, error) {
	if w.state == writerClosed {
		return 0, ErrClosed
	}
	n := 0
	for n < len(p) {
		c := cap(w.buf) - len(w.buf)
		if c > len(p)-n {
			c = len(p) - n
		}
		w.buf = append(w.buf, p[n:n+c]...)
		_, _ = w.hash.Write(p[n : n+c])
		n += c
		w.total += int64(c)

		if len(w.buf) == cap(w.buf) {
			if err := w.flushChunk(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Seek is not supported, images are written sequentially.
func (w *Writer) Seek(int64, int) (int64, error) {
	return 0, ErrNotSeekable
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.total
}

func (w *Writer) flushChunk() error {
	data, compressed, err := w.encodeChunk(w.buf)
	if err != nil {
		return err
	}
	for {
		if w.active == nil {
			if err := w.openSegment(); err != nil {
				return err
			}
		}
		ok, err := w.active.writeChunk(data, compressed, w.chunkSize)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if len(w.active.entries) == 0 {
			return errors.Wrap(ErrConfiguration, "chunk does not fit in an empty segment")
		}
		logger.Debug().Int("segment", w.active.index+1).Int("chunks", len(w.active.entries)).Msg("segment full")
		if err := w.active.release(); err != nil {
			return err
		}
		w.active = nil
	}
	w.buf = w.buf[:0]
	return nil
}

// encodeChunk compresses a chunk if that makes it smaller. Verbatim chunks
// are followed by their Adler-32.
func (w *Writer) encodeChunk(chunk []byte) ([]byte, bool, error) {
	if w.zw != nil {
		w.zbuf.Reset()
		w.zw.Reset(&w.zbuf)
		if _, err := w.zw.Write(chunk); err != nil {
			return nil, false, err
		}
		if err := w.zw.Close(); err != nil {
			return nil, false, err
		}
		if w.zbuf.Len() < len(chunk) {
			return w.zbuf.Bytes(), true, nil
		}
	}
	w.encoded = append(w.encoded[:0], chunk...)
	w.encoded = binary.LittleEndian.AppendUint32(w.encoded, adler32.Checksum(chunk))
	return w.encoded, false, nil
}

func (w *Writer) openSegment() error {
	index := len(w.written)
	f, err := w.segments.OpenWriter(index)
	if err != nil {
		return err
	}
	s, err := newSegmentWriter(f, index, w.opts.SegmentSize, w.header2, w.header)
	if err != nil {
		_ = f.Close()
		return err
	}
	w.written = append(w.written, s)
	w.active = s
	w.state = writerOpen
	return nil
}

// Close pads the media data to a full sector, stores the last chunk and
// finalizes all segments.
func (w *Writer) Close() error {
	if w.state == writerClosed {
		return ErrClosed
	}
	err := w.close()
	w.state = writerClosed
	for _, s := range w.written {
		s.abort()
	}
	return err
}

func (w *Writer) close() error {
	sectorSize := int64(w.opts.SectorSize)
	if rest := w.total % sectorSize; rest != 0 {
		if _, err := w.Write(make([]byte, sectorSize-rest)); err != nil {
			return err
		}
	}
	if len(w.buf) > 0 {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}
	if len(w.written) == 0 {
		if err := w.openSegment(); err != nil {
			return err
		}
	}

	volume := &VolumeSection{
		MediaType:        w.opts.MediaType,
		ChunkCount:       uint32((w.total + w.chunkSize - 1) / w.chunkSize),
		ChunkSectors:     w.opts.ChunkSectors,
		SectorSize:       w.opts.SectorSize,
		Sectors:          uint64(w.total / sectorSize),
		MediaFlags:       w.opts.MediaFlags,
		CompressionLevel: w.opts.CompressionLevel,
		GUID:             w.guid,
	}
	digest := w.hash.Sum(nil)
	for i, s := range w.written {
		if err := s.finalize(w.segments.OpenUpdate, volume, digest, i == len(w.written)-1); err != nil {
			return err
		}
	}
	logger.Info().Int64("size", w.total).Int("segments", len(w.written)).Msg("image written")
	return nil
}

func (img *Image) writerOptions() (Options, error) {
	var opts Options
	var chunkSize int64
	for name, value := range img.overrides {
		switch v := value.(type) {
		case int64:
			if v < 0 || v > maxSegmentSize {
				return opts, errors.Wrapf(ErrConfiguration, "%s out of range: %d", name, v)
			}
			switch name {
			case "segment_size":
				opts.SegmentSize = v
			case "chunk_size":
				chunkSize = v
			case "sector_size":
				opts.SectorSize = uint32(v)
			case "compression_level":
				opts.CompressionLevel = uint32(v)
			}
		case time.Time:
			opts.Header.Time = v
		case string:
			switch name {
			case "drive_vendor":
				opts.Header.Vendor = v
			case "drive_model":
				opts.Header.Model = v
			case "drive_serial_number":
				opts.Header.Serial = v
			case "acquisition_tool":
				opts.Header.Tool = v
			case "acquisition_platform":
				opts.Header.Platform = v
			case "acquisition_user":
				opts.Header.User = v
			case "case_number":
				opts.Header.Case = v
			case "evidence_number":
				opts.Header.Evidence = v
			case "description":
				opts.Header.Description = v
			case "notes":
				opts.Header.Notes = v
			}
		}
	}

	if chunkSize != 0 {
		sectorSize := int64(opts.SectorSize)
		if sectorSize == 0 {
			sectorSize = int64(DefaultOptions.SectorSize)
		}
		if chunkSize%sectorSize != 0 {
			return opts, errors.Wrapf(ErrConfiguration, "chunk size %d is not a multiple of sector size %d", chunkSize, sectorSize)
		}
		opts.ChunkSectors = uint32(chunkSize / sectorSize)
	}
	return opts, nil
}

var _ io.WriteCloser = &Writer{}
