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
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Reader provides random access to the media data of an image. It holds at
// most one open segment file and one decoded chunk.
type Reader struct {
	img        *Image
	chunks     *ChunkTable
	size       int64
	chunkSize  int64
	chunkCount int64
	pos        int64

	chunkIndex int64
	chunk      []byte

	segment    int
	file       afero.File
	compressed []byte
	zr         io.ReadCloser

	closed bool
}

// NewReader returns a Reader positioned at the start of the media data.
func (img *Image) NewReader() (*Reader, error) {
	if err := img.load(); err != nil {
		return nil, err
	}
	return &Reader{
		img:        img,
		chunks:     img.chunks,
		size:       img.metadata.Size,
		chunkSize:  img.metadata.ChunkSize,
		chunkCount: img.metadata.ChunkCount,
		chunkIndex: -1,
		segment:    -1,
	}, nil
}

// Size returns the size of the media data.
func (r *Reader) Size() int64 {
	return r.size
}

// Read reads up to len(p) bytes. At the end of the media data Read returns
// 0, io.EOF. Offsets not covered by any table end the data early.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}
	if remaining := r.size - r.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n := 0
	for n < len(p) {
		data, err := r.loadChunk(r.pos / r.chunkSize)
		if err != nil {
			if errors.Is(err, ErrSegmentNotFound) {
				logger.Debug().Err(err).Msg("end of chunk table")
				break
			}
			return n, err
		}
		c := copy(p[n:], data[r.pos%r.chunkSize:])
		n += c
		r.pos += int64(c)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt reads len(p) bytes at off without moving the read position.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Wrapf(ErrInvalidOffset, "offset %d", off)
	}
	pos := r.pos
	defer func() { r.pos = pos }()

	r.pos = off
	n := 0
	for n < len(p) {
		m, err := r.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Seek sets the read position. Positions from 0 up to and including the size
// of the media are valid.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errors.Wrapf(ErrInvalidOffset, "invalid whence %d", whence)
	}
	if abs < 0 || abs > r.size {
		return 0, errors.Wrapf(ErrInvalidOffset, "offset %d, size %d", abs, r.size)
	}
	r.pos = abs
	return abs, nil
}

// Close releases the open segment file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.chunk = nil
	r.chunkIndex = -1
	if r.zr != nil {
		_ = r.zr.Close()
		r.zr = nil
	}
	return r.closeSegment()
}

func (r *Reader) closeSegment() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.segment = -1
	return err
}

// loadChunk returns the decoded chunk with the global index. Data of the last
// chunk may be shorter than a chunk.
func (r *Reader) loadChunk(index int64) ([]byte, error) {
	if index == r.chunkIndex {
		return r.chunk, nil
	}
	r.chunkIndex = -1

	loc, err := r.chunks.locate(uint64(index * r.chunkSize))
	if err != nil {
		return nil, err
	}

	if loc.segment != r.segment {
		if err := r.closeSegment(); err != nil {
			return nil, err
		}
		f, err := r.img.segments.OpenReader(loc.segment)
		if err != nil {
			return nil, err
		}
		r.file = f
		r.segment = loc.segment
	}

	if r.chunk == nil {
		r.chunk = make([]byte, r.chunkSize)
	}

	var n int
	if loc.compressed {
		n, err = r.inflate(loc.offset)
	} else {
		n, err = readAtMost(r.file, r.chunk, loc.offset)
	}
	if err != nil {
		_ = r.closeSegment()
		return nil, errors.Wrapf(err, "could not read chunk %d", index)
	}

	if int64(n) != r.chunkSize {
		last := index == r.chunkCount-1
		if !last || int64(n) < r.size-index*r.chunkSize {
			_ = r.closeSegment()
			return nil, errors.Wrapf(ErrCorruptChunk, "chunk %d has %d bytes, expected %d", index, n, r.chunkSize)
		}
	}

	logger.Debug().Int64("chunk", index).Int("segment", loc.segment+1).Bool("compressed", loc.compressed).Msg("loaded chunk")
	r.chunkIndex = index
	return r.chunk[:n], nil
}

// inflate decompresses the chunk at offset into r.chunk. The compressed data
// of a chunk is at most one chunk and its checksum long.
func (r *Reader) inflate(offset int64) (int, error) {
	if r.compressed == nil {
		r.compressed = make([]byte, r.chunkSize+4)
	}
	m, err := readAtMost(r.file, r.compressed, offset)
	if err != nil {
		return 0, err
	}

	src := bytes.NewReader(r.compressed[:m])
	if r.zr == nil {
		if r.zr, err = zlib.NewReader(src); err != nil {
			return 0, errors.Wrap(ErrCorruptChunk, err.Error())
		}
	} else if err := r.zr.(zlib.Resetter).Reset(src, nil); err != nil {
		return 0, errors.Wrap(ErrCorruptChunk, err.Error())
	}

	n, err := io.ReadFull(r.zr, r.chunk)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err != nil {
		return n, errors.Wrap(ErrCorruptChunk, err.Error())
	}
	return n, nil
}

var (
	_ io.ReadSeekCloser = &Reader{}
	_ io.ReaderAt       = &Reader{}
)
