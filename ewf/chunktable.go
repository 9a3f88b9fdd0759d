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
	"sort"

	"github.com/pkg/errors"
)

// ChunkRange covers the chunks stored in one segment. Start and End are
// inclusive logical byte offsets.
type ChunkRange struct {
	Segment int
	Start   uint64
	End     uint64
	// Offsets are absolute file offsets, bit 63 set for compressed chunks.
	Offsets []uint64
}

// ChunkTable maps logical offsets to chunk locations. It is built once per
// image and only read afterwards.
type ChunkTable struct {
	chunkSize uint64
	ranges    []ChunkRange
}

type pendingTable struct {
	segment int
	table   *TableSection
}

// buildChunkTable lays out the table sections in encounter order. Each table
// covers chunkSize * ChunkCount bytes.
func buildChunkTable(chunkSize uint64, tables []pendingTable) *ChunkTable {
	t := &ChunkTable{chunkSize: chunkSize}
	var offset uint64
	for _, p := range tables {
		size := chunkSize * uint64(p.table.ChunkCount)
		if size == 0 {
			continue
		}
		last := len(t.ranges) - 1
		if last < 0 || t.ranges[last].Segment != p.segment {
			t.ranges = append(t.ranges, ChunkRange{
				Segment: p.segment,
				Start:   offset,
				End:     offset + size - 1,
			})
			last++
		} else {
			t.ranges[last].End += size
		}
		t.ranges[last].Offsets = append(t.ranges[last].Offsets, p.table.Offsets...)
		offset += size
	}
	return t
}

// Ranges returns the per segment entries.
func (t *ChunkTable) Ranges() []ChunkRange {
	return t.ranges
}

// find returns the index of the range containing pos.
func (t *ChunkTable) find(pos uint64) (int, bool) {
	i := sort.Search(len(t.ranges), func(i int) bool {
		return t.ranges[i].End >= pos
	})
	if i < len(t.ranges) && t.ranges[i].Start <= pos {
		return i, true
	}
	return 0, false
}

// chunkLocation is where a chunk lives on disk.
type chunkLocation struct {
	segment    int
	chunk      int
	offset     int64
	compressed bool
}

// Locate finds the segment, in-segment chunk index and file offset of the
// chunk containing the logical offset pos.
func (t *ChunkTable) Locate(pos uint64) (segment, chunk int, offset int64, compressed bool, err error) {
	loc, err := t.locate(pos)
	return loc.segment, loc.chunk, loc.offset, loc.compressed, err
}

func (t *ChunkTable) locate(pos uint64) (chunkLocation, error) {
	i, ok := t.find(pos)
	if !ok {
		return chunkLocation{}, errors.Wrapf(ErrSegmentNotFound, "offset %d", pos)
	}
	r := &t.ranges[i]
	chunk := int((pos - r.Start) / t.chunkSize)
	if chunk >= len(r.Offsets) {
		return chunkLocation{}, errors.Wrapf(ErrSegmentNotFound, "offset %d, chunk %d of %d", pos, chunk, len(r.Offsets))
	}
	entry := r.Offsets[chunk]
	return chunkLocation{
		segment:    r.Segment,
		chunk:      chunk,
		offset:     int64(entry &^ compressedFlag),
		compressed: entry&compressedFlag != 0,
	}, nil
}
