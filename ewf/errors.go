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
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned for writer options that cannot produce a valid image.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrOutOfRange is returned when the segment naming scheme is exhausted.
	ErrOutOfRange = errors.New("segment index out of range")
	// ErrCorruptChunk is returned if a chunk other than the last one does not
	// decode to exactly one chunk of data.
	ErrCorruptChunk = errors.New("corrupt chunk")
	// ErrChecksumMismatch marks a stored Adler-32 that differs from the calculated one.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNotSeekable is returned by Writer.Seek.
	ErrNotSeekable = errors.New("ewf writer is not seekable")
	// ErrSegmentNotFound is returned if no chunk table entry covers an offset.
	ErrSegmentNotFound = errors.New("no segment covers offset")
	// ErrCorruptSection is returned if a section descriptor announces a
	// payload that does not fit the segment.
	ErrCorruptSection   = errors.New("corrupt section")
	ErrInvalidSignature = errors.New("invalid ewf signature")
	ErrInvalidOffset    = errors.New("invalid offset")
	ErrSegmentMissing   = errors.New("segment does not exist")
	ErrSegmentExists    = errors.New("segment already exists")
	ErrClosed           = errors.New("already closed")
	ErrUnknownAttribute = errors.New("unknown attribute")
)

// ChecksumError records a checksum mismatch found while decoding a section.
// Mismatches are collected and logged but never abort decoding.
type ChecksumError struct {
	Segment    int
	Section    string
	Offset     uint64
	Field      string
	Stored     uint32
	Calculated uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("segment %d: %s section at 0x%x: %s checksum 0x%08x, calculated 0x%08x",
		e.Segment, e.Section, e.Offset, e.Field, e.Stored, e.Calculated)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
