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

// Package spooled provides a buffer that is held in memory up to a maximum
// size and spills to a temporary file afterwards.
package spooled

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

type TemporaryFile struct {
	fs         afero.Fs
	size       int64
	maxSize    int64
	offset     int64
	buffer     []byte
	tempFile   afero.File
	rolledOver bool
}

// New creates a TemporaryFile that spills to the operating system's
// temporary directory.
func New(maxSize int64) (*TemporaryFile, func() error) {
	return NewFs(afero.NewOsFs(), maxSize)
}

// NewFs creates a TemporaryFile that spills to fs.
func NewFs(fs afero.Fs, maxSize int64) (*TemporaryFile, func() error) {
	t := &TemporaryFile{fs: fs, maxSize: maxSize}
	return t, t.Close
}

// Read reads sequentially from the start of the written data.
func (t *TemporaryFile) Read(p []byte) (n int, err error) {
	n, err = t.ReadAt(p, t.offset)
	t.offset += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (t *TemporaryFile) ReadAt(p []byte, off int64) (n int, err error) {
	if t.rolledOver {
		return t.tempFile.ReadAt(p, off)
	}
	if off >= int64(len(t.buffer)) {
		return 0, io.EOF
	}
	n = copy(p, t.buffer[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write appends p.
func (t *TemporaryFile) Write(p []byte) (n int, err error) {
	return t.WriteAt(p, t.size)
}

// WriteAt writes p at off, gaps are filled with zeros.
func (t *TemporaryFile) WriteAt(p []byte, off int64) (n int, err error) {
	end := off + int64(len(p))
	if !t.rolledOver && end > t.maxSize {
		if err := t.Rollover(); err != nil {
			return 0, err
		}
	}

	if t.rolledOver {
		if err := t.fill(off); err != nil {
			return 0, err
		}
		n, err = t.tempFile.WriteAt(p, off)
	} else {
		if end > int64(len(t.buffer)) {
			t.buffer = append(t.buffer, make([]byte, end-int64(len(t.buffer)))...)
		}
		n = copy(t.buffer[off:], p)
	}
	if off+int64(n) > t.size {
		t.size = off + int64(n)
	}
	return n, err
}

// fill writes zeros from the end of the temporary file up to off.
func (t *TemporaryFile) fill(off int64) error {
	var zeros []byte
	for pos := t.size; pos < off; {
		n := off - pos
		if n > 32<<10 {
			n = 32 << 10
		}
		if zeros == nil {
			zeros = make([]byte, n)
		}
		if _, err := t.tempFile.WriteAt(zeros[:n], pos); err != nil {
			return fmt.Errorf("could not fill gap in tmp file: %w", err)
		}
		pos += n
		t.size = pos
	}
	return nil
}

// WriteTo copies all written data to w. Nothing is written if the file is
// empty.
func (t *TemporaryFile) WriteTo(w io.Writer) (int64, error) {
	if t.size == 0 {
		return 0, nil
	}
	if t.rolledOver {
		return io.Copy(w, io.NewSectionReader(t.tempFile, 0, t.size))
	}
	n, err := w.Write(t.buffer)
	return int64(n), err
}

func (t *TemporaryFile) Rollover() (err error) {
	t.tempFile, err = afero.TempFile(t.fs, "", "spooled")
	if err != nil {
		return fmt.Errorf("could not create tmp file: %w", err)
	}
	t.rolledOver = true
	if _, err = t.tempFile.WriteAt(t.buffer, 0); err != nil {
		return fmt.Errorf("could not fill tmp file: %w", err)
	}
	t.buffer = nil
	return nil
}

func (t *TemporaryFile) Close() error {
	if t.rolledOver {
		err := t.tempFile.Close()
		if err != nil {
			return err
		}
		t.rolledOver = false
		return t.fs.Remove(t.tempFile.Name())
	}
	t.buffer = nil
	return nil
}

func (t *TemporaryFile) Size() (int64, error) {
	return t.size, nil
}
