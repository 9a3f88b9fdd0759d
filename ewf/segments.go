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
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SegmentArray enumerates the segment files of one image. Segments are found
// by probing sequential names until one is missing, never by listing
// directories.
type SegmentArray struct {
	fs      afero.Fs
	base    string
	count   int
	scanned bool
}

// NewSegmentArray creates a SegmentArray for the image at name. The name may
// point to any segment file (disk.E01, disk.e07) or be the bare base name (disk).
func NewSegmentArray(fs afero.Fs, name string) *SegmentArray {
	return &SegmentArray{fs: fs, base: baseName(name)}
}

func newWriteArray(fs afero.Fs, name string) *SegmentArray {
	return &SegmentArray{fs: fs, base: baseName(name), scanned: true}
}

func baseName(name string) string {
	ext := filepath.Ext(name)
	if len(ext) > 1 {
		if _, ok := segmentIndex(ext[1:]); ok {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// Path returns the file name of the segment with the zero based index.
func (a *SegmentArray) Path(index int) (string, error) {
	ext, err := SegmentName(index)
	if err != nil {
		return "", err
	}
	return a.base + "." + ext, nil
}

// Scan checks segment names in order and returns the number of segments.
// Only the first call touches the file system.
func (a *SegmentArray) Scan() (int, error) {
	if a.scanned {
		return a.count, nil
	}

	count := 0
	for {
		p, err := a.Path(count)
		if err != nil {
			if errors.Is(err, ErrOutOfRange) {
				break
			}
			return 0, err
		}
		exists, err := afero.Exists(a.fs, p)
		if err != nil {
			return 0, errors.Wrapf(err, "could not stat %s", p)
		}
		if !exists {
			break
		}
		count++
	}

	logger.Debug().Str("base", a.base).Int("segments", count).Msg("scanned segments")
	a.count = count
	a.scanned = true
	return count, nil
}

// Len returns the number of segments found by Scan or created by OpenWriter.
func (a *SegmentArray) Len() int {
	return a.count
}

// OpenReader opens an existing segment.
func (a *SegmentArray) OpenReader(index int) (afero.File, error) {
	if _, err := a.Scan(); err != nil {
		return nil, err
	}
	if index < 0 || index >= a.count {
		return nil, errors.Wrapf(ErrSegmentMissing, "segment %d of %d", index, a.count)
	}
	p, err := a.Path(index)
	if err != nil {
		return nil, err
	}
	return a.fs.Open(p)
}

// OpenWriter creates the segment with the given index, which must be the next
// sequential one. Existing files are never overwritten.
func (a *SegmentArray) OpenWriter(index int) (afero.File, error) {
	if _, err := a.Scan(); err != nil {
		return nil, err
	}
	if index != a.count {
		return nil, errors.Errorf("segment %d cannot be created, next segment is %d", index, a.count)
	}
	p, err := a.Path(index)
	if err != nil {
		return nil, err
	}
	exists, err := afero.Exists(a.fs, p)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Wrap(ErrSegmentExists, p)
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := a.fs.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}
	f, err := a.fs.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create %s", p)
	}
	logger.Debug().Str("path", p).Int("segment", index).Msg("created segment")
	a.count++
	return f, nil
}

// OpenUpdate reopens a segment created by OpenWriter for patching.
func (a *SegmentArray) OpenUpdate(index int) (afero.File, error) {
	if index < 0 || index >= a.count {
		return nil, errors.Wrapf(ErrSegmentMissing, "segment %d of %d", index, a.count)
	}
	p, err := a.Path(index)
	if err != nil {
		return nil, err
	}
	f, err := a.fs.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not reopen %s", p)
	}
	return f, nil
}
