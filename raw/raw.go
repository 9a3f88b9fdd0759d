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

// Package raw implements plain, unstructured disk images (dd images).
package raw

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Image is a raw image file. Every file is a valid raw image.
type Image struct {
	fs   afero.Fs
	name string
}

// New returns a handle for name. The file is not opened.
func New(fs afero.Fs, name string) *Image {
	return &Image{fs: fs, name: name}
}

// Open opens an existing raw image.
func Open(fs afero.Fs, name string) (*Image, error) {
	info, err := fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.Errorf("%s is a directory", name)
	}
	return New(fs, name), nil
}

// IsInstance reports whether name is a regular file.
func IsInstance(fs afero.Fs, name string) (bool, error) {
	info, err := fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Size returns the file size.
func (i *Image) Size() (int64, error) {
	info, err := i.fs.Stat(i.name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Attributes returns the size of the image.
func (i *Image) Attributes() (map[string]interface{}, error) {
	size, err := i.Size()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"size": size}, nil
}

// NewReader opens the image file for reading.
func (i *Image) NewReader() (afero.File, error) {
	return i.fs.Open(i.name)
}

// NewWriter creates the image file. Existing files are not overwritten.
func (i *Image) NewWriter() (afero.File, error) {
	f, err := i.fs.OpenFile(i.name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create %s", i.name)
	}
	return f, nil
}
