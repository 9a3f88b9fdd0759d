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

package imagefile

import (
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/imagefile/ewf"
	"github.com/forensicanalysis/imagefile/raw"
)

// ErrUnknownFormat is returned by FormatByName.
var ErrUnknownFormat = errors.New("unknown image format")

// Reader gives random access to the media data of an image.
type Reader interface {
	io.ReadSeekCloser
	io.ReaderAt
}

// Imagefile is an opened image.
type Imagefile interface {
	Format() string
	Size() (int64, error)
	Attributes() (map[string]interface{}, error)
	NewReader() (Reader, error)
}

// WritableImagefile is a new image that is configured with attributes and
// filled through the writer.
type WritableImagefile interface {
	SetAttribute(name string, value interface{}) error
	NewWriter() (io.WriteCloser, error)
}

// Format is one image container format.
type Format interface {
	Name() string
	IsInstance(fs afero.Fs, name string) (bool, error)
	Open(fs afero.Fs, name string) (Imagefile, error)
	New(fs afero.Fs, name string) WritableImagefile
}

// Formats are tried in order by Detect. Raw matches every file and must
// come last.
// nolint:gochecknoglobals
var Formats = []Format{EWF, Raw}

// nolint:gochecknoglobals
var (
	EWF Format = ewfFormat{}
	Raw Format = rawFormat{}
)

// Detect returns the first format that recognizes name.
func Detect(fs afero.Fs, name string) (Format, error) {
	for _, format := range Formats {
		ok, err := format.IsInstance(fs, name)
		if err != nil {
			return nil, errors.Wrapf(err, "%s detection failed", format.Name())
		}
		if ok {
			return format, nil
		}
	}
	return nil, errors.Wrap(ErrUnknownFormat, name)
}

// Open detects the format of name and opens it.
func Open(fs afero.Fs, name string) (Imagefile, error) {
	format, err := Detect(fs, name)
	if err != nil {
		return nil, err
	}
	return format.Open(fs, name)
}

// FormatByName returns the registered format with the name, e.g. "ewf".
func FormatByName(name string) (Format, error) {
	for _, format := range Formats {
		if strings.EqualFold(format.Name(), name) {
			return format, nil
		}
	}
	return nil, errors.Wrap(ErrUnknownFormat, name)
}

// Create creates a new image and returns its writer.
func Create(fs afero.Fs, name string, format Format, attributes map[string]interface{}) (io.WriteCloser, error) {
	img := format.New(fs, name)

	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := img.SetAttribute(key, attributes[key]); err != nil {
			return nil, err
		}
	}
	return img.NewWriter()
}

type ewfFormat struct{}

func (ewfFormat) Name() string { return "ewf" }

func (ewfFormat) IsInstance(fs afero.Fs, name string) (bool, error) {
	return ewf.IsInstance(fs, name)
}

func (ewfFormat) Open(fs afero.Fs, name string) (Imagefile, error) {
	img, err := ewf.Open(fs, name)
	if err != nil {
		return nil, err
	}
	return &ewfImage{img}, nil
}

func (ewfFormat) New(fs afero.Fs, name string) WritableImagefile {
	return &ewfImage{ewf.New(fs, name)}
}

type ewfImage struct {
	*ewf.Image
}

func (i *ewfImage) Format() string { return "ewf" }

func (i *ewfImage) NewReader() (Reader, error) {
	r, err := i.Image.NewReader()
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (i *ewfImage) NewWriter() (io.WriteCloser, error) {
	w, err := i.Image.NewWriter()
	if err != nil {
		return nil, err
	}
	return w, nil
}

type rawFormat struct{}

func (rawFormat) Name() string { return "raw" }

func (rawFormat) IsInstance(fs afero.Fs, name string) (bool, error) {
	return raw.IsInstance(fs, name)
}

func (rawFormat) Open(fs afero.Fs, name string) (Imagefile, error) {
	img, err := raw.Open(fs, name)
	if err != nil {
		return nil, err
	}
	return &rawImage{img}, nil
}

func (rawFormat) New(fs afero.Fs, name string) WritableImagefile {
	return &rawImage{raw.New(fs, name)}
}

type rawImage struct {
	*raw.Image
}

func (i *rawImage) Format() string { return "raw" }

func (i *rawImage) NewReader() (Reader, error) {
	return i.Image.NewReader()
}

func (i *rawImage) NewWriter() (io.WriteCloser, error) {
	return i.Image.NewWriter()
}

// SetAttribute discards the value, raw images carry no metadata.
func (i *rawImage) SetAttribute(string, interface{}) error {
	return nil
}
