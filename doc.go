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

// Package imagefile opens and creates forensic disk images in different
// container formats behind one interface.
//
// Formats
//
// The supported formats are registered in Formats and detected in order:
//     - ewf: Expert Witness Compression Format (E01, E02, ..., EAA, ...), see package ewf.
//     - raw: plain images (dd), every regular file is a raw image.
//
// Usage
//
// Open an image and copy its media data:
//     img, err := imagefile.Open(afero.NewOsFs(), "disk.E01")
//     r, err := img.NewReader()
//     io.Copy(dst, r)
//
// Create an EWF image with metadata from an acquisition document:
//     attributes, err := imagefile.LoadAcquisition(document)
//     w, err := imagefile.Create(afero.NewOsFs(), "disk", imagefile.EWF, attributes)
//     io.Copy(w, src)
//     w.Close()
package imagefile
