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

// Package ewf reads and writes images in the Expert Witness Compression Format.
//
// An EWF image is split into numbered segment files (image.E01, image.E02, ...,
// image.EAA, ...). Every segment starts with a 13 byte file header followed by a
// forward linked chain of sections. Sector data is stored in fixed size chunks,
// each either verbatim or zlib compressed, located through the table sections.
//
// Reading
//
// Open locates all segments by probing sequential file names. Metadata and the
// chunk offset table are built on first use by a single pass over all sections:
//     img, err := ewf.Open(afero.NewOsFs(), "evidence/disk.E01")
//     r, err := img.NewReader()
//     io.Copy(dst, r)
//
// Writing
//
// Create validates the segment size against the fixed per segment overhead and
// returns a Writer that rolls over to new segment files as they fill up:
//     w, err := ewf.Create(afero.NewOsFs(), "evidence/disk", ewf.Options{SegmentSize: 640 << 20})
//     io.Copy(w, src)
//     w.Close()
package ewf
