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
	"time"

	"github.com/fatih/structs"
)

// Metadata describes an image. It is derived from one pass over all sections
// and stays fixed for the lifetime of an Image.
type Metadata struct {
	Segments            int       `structs:"segments"`
	SegmentSize         int64     `structs:"segment_size"`
	ChunkSize           int64     `structs:"chunk_size"`
	ChunkCount          int64     `structs:"chunk_count"`
	CompressionLevel    int       `structs:"compression_level"`
	DriveVendor         string    `structs:"drive_vendor"`
	DriveModel          string    `structs:"drive_model"`
	DriveSerialNumber   string    `structs:"drive_serial_number"`
	AcquisitionTime     time.Time `structs:"acquisition_time,omitnested"`
	AcquisitionTool     string    `structs:"acquisition_tool"`
	AcquisitionPlatform string    `structs:"acquisition_platform"`
	AcquisitionUser     string    `structs:"acquisition_user"`
	HashMD5             string    `structs:"hash_md5"`

	Size       int64  `structs:"-"`
	Sectors    uint64 `structs:"-"`
	SectorSize uint32 `structs:"-"`
}

// Attributes returns the metadata keyed by attribute name.
func (m *Metadata) Attributes() map[string]interface{} {
	return structs.Map(m)
}
