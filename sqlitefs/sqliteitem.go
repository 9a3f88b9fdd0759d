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

package sqlitefs

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"
	"os"
	"path"

	"crawshaw.io/sqlite"

	"github.com/forensicanalysis/imagefile/sqlitefs/spooled"
)

var ErrNotImplemented = errors.New("not implemented")

// maxMemory is the size up to which written files are buffered in memory.
const maxMemory = 32 << 20

type content interface {
	io.ReadSeeker
	io.ReaderAt
}

type item struct {
	fs   *FS
	path string

	// reader item
	blob     *sqlite.Blob
	data     content
	info     os.FileInfo
	children []os.FileInfo

	// writer item
	id       int64
	buf      *spooled.TemporaryFile
	teardown func() error
	offset   int64
}

func newWriteItem(fs *FS, id int64, path string) (*item, error) {
	i := &item{fs: fs, id: id, path: path}
	i.buf, i.teardown = spooled.NewFs(fs.temp, maxMemory)
	return i, nil
}

// newReadItem opens the blob of a file. Files are stored uncompressed, so the
// blob is read directly. Blobs shorter than the file size are deflate
// compressed and get inflated into memory.
func newReadItem(fs *FS, id int64, path string, info os.FileInfo, children []os.FileInfo) (*item, error) {
	i := &item{fs: fs, path: path, info: info, children: children}
	if info.IsDir() {
		return i, nil
	}

	blob, err := i.fs.cursor.OpenBlob("", "sqlar", "data", id, false)
	if err != nil {
		return nil, err
	}
	if blob.Size() == info.Size() {
		i.blob = blob
		i.data = blob
		return i, nil
	}

	defer blob.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, flate.NewReader(blob)); err != nil {
		return nil, err
	}
	i.data = bytes.NewReader(buf.Bytes())
	return i, nil
}

func (i *item) Name() string {
	return path.Base(i.path)
}

func (i *item) Read(p []byte) (n int, err error) {
	if i.data == nil {
		return 0, ErrNotImplemented
	}
	if len(p) == 0 {
		return 0, nil
	}
	return i.data.Read(p)
}

func (i *item) ReadAt(p []byte, off int64) (n int, err error) {
	if i.data == nil {
		return 0, ErrNotImplemented
	}
	size := i.info.Size()
	if off >= size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off+int64(len(p)) > size {
		n, err = i.data.ReadAt(p[:size-off], off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return i.data.ReadAt(p, off)
}

func (i *item) Seek(offset int64, whence int) (int64, error) {
	if i.data == nil {
		return 0, ErrNotImplemented
	}
	return i.data.Seek(offset, whence)
}

func (i *item) Readdir(count int) ([]os.FileInfo, error) {
	n := len(i.children)
	if count > 0 && count < n {
		n = count
	}
	return i.children[:n], nil
}

func (i *item) Readdirnames(n int) ([]string, error) {
	var names []string
	for c, child := range i.children {
		if c >= n && n > 0 {
			break
		}
		names = append(names, child.Name())
	}
	return names, nil
}

func (i *item) Stat() (os.FileInfo, error) {
	if i.buf != nil {
		size, _ := i.buf.Size()
		return &Info{name: path.Base(i.path), sz: size, mode: 0640}, nil
	}
	return i.info, nil
}

func (i *item) Write(p []byte) (n int, err error) {
	n, err = i.WriteAt(p, i.offset)
	i.offset += int64(n)
	return n, err
}

func (i *item) WriteAt(p []byte, off int64) (n int, err error) {
	if i.buf == nil {
		return 0, ErrNotImplemented
	}
	return i.buf.WriteAt(p, off)
}

func (i *item) WriteString(s string) (ret int, err error) {
	return i.Write([]byte(s))
}

func (i *item) Close() error {
	if i.blob != nil {
		return i.blob.Close()
	}
	if i.buf == nil {
		return nil
	}
	defer i.teardown()

	size, err := i.buf.Size()
	if err != nil {
		return err
	}

	stmt := i.fs.cursor.Prep(`UPDATE sqlar SET sz = $sz, data = $data WHERE rowid = $id`)
	stmt.SetInt64("$id", i.id)
	stmt.SetZeroBlob("$data", size)
	stmt.SetInt64("$sz", size)
	if err := exec(stmt); err != nil {
		return err
	}
	if size == 0 {
		i.buf = nil
		return nil
	}

	data, err := i.fs.cursor.OpenBlob("", "sqlar", "data", i.id, true)
	if err != nil {
		return err
	}
	if _, err = i.buf.WriteTo(data); err != nil {
		_ = data.Close()
		return err
	}
	i.buf = nil
	return data.Close()
}

func (i *item) Truncate(size int64) error {
	return ErrNotImplemented
}

func (i *item) Sync() error {
	return nil
}
