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

// Package sqlitefs implements an afero.Fs on top of a SQLite archive (sqlar)
// table. Image segments are stored uncompressed, so they can be read at
// arbitrary offsets without inflating the whole file.
package sqlitefs

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"crawshaw.io/sqlite"
	"github.com/spf13/afero"
)

// FS is an afero.Fs backed by a single SQLite connection. It is not safe for
// concurrent use.
type FS struct {
	cursor *sqlite.Conn
	temp   afero.Fs
}

var _ afero.Fs = &FS{}

const table = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- content, deflate compressed if smaller than sz
);`

// New opens or creates the archive at url. Files written to the archive are
// buffered in memory and spill to the OS temp directory when they grow large.
func New(url string) (*FS, error) {
	return NewTemp(url, afero.NewOsFs())
}

// NewTemp is New with a custom file system for write buffers.
func NewTemp(url string, temp afero.Fs) (*FS, error) {
	var err error
	fs := &FS{temp: temp}

	fs.cursor, err = sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, err
	}

	stmt := fs.cursor.Prep(table)
	if err = exec(stmt); err != nil {
		return nil, err
	}
	if _, err := fs.Stat("/"); os.IsNotExist(err) {
		return fs, fs.Mkdir("/", 0755)
	}
	return fs, nil
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	name = normalizeFilename(name)
	stmt := fs.cursor.Prep("UPDATE sqlar SET mode = $mode WHERE name = $name")
	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(mode))
	return exec(stmt)
}

func (fs *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	name = normalizeFilename(name)
	stmt := fs.cursor.Prep("UPDATE sqlar SET mtime = $mtime WHERE name = $name")
	stmt.SetText("$name", name)
	stmt.SetInt64("$mtime", mtime.Unix())
	return exec(stmt)
}

func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	name = normalizeFilename(name)

	stmt := fs.cursor.Prep(`INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, $sz, $data)`)

	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(perm))
	stmt.SetInt64("$mtime", time.Now().Unix())
	stmt.SetInt64("$sz", 0)
	stmt.SetNull("$data")

	return exec(stmt)
}

func (fs *FS) MkdirAll(p string, perm os.FileMode) error {
	p = normalizeFilename(p)
	_ = fs.Mkdir("/", perm)
	all := ""
	parts := strings.Split(p, "/")
	for _, part := range parts {
		all = path.Join(all, part)
		_ = fs.Mkdir(all, perm)
	}
	return nil
}

func (fs *FS) Name() string {
	return "SQLiteFS"
}

func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens name. Existing files opened for writing without O_TRUNC
// start with their stored content, which is replaced on Close.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name = normalizeFilename(name)
	writable := flag&(os.O_RDWR|os.O_WRONLY) != 0

	if flag&os.O_CREATE != 0 {
		if !writable {
			return nil, ErrNotImplemented
		}
		if flag&os.O_TRUNC == 0 {
			if _, err := fs.Stat(name); err == nil {
				if flag&os.O_EXCL != 0 {
					return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
				}
				return fs.openUpdate(name, flag)
			}
		}
		id, err := fs.createFile(name, perm, flag&os.O_EXCL == 0)
		if err != nil {
			return nil, err
		}
		return newWriteItem(fs, id, name)
	}

	if writable {
		return fs.openUpdate(name, flag)
	}

	id, info, err := fs.lookup(name, "open")
	if err != nil {
		return nil, err
	}
	var children []os.FileInfo
	if info.dir {
		if children, err = fs.selectChildren(name); err != nil {
			return nil, err
		}
	}
	return newReadItem(fs, id, name, info, children)
}

// openUpdate opens an existing file for writing.
func (fs *FS) openUpdate(name string, flag int) (afero.File, error) {
	id, info, err := fs.lookup(name, "open")
	if err != nil {
		return nil, err
	}
	if info.dir {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
	}
	w, err := newWriteItem(fs, id, name)
	if err != nil {
		return nil, err
	}
	if flag&os.O_TRUNC != 0 || info.sz == 0 {
		return w, nil
	}

	r, err := newReadItem(fs, id, name, info, nil)
	if err != nil {
		_ = w.teardown()
		return nil, err
	}
	defer r.Close()
	if _, err := io.Copy(w.buf, io.NewSectionReader(r, 0, info.sz)); err != nil {
		_ = w.teardown()
		return nil, err
	}
	if flag&os.O_APPEND != 0 {
		w.offset = info.sz
	}
	return w, nil
}

// lookup returns the rowid and file info of name.
func (fs *FS) lookup(name, op string) (int64, *Info, error) {
	stmt := fs.cursor.Prep(selectInfo + ` WHERE name = $name`)
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		return 0, nil, err
	}
	if !hasRow {
		_ = stmt.Reset()
		return 0, nil, &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
	}
	id := stmt.GetInt64("rowid")
	info := scanInfo(stmt)
	return id, info, stmt.Reset()
}

func (fs *FS) selectChildren(name string) ([]os.FileInfo, error) {
	stmt := fs.cursor.Prep(selectInfo + ` WHERE name LIKE $name`)
	prefix := name + "/"
	if name == "/" {
		prefix = "/"
	}
	stmt.SetText("$name", prefix+"%")

	var children []os.FileInfo
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		child := stmt.GetText("name")
		if child == name || strings.Contains(strings.Trim(child[len(name):], "/"), "/") {
			continue
		}
		children = append(children, scanInfo(stmt))
	}
	return children, stmt.Finalize()
}

func (fs *FS) createFile(name string, perm os.FileMode, replace bool) (int64, error) {
	if !replace {
		if _, err := fs.Stat(name); err == nil {
			return 0, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
		}
	}

	stmt := fs.cursor.Prep(`INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz) VALUES ($name, $mode, $mtime, $sz)`)

	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(perm))
	stmt.SetInt64("$mtime", time.Now().Unix())
	stmt.SetInt64("$sz", 0)

	err := exec(stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return fs.cursor.LastInsertRowID(), nil
}

func (fs *FS) Remove(name string) error {
	name = normalizeFilename(name)
	stmt := fs.cursor.Prep(`DELETE FROM sqlar WHERE name = $name`)
	stmt.SetText("$name", name)
	return exec(stmt)
}

func (fs *FS) RemoveAll(path string) error {
	path = normalizeFilename(path)
	stmt := fs.cursor.Prep(`DELETE FROM sqlar WHERE name LIKE $name`)
	stmt.SetText("$name", path+"%")
	return exec(stmt)
}

func (fs *FS) Rename(oldname, newname string) error {
	oldname = normalizeFilename(oldname)
	newname = normalizeFilename(newname)

	stmt := fs.cursor.Prep("UPDATE sqlar SET name = $newname WHERE name = $oldname")
	stmt.SetText("$oldname", oldname)
	stmt.SetText("$newname", newname)
	return exec(stmt)
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	_, info, err := fs.lookup(normalizeFilename(name), "stat")
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (fs *FS) Close() error {
	return fs.cursor.Close()
}

// selectInfo selects the columns read by scanInfo. Directories are rows
// without data.
const selectInfo = `SELECT rowid, name, mode, mtime, sz, data IS NULL AS dataNull FROM sqlar`

func scanInfo(stmt *sqlite.Stmt) *Info {
	size := stmt.GetInt64("sz")
	return &Info{
		name:  path.Base(stmt.GetText("name")),
		sz:    size,
		mode:  os.FileMode(stmt.GetInt64("mode")),
		mtime: time.Unix(stmt.GetInt64("mtime"), 0),
		dir:   size == 0 && stmt.GetInt64("dataNull") == 1,
	}
}

type Info struct {
	sz    int64
	mtime time.Time
	mode  os.FileMode
	dir   bool
	name  string
}

func (i *Info) Name() string { // base name of the file
	return i.name
}
func (i *Info) Size() int64 { // length in bytes for regular files; system-dependent for others
	return i.sz
}
func (i *Info) Mode() os.FileMode { // file mode bits
	return i.mode
}
func (i *Info) ModTime() time.Time { // modification time
	return i.mtime
}
func (i *Info) IsDir() bool { // abbreviation for Mode().IsDir()
	return i.dir
}
func (i *Info) Sys() interface{} { // underlying data source (can return nil)
	return nil
}

func exec(stmt *sqlite.Stmt) error {
	_, err := stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}

func normalizeFilename(name string) string {
	if name == "." || name == "" || name == "/" {
		return "/"
	}
	name = filepath.ToSlash(name)
	name = "/" + strings.Trim(name, "/")
	return name
}
