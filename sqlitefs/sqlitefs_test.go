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
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/imagefile/ewf"
)

func setup(t *testing.T) string {
	return t.TempDir()
}

func cleanup(t *testing.T, directories ...string) {
	for _, directory := range directories {
		require.NoError(t, os.RemoveAll(directory))
	}
}

// dummyFS returns an archive with two files and a nested directory.
func dummyFS(t *testing.T, dir string) (*FS, error) {
	fs, err := NewTemp(filepath.Join(dir, "test.db"), afero.NewMemMapFs())
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, "/myfile1.txt", []byte(strings.Repeat("test", 1000)), 0666))
	require.NoError(t, fs.MkdirAll("/dir/subdir", 0755))
	require.NoError(t, afero.WriteFile(fs, "/dir/subdir/myfile2.txt", []byte("test2"), 0666))
	return fs, nil
}

func TestFS_segments(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs, err := NewTemp(filepath.Join(tempDir, "test.db"), afero.NewMemMapFs())
	require.NoError(t, err)
	defer fs.Close()

	opts := ewf.Options{
		ChunkSectors:     4,
		CompressionLevel: ewf.CompressionFast,
		Header:           ewf.HeaderInfo{User: "tester", Time: time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)},
	}
	minimum, err := ewf.MinimumSegmentSize(opts)
	require.NoError(t, err)
	opts.SegmentSize = minimum + 2*(4*512+12)

	data := make([]byte, 64*1024)
	rnd := rand.New(rand.NewSource(1)) // #nosec
	for i := 0; i < len(data); i += 4096 {
		_, _ = rnd.Read(data[i : i+2048])
	}

	w, err := ewf.Create(fs, "/images/disk", opts)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	infos, err := afero.ReadDir(fs, "/images")
	require.NoError(t, err)
	require.Greater(t, len(infos), 2)
	assert.Equal(t, "disk.E01", infos[0].Name())

	img, err := ewf.Open(fs, "/images/disk")
	require.NoError(t, err)
	segments, err := img.Segments()
	require.NoError(t, err)
	assert.Equal(t, len(infos), segments)
	checksumErrors, err := img.ChecksumErrors()
	require.NoError(t, err)
	assert.Empty(t, checksumErrors)

	r, err := img.NewReader()
	require.NoError(t, err)
	defer r.Close()
	for i := 0; i < 50; i++ {
		off := rnd.Int63n(int64(len(data)) - 700)
		p := make([]byte, 1+rnd.Intn(700))
		n, err := r.ReadAt(p, off)
		require.NoError(t, err)
		require.Equal(t, data[off:off+int64(n)], p[:n], "offset %d", off)
	}
}

func TestFS_OpenFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		flag    int
		write   string
		at      int64
		want    string
		wantErr func(error) bool
	}{
		{"update", "/dir/subdir/myfile2.txt", os.O_RDWR, "XY", 1, "tXYt2", nil},
		{"update write only", "/dir/subdir/myfile2.txt", os.O_WRONLY, "!", 5, "test2!", nil},
		{"truncate", "/dir/subdir/myfile2.txt", os.O_WRONLY | os.O_TRUNC, "new", 0, "new", nil},
		{"create keeps content", "/dir/subdir/myfile2.txt", os.O_RDWR | os.O_CREATE, "T", 0, "Test2", nil},
		{"create", "/dir/new.txt", os.O_RDWR | os.O_CREATE, "new", 0, "new", nil},
		{"exclusive", "/dir/subdir/myfile2.txt", os.O_RDWR | os.O_CREATE | os.O_EXCL, "", 0, "", os.IsExist},
		{"missing", "/dir/missing.txt", os.O_RDWR, "", 0, "", os.IsNotExist},
		{"directory", "/dir", os.O_RDWR, "", 0, "", func(err error) bool {
			return errors.Is(err, syscall.EISDIR)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := setup(t)
			defer cleanup(t, tempDir)
			fs, err := dummyFS(t, tempDir)
			require.NoError(t, err)
			defer fs.Close()

			f, err := fs.OpenFile(tt.path, tt.flag, 0640)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), err)
				return
			}
			require.NoError(t, err)
			_, err = f.WriteAt([]byte(tt.write), tt.at)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			b, err := afero.ReadFile(fs, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestFS_OpenFileAppend(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs, err := dummyFS(t, tempDir)
	require.NoError(t, err)
	defer fs.Close()

	f, err := fs.OpenFile("/dir/subdir/myfile2.txt", os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString("-more")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := afero.ReadFile(fs, "/dir/subdir/myfile2.txt")
	require.NoError(t, err)
	assert.Equal(t, "test2-more", string(b))
}

func TestFS_emptyFile(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs, err := dummyFS(t, tempDir)
	require.NoError(t, err)
	defer fs.Close()

	f, err := fs.Create("/empty")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := fs.Stat("/empty")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
	assert.False(t, info.IsDir())

	f, err = fs.Open("/empty")
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Empty(t, b)
	_, err = f.ReadAt(make([]byte, 1), 0)
	assert.Equal(t, io.EOF, err)

	// reopening for update keeps the file empty
	f, err = fs.OpenFile("/empty", os.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	info, err = fs.Stat("/empty")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestFS_Stat(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs, err := dummyFS(t, tempDir)
	require.NoError(t, err)
	defer fs.Close()

	tests := []struct {
		path    string
		base    string
		size    int64
		dir     bool
		missing bool
	}{
		{"/", "/", 0, true, false},
		{"", "/", 0, true, false},
		{"/myfile1.txt", "myfile1.txt", 4000, false, false},
		{"dir/subdir/", "subdir", 0, true, false},
		{"/dir/subdir/myfile2.txt", "myfile2.txt", 5, false, false},
		{"/dir/missing", "", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			info, err := fs.Stat(tt.path)
			if tt.missing {
				assert.True(t, os.IsNotExist(err), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.base, info.Name())
			assert.Equal(t, tt.size, info.Size())
			assert.Equal(t, tt.dir, info.IsDir())
			assert.Nil(t, info.Sys())
		})
	}
}

func TestFS_attributes(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs, err := dummyFS(t, tempDir)
	require.NoError(t, err)
	defer fs.Close()

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.Chmod("/myfile1.txt", 0600))
	require.NoError(t, fs.Chtimes("/myfile1.txt", mtime, mtime))

	info, err := fs.Stat("myfile1.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode())
	assert.True(t, mtime.Equal(info.ModTime()), info.ModTime())
	assert.Equal(t, "SQLiteFS", fs.Name())
}

func TestFS_Rename(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs, err := dummyFS(t, tempDir)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.Rename("/myfile1.txt", "/dir/renamed.txt"))

	_, err = fs.Stat("/myfile1.txt")
	assert.True(t, os.IsNotExist(err), err)
	b, err := afero.ReadFile(fs, "/dir/renamed.txt")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("test", 1000), string(b))
}

func TestFS_Remove(t *testing.T) {
	tests := []struct {
		name   string
		remove func(fs *FS) error
		want   []string
	}{
		{"file", func(fs *FS) error { return fs.Remove("/myfile1.txt") },
			[]string{"/", "/dir", "/dir/subdir", "/dir/subdir/myfile2.txt"}},
		{"tree", func(fs *FS) error { return fs.RemoveAll("/dir") },
			[]string{"/", "/myfile1.txt"}},
		{"missing", func(fs *FS) error { return fs.Remove("/missing") },
			[]string{"/", "/dir", "/dir/subdir", "/dir/subdir/myfile2.txt", "/myfile1.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := setup(t)
			defer cleanup(t, tempDir)
			fs, err := dummyFS(t, tempDir)
			require.NoError(t, err)
			defer fs.Close()

			require.NoError(t, tt.remove(fs))

			var got []string
			require.NoError(t, afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
				got = append(got, filepath.ToSlash(path))
				return err
			}))
			sort.Strings(got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFS_reopen(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	url := filepath.Join(tempDir, "test.db")

	fs, err := New(url)
	require.NoError(t, err)
	content := bytes.Repeat([]byte{0, 1, 2, 3}, 1024)
	require.NoError(t, afero.WriteFile(fs, "/segment.E01", content, 0640))
	require.NoError(t, fs.Close())

	fs, err = New(url)
	require.NoError(t, err)
	defer fs.Close()
	b, err := afero.ReadFile(fs, "/segment.E01")
	require.NoError(t, err)
	assert.Equal(t, content, b)
}
