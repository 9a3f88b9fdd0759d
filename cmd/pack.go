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

package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/imagefile"
	"github.com/forensicanalysis/imagefile/ewf"
	"github.com/forensicanalysis/imagefile/sqlitefs"
)

// Pack stores images in a sqlite archive. All segments of EWF images are
// added, other images are added as single files.
func Pack() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <archive> <image>...",
		Short: "Add images to the sqlite archive",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFS := afero.NewOsFs()
			destFS, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer destFS.Close()

			for _, arg := range args[1:] {
				files, err := imageFiles(srcFS, arg)
				if err != nil {
					return err
				}
				for _, file := range files {
					dest := "/" + filepath.Base(file)
					fmt.Fprintln(cmd.OutOrStdout(), "pack", filepath.ToSlash(file))
					if err := copyFile(srcFS, destFS, file, dest); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func imageFiles(fs afero.Fs, name string) ([]string, error) {
	format, err := imagefile.Detect(fs, name)
	if err != nil {
		return nil, err
	}
	if format != imagefile.EWF {
		return []string{name}, nil
	}

	img, err := ewf.Open(fs, name)
	if err != nil {
		return nil, err
	}
	segments, err := img.Segments()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, segments)
	for index := 0; index < segments; index++ {
		p, err := img.SegmentPath(index)
		if err != nil {
			return nil, err
		}
		files = append(files, p)
	}
	return files, nil
}

func copyFile(srcFS, destFS afero.Fs, src, dest string) error {
	srcFile, err := srcFS.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := destFS.Create(dest)
	if err != nil {
		return err
	}
	if _, err = io.Copy(destFile, srcFile); err != nil {
		_ = destFile.Close()
		return err
	}
	return destFile.Close()
}

// Unpack extracts all files of a sqlite archive into a directory.
func Unpack() *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <archive> [directory]",
		Short: "Extract files from the sqlite archive",
		Args:  cobra.RangeArgs(1, 2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFS, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer srcFS.Close()

			destDir := "."
			if len(args) > 1 {
				destDir = args[1]
			}
			destFS := afero.NewBasePathFs(afero.NewOsFs(), destDir)

			return afero.Walk(srcFS, "/", func(srcPath string, info os.FileInfo, err error) error {
				if err != nil {
					logger.Warn().Err(err).Str("path", srcPath).Msg("skipping")
					return nil
				}
				if info == nil || info.IsDir() {
					return nil
				}

				fullPath := filepath.ToSlash(srcPath)
				if err := destFS.MkdirAll(path.Dir(fullPath), 0750); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unpack '%s'\n", fullPath)
				return copyFile(srcFS, destFS, fullPath, fullPath)
			})
		},
	}
}

// Ls lists the files of a sqlite archive.
func Ls() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <archive>",
		Short: "List files in the sqlite archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()

			return afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %10s\n", filepath.ToSlash(p), humanize.IBytes(uint64(info.Size())))
				return nil
			})
		},
	}
}
