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
	"crypto/md5" // #nosec
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/imagefile"
	"github.com/forensicanalysis/imagefile/ewf"
)

// ErrVerification is returned by export if the data does not match the
// stored MD5.
var ErrVerification = errors.New("md5 mismatch")

// nolint:gochecknoglobals
var compressionLevels = map[string]int64{
	"none": int64(ewf.CompressionNone),
	"fast": int64(ewf.CompressionFast),
	"best": int64(ewf.CompressionBest),
}

// Export writes the media data of an image to a raw file.
func Export() *cobra.Command {
	var archive string
	var format string
	exportCmd := &cobra.Command{
		Use:   "export <image> <target>",
		Short: "Convert an image into another format, raw by default",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, teardown, err := imageFs(archive)
			if err != nil {
				return err
			}
			defer teardown() // nolint:errcheck

			target, err := imagefile.FormatByName(format)
			if err != nil {
				return err
			}

			img, err := imagefile.Open(fs, args[0])
			if err != nil {
				return err
			}
			attributes, err := img.Attributes()
			if err != nil {
				return err
			}
			r, err := img.NewReader()
			if err != nil {
				return err
			}
			defer r.Close()

			w, err := imagefile.Create(afero.NewOsFs(), args[1], target, writableAttributes(attributes))
			if err != nil {
				return err
			}

			hash := md5.New() // #nosec
			n, err := io.Copy(io.MultiWriter(w, hash), r)
			if err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			logger.Debug().Str("target", args[1]).Int64("bytes", n).Msg("exported")
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", humanize.IBytes(uint64(n)), args[1])

			sum := hex.EncodeToString(hash.Sum(nil))
			if stored, ok := attributes["hash_md5"].(string); ok && stored != "" {
				if stored != sum {
					return errors.Wrapf(ErrVerification, "stored %s, calculated %s", stored, sum)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "md5 %s verified\n", sum)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "md5 %s\n", sum)
			return nil
		},
	}
	addArchiveFlag(exportCmd, &archive)
	exportCmd.Flags().StringVar(&format, "format", "raw", "target format (raw, ewf)")
	return exportCmd
}

// writableAttributes keeps the attributes that describe the acquisition and
// can be carried over into a new image.
func writableAttributes(attributes map[string]interface{}) map[string]interface{} {
	keep := map[string]interface{}{}
	for _, name := range []string{
		"drive_vendor", "drive_model", "drive_serial_number",
		"acquisition_time", "acquisition_tool", "acquisition_platform", "acquisition_user",
	} {
		if value, ok := attributes[name]; ok && !isZero(value) {
			keep[name] = value
		}
	}
	return keep
}

func isZero(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return v == ""
	case interface{ IsZero() bool }:
		return v.IsZero()
	}
	return value == nil
}

// Create converts a raw file into an EWF image.
func Create() *cobra.Command {
	var archive, metadata, segmentSize, compression string
	var chunkSectors uint32
	createCmd := &cobra.Command{
		Use:   "create <source> <image>",
		Short: "Create an EWF image from a raw file",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes := map[string]interface{}{}
			if metadata != "" {
				b, err := ioutil.ReadFile(metadata)
				if err != nil {
					return err
				}
				if attributes, err = imagefile.LoadAcquisition(b); err != nil {
					return err
				}
			}

			if cmd.Flags().Changed("segment-size") {
				size, err := humanize.ParseBytes(segmentSize)
				if err != nil {
					return errors.Wrap(err, "invalid segment size")
				}
				attributes["segment_size"] = int64(size)
			}
			if cmd.Flags().Changed("compression") {
				level, ok := compressionLevels[compression]
				if !ok {
					return errors.Errorf("unknown compression %q, use none, fast or best", compression)
				}
				attributes["compression_level"] = level
			}
			if cmd.Flags().Changed("chunk-sectors") {
				sectorSize := int64(ewf.DefaultOptions.SectorSize)
				if v, ok := attributes["sector_size"].(int64); ok {
					sectorSize = v
				}
				attributes["chunk_size"] = int64(chunkSectors) * sectorSize
			}

			src, err := afero.NewOsFs().Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			fs, teardown, err := imageFs(archive)
			if err != nil {
				return err
			}
			defer teardown() // nolint:errcheck

			w, err := imagefile.Create(fs, args[1], imagefile.EWF, attributes)
			if err != nil {
				return err
			}
			n, err := io.Copy(w, src)
			if err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s from %s\n", args[1], humanize.IBytes(uint64(n)))
			return nil
		},
	}
	addArchiveFlag(createCmd, &archive)
	createCmd.Flags().StringVar(&metadata, "metadata", "", "acquisition metadata as JSON file")
	createCmd.Flags().StringVar(&segmentSize, "segment-size", "1500MiB", "maximum size of a segment file")
	createCmd.Flags().StringVar(&compression, "compression", "none", "compression: none, fast or best")
	createCmd.Flags().Uint32Var(&chunkSectors, "chunk-sectors", ewf.DefaultOptions.ChunkSectors, "sectors per chunk")
	return createCmd
}
