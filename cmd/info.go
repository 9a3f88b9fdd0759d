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
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/imagefile"
	"github.com/forensicanalysis/imagefile/ewf"
)

type checksumReporter interface {
	ChecksumErrors() ([]*ewf.ChecksumError, error)
}

// Info prints the format and the attributes of an image.
func Info() *cobra.Command {
	var archive string
	var asJSON bool
	infoCmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Show image metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, teardown, err := imageFs(archive)
			if err != nil {
				return err
			}
			defer teardown() // nolint:errcheck

			img, err := imagefile.Open(fs, args[0])
			if err != nil {
				return err
			}
			attributes, err := img.Attributes()
			if err != nil {
				return err
			}
			size, err := img.Size()
			if err != nil {
				return err
			}
			attributes["format"] = img.Format()
			attributes["size"] = size

			var checksumErrors []*ewf.ChecksumError
			if reporter, ok := img.(checksumReporter); ok {
				if checksumErrors, err = reporter.ChecksumErrors(); err != nil {
					return err
				}
			}

			if asJSON {
				attributes["checksum_errors"] = len(checksumErrors)
				b, err := json.Marshal(attributes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
				return nil
			}

			printAttributes(cmd.OutOrStdout(), attributes)
			for _, cerr := range checksumErrors {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", cerr)
			}
			return nil
		},
	}
	addArchiveFlag(infoCmd, &archive)
	infoCmd.Flags().BoolVar(&asJSON, "json", false, "print attributes as JSON")
	return infoCmd
}

// Sections lists the sections of every segment of an EWF image.
func Sections() *cobra.Command {
	var archive string
	sectionsCmd := &cobra.Command{
		Use:   "sections <image>",
		Short: "List the sections of all segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, teardown, err := imageFs(archive)
			if err != nil {
				return err
			}
			defer teardown() // nolint:errcheck

			img, err := ewf.Open(fs, args[0])
			if err != nil {
				return err
			}
			segments, err := img.Segments()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for index := 0; index < segments; index++ {
				name, err := img.SegmentPath(index)
				if err != nil {
					return err
				}
				sections, err := img.Sections(index)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", name)
				for _, section := range sections {
					state := "ok"
					if !section.Checksum.Valid() {
						state = "checksum mismatch"
					}
					fmt.Fprintf(out, "  %-8s offset 0x%08x  next 0x%08x  %10s  %s\n",
						section.Name, section.Offset, section.NextOffset, humanize.IBytes(section.Size), state)
				}
			}
			return nil
		},
	}
	addArchiveFlag(sectionsCmd, &archive)
	return sectionsCmd
}
