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

// Package cmd provides the ewftool subcommands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/imagefile/ewf"
	"github.com/forensicanalysis/imagefile/sqlitefs"
)

// nolint:gochecknoglobals
var logger = newLogger(zerolog.WarnLevel)

func newLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(level)
}

// SetVerbose enables debug logging for the commands and the ewf package.
func SetVerbose(verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger = newLogger(level)
	ewf.SetLogger(logger.With().Str("module", "ewf").Logger())
}

// imageFs returns the file system images are read from and written to. With
// an archive, images live inside the sqlite archive.
func imageFs(archive string) (afero.Fs, func() error, error) {
	if archive == "" {
		return afero.NewOsFs(), func() error { return nil }, nil
	}
	fs, err := sqlitefs.New(archive)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs.Close, nil
}

func addArchiveFlag(cmd *cobra.Command, archive *string) {
	cmd.Flags().StringVar(archive, "archive", "", "resolve images inside this sqlite archive")
}

// nolint:gochecknoglobals
var byteAttributes = map[string]bool{"size": true, "segment_size": true, "chunk_size": true}

func formatValue(name string, value interface{}) string {
	switch v := value.(type) {
	case int64:
		if byteAttributes[name] {
			return humanize.IBytes(uint64(v)) + " (" + humanize.Comma(v) + " bytes)"
		}
		return humanize.Comma(v)
	case int:
		return humanize.Comma(int64(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func printAttributes(w io.Writer, attributes map[string]interface{}) {
	names := make([]string, 0, len(attributes))
	width := 0
	for name := range attributes {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		value := formatValue(name, attributes[name])
		if value == "" {
			continue
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, name, value)
	}
}
