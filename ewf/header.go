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
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// HeaderValue is one variable of a header section.
type HeaderValue struct {
	Name  string
	Value string
}

// HeaderSection is the decoded view of a header or header2 section.
type HeaderSection struct {
	Section *Section

	Platform        string
	User            string
	Vendor          string
	Model           string
	Serial          string
	Tool            string
	AcquisitionTime time.Time

	// Extra keeps all variables without a dedicated field in their original order.
	Extra []HeaderValue
}

// HeaderInfo is the acquisition metadata written into the header sections.
type HeaderInfo struct {
	Description string
	Case        string
	Evidence    string
	Notes       string
	User        string
	Platform    string
	Tool        string
	Vendor      string
	Model       string
	Serial      string
	Time        time.Time
}

func utf16() encoding.Encoding {
	return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
}

// DecodeHeader reads the zlib compressed text of a header (ASCII) or header2
// (UTF-16) section.
func DecodeHeader(r io.ReaderAt, s *Section) (*HeaderSection, error) {
	if err := s.checkPayload(r); err != nil {
		return nil, err
	}
	payload := make([]byte, s.DataSize())
	if err := readFullAt(r, payload, s.DataOffset()); err != nil {
		return nil, errors.Wrapf(err, "could not read %s section", s.Name)
	}
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "could not decompress %s section", s.Name)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decompress %s section", s.Name)
	}

	text := string(raw)
	if s.Name == SectionHeader2 {
		decoded, err := utf16().NewDecoder().Bytes(raw)
		if err != nil {
			return nil, errors.Wrap(err, "could not decode header2 text")
		}
		text = string(decoded)
	}

	h := parseHeader(text)
	h.Section = s
	return h, nil
}

func parseHeader(text string) *HeaderSection {
	h := &HeaderSection{}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	// EnCase puts "main" on the second line, some writers on the third
	marker := -1
	for _, i := range []int{2, 1} {
		if len(lines) > i+2 && strings.TrimSpace(lines[i]) == "main" {
			marker = i
			break
		}
	}
	if marker < 0 {
		return h
	}

	names := strings.Split(lines[marker+1], "\t")
	values := strings.Split(lines[marker+2], "\t")
	for i, name := range names {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		h.set(strings.TrimSpace(name), value)
	}
	return h
}

func (h *HeaderSection) set(name, value string) {
	switch name {
	case "ov":
		h.Platform = value
	case "e":
		h.User = value
	case "md":
		h.Model = value
	case "dv":
		h.Vendor = value
	case "sn":
		h.Serial = value
	case "av":
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			h.Tool = "Encase v" + value
		} else {
			h.Tool = value
		}
	case "m":
		t, err := parseHeaderTime(value)
		if err != nil {
			logger.Debug().Err(err).Str("value", value).Msg("could not parse acquisition time")
		}
		h.AcquisitionTime = t
	default:
		h.Extra = append(h.Extra, HeaderValue{Name: name, Value: value})
	}
}

// parseHeaderTime accepts "Y M D h m s" or a unix timestamp.
func parseHeaderTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if !strings.Contains(value, " ") {
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(ts, 0).UTC(), nil
	}

	fields := strings.Fields(value)
	if len(fields) != 6 {
		return time.Time{}, errors.Errorf("expected 6 time fields, got %d", len(fields))
	}
	var parts [6]int
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return time.Time{}, err
		}
		parts[i] = n
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC), nil
}

func formatHeaderTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d %d %d %d %d %d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// headerText renders the variables in EnCase layout. header2 uses unix
// timestamps, header the spaced date form.
func headerText(name string, info HeaderInfo) string {
	clean := func(s string) string {
		return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
	}
	var names []string
	var values []string
	add := func(n, v string) {
		names = append(names, n)
		values = append(values, clean(v))
	}

	if name == SectionHeader2 {
		add("a", info.Description)
		add("c", info.Case)
		add("n", info.Evidence)
		add("e", info.User)
		add("t", info.Notes)
		add("md", model(info))
		if info.Vendor != "" {
			add("dv", info.Vendor)
		}
		add("sn", info.Serial)
		add("av", info.Tool)
		add("ov", info.Platform)
		add("m", strconv.FormatInt(info.Time.Unix(), 10))
		add("u", strconv.FormatInt(info.Time.Unix(), 10))
		add("p", "0")
		return "3\nmain\n" + strings.Join(names, "\t") + "\n" + strings.Join(values, "\t") + "\n\n"
	}

	add("c", info.Case)
	add("n", info.Evidence)
	add("a", info.Description)
	add("e", info.User)
	add("t", info.Notes)
	add("av", info.Tool)
	add("ov", info.Platform)
	add("m", formatHeaderTime(info.Time))
	add("u", formatHeaderTime(info.Time))
	add("p", "0")
	return "1\nmain\n" + strings.Join(names, "\t") + "\n" + strings.Join(values, "\t") + "\n\n"
}

// model prefixes the model with the vendor for readers that only know md.
func model(info HeaderInfo) string {
	if info.Vendor == "" || strings.HasPrefix(info.Model, info.Vendor) {
		return info.Model
	}
	return strings.TrimSpace(info.Vendor + " " + info.Model)
}

// encodeHeader returns the compressed payload of a header or header2 section.
func encodeHeader(name string, info HeaderInfo) ([]byte, error) {
	text := []byte(headerText(name, info))
	if name == SectionHeader2 {
		var err error
		text, err = utf16().NewEncoder().Bytes(text)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode header2 text")
		}
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(text); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
