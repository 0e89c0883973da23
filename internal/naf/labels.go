package naf

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/studio-carto/prospect-cli/internal/fetcher"
)

// labelNotFound is appended to codes missing from the reference table so the
// gap is visible in exports instead of silently blank.
const labelNotFound = " (Libellé non trouvé)"

// Table maps NAF codes to their French labels.
type Table struct {
	labels map[string]string
}

// LoadTable reads a code/label reference file. INSEE distributes the table
// with varying separators and encodings, so comma and semicolon separated
// files in UTF-8 or Latin-1 are all accepted.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "naf: read table %s", path)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, eris.Wrapf(err, "naf: parse table %s", path)
	}
	zap.L().Debug("activity label table loaded",
		zap.String("path", path), zap.Int("codes", t.Len()))
	return t, nil
}

// ParseTable parses CSV bytes holding at least the columns "Code" and
// "Libellé". Duplicate codes keep the last occurrence.
func ParseTable(data []byte) (*Table, error) {
	type attempt struct {
		sep    rune
		latin1 bool
	}
	attempts := []attempt{
		{',', false},
		{';', false},
		{',', true},
		{';', true},
	}

	var lastErr error
	for _, a := range attempts {
		if !a.latin1 && !utf8.Valid(data) {
			continue
		}

		var r io.Reader = bytes.NewReader(data)
		if a.latin1 {
			r = charmap.ISO8859_1.NewDecoder().Reader(r)
		}

		labels, err := parseCodeLabelCSV(r, a.sep)
		if err != nil {
			lastErr = err
			continue
		}
		return &Table{labels: labels}, nil
	}

	if lastErr == nil {
		lastErr = eris.New("naf: empty table data")
	}
	return nil, lastErr
}

func parseCodeLabelCSV(r io.Reader, sep rune) (map[string]string, error) {
	rowCh, errCh := fetcher.StreamCSV(context.Background(), r, fetcher.CSVOptions{
		Delimiter: sep,
		TrimSpace: true,
	})

	codeCol, labelCol := -1, -1
	labels := make(map[string]string)
	rows := 0
	for rec := range rowCh {
		rows++
		if rows == 1 {
			for i, name := range rec {
				switch strings.TrimPrefix(name, "﻿") {
				case "Code":
					codeCol = i
				case "Libellé":
					labelCol = i
				}
			}
			continue
		}
		if codeCol < 0 || labelCol < 0 || len(rec) <= codeCol || len(rec) <= labelCol {
			continue
		}
		code := rec[codeCol]
		label := rec[labelCol]
		if code == "" || label == "" {
			continue
		}
		labels[code] = label
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "naf: read csv")
	}

	if rows < 2 {
		return nil, eris.New("naf: table has no data rows")
	}
	if codeCol < 0 || labelCol < 0 {
		return nil, eris.New("naf: missing Code/Libellé columns")
	}
	if len(labels) == 0 {
		return nil, eris.New("naf: table has no usable rows")
	}
	return labels, nil
}

// EmptyTable returns a table with no codes. Lookups fall back to the
// not-found marker, which keeps reports usable when the reference file is
// absent.
func EmptyTable() *Table {
	return &Table{labels: map[string]string{}}
}

// Label returns the label for a code, or the code itself marked as not found.
func (t *Table) Label(code string) string {
	code = strings.TrimSpace(code)
	if l, ok := t.labels[code]; ok {
		return l
	}
	return code + labelNotFound
}

// Has reports whether the table knows the code.
func (t *Table) Has(code string) bool {
	_, ok := t.labels[strings.TrimSpace(code)]
	return ok
}

// Len returns how many codes the table holds.
func (t *Table) Len() int {
	return len(t.labels)
}

// Codes returns every known code, sorted.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.labels))
	for c := range t.labels {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// CodesInSection returns the table's codes under a section letter, sorted.
func (t *Table) CodesInSection(letter string) []string {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	var codes []string
	for c := range t.labels {
		if s, ok := SectionForCode(c); ok && s == letter {
			codes = append(codes, c)
		}
	}
	sort.Strings(codes)
	return codes
}
