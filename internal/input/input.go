// Package input loads search keywords from spreadsheets, CSV files or
// line-delimited text. Every loader returns normalized, de-duplicated
// keywords in input order.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// ColumnCandidates are header names recognized as the keyword column, in
// priority order. Matching ignores case and surrounding space.
var ColumnCandidates = []string{"keyword", "keywords", "input_keyword", "q", "query"}

// ErrUnsupportedFormat is returned by Load for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Load picks a loader from the file extension: .xlsx, .csv or .txt.
func Load(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path)
	case ".csv":
		return openAnd(path, ReadCSV)
	case ".txt":
		return openAnd(path, ReadText)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

func openAnd(path string, read func(io.Reader) ([]string, error)) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return read(f)
}

// LoadXLSX reads the first worksheet of an Excel workbook.
func LoadXLSX(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return FromTable(rows), nil
}

// ReadCSV reads a CSV document whose first record is the header row.
func ReadCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return FromTable(rows), nil
}

// ReadText treats every non-blank line as one keyword.
func ReadText(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return crawler.NormalizeKeywords(lines), nil
}

// FromText is ReadText over a string.
func FromText(text string) []string {
	out, _ := ReadText(strings.NewReader(text))
	return out
}

// FromTable extracts keywords from a header row plus data rows. The column
// is the first header matching ColumnCandidates, else the first column.
// Blank cells and the literal "nan" are dropped.
func FromTable(rows [][]string) []string {
	if len(rows) < 2 {
		return nil
	}
	col := keywordColumn(rows[0])
	raw := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		raw = append(raw, v)
	}
	return crawler.NormalizeKeywords(raw)
}

func keywordColumn(header []string) int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	for _, name := range ColumnCandidates {
		if i, ok := index[name]; ok {
			return i
		}
	}
	return 0
}
