package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/leadcrawler/internal/model"
)

var (
	// ErrNoWebsiteColumn is returned when the header has no website column.
	ErrNoWebsiteColumn = errors.New("input has no Website column")

	// ErrEmptyInput is returned for files without a header row.
	ErrEmptyInput = errors.New("input is empty")

	// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported input format: use .csv or .xlsx")

	// ErrNoSheets is returned for workbooks without sheets.
	ErrNoSheets = errors.New("workbook has no sheets")
)

// Column names are matched case-insensitively after trimming.
var columnAliases = map[string]string{ //nolint:gochecknoglobals // read-only lookup table
	"website":          "website",
	"web site":         "website",
	"url":              "website",
	"institution name": "name",
	"name":             "name",
	"institution type": "type",
	"type":             "type",
	"location":         "location",
	"address":          "location",
	"phone":            "phone",
	"phone number":     "phone",
}

// ReadFile reads institutions from a .csv or .xlsx file.
// limit caps the number of data rows; 0 reads everything.
func ReadFile(path string, limit int) ([]model.Institution, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path) //nolint:gosec // user-provided input path is intentional
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, limit)
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, limit)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadCSV reads institutions from CSV data with a header row.
func ReadCSV(r io.Reader, limit int) ([]model.Institution, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return fromRecords(records, limit)
}

// ReadXLSX reads institutions from the first sheet of a workbook.
func ReadXLSX(path string, limit int) ([]model.Institution, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRecords(rows, limit)
}

func fromRecords(records [][]string, limit int) ([]model.Institution, error) {
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}

	columns := make(map[string]int)
	for i, h := range records[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := columnAliases[h]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["website"]; !ok {
		return nil, ErrNoWebsiteColumn
	}

	get := func(rec []string, field string) string {
		i, ok := columns[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []model.Institution
	for n, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		out = append(out, model.Institution{
			ID:       strconv.Itoa(n + 1),
			Name:     get(rec, "name"),
			Type:     get(rec, "type"),
			Website:  get(rec, "website"),
			Location: get(rec, "location"),
			Phone:    get(rec, "phone"),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
