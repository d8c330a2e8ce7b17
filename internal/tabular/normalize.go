// Package tabular converts heterogeneous tabular sources (CSV, JSON,
// Excel uploads, scraped HTML tables) into the uniform domain.Table
// representation and flattens rows into retrieval chunks.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/datalens-ai/datalens/internal/domain"
)

// Format identifies an input encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
)

// Source is one raw tabular input with a declared format.
type Source struct {
	Name   string
	Format Format
	Data   []byte
}

// DetectFormat infers the format from a filename extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx", ".xls":
		return FormatExcel, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}
}

// Normalize decodes every source into a table. Sources that fail to
// decode are reported in the returned error slice and skipped; a bad
// source never aborts the whole set.
func Normalize(sources []Source) (map[string]*domain.Table, []error) {
	tables := make(map[string]*domain.Table, len(sources))
	var errs []error
	for _, src := range sources {
		tbl, err := Decode(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", src.Name, err))
			continue
		}
		tables[src.Name] = tbl
	}
	return tables, errs
}

// Decode parses a single source into a table.
func Decode(src Source) (*domain.Table, error) {
	switch src.Format {
	case FormatCSV:
		return DecodeCSV(src.Name, bytes.NewReader(src.Data))
	case FormatJSON:
		return DecodeJSON(src.Name, src.Data)
	case FormatExcel:
		return DecodeExcel(src.Name, bytes.NewReader(src.Data))
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, src.Format)
	}
}

// DecodeCSV reads a CSV stream whose first record is the header row.
func DecodeCSV(name string, r io.Reader) (*domain.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are padded below
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	tbl := &domain.Table{Name: name, Columns: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make([]domain.Value, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = domain.String(record[i])
			} else {
				row[i] = domain.Null()
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// DecodeJSON reads an array of flat objects. Column order follows first
// appearance across the array so the table layout is reproducible.
func DecodeJSON(name string, data []byte) (*domain.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	tbl := &domain.Table{Name: name}
	seen := make(map[string]struct{})
	for _, rec := range records {
		// map iteration order is random; keys are taken sorted per record,
		// first-seen across the array
		for _, k := range sortedKeys(rec) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				tbl.Columns = append(tbl.Columns, k)
			}
		}
	}
	for _, rec := range records {
		row := make([]domain.Value, len(tbl.Columns))
		for i, col := range tbl.Columns {
			row[i] = jsonValue(rec[col])
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// DecodeExcel reads the first non-empty sheet of a workbook; the first
// row is the header.
func DecodeExcel(name string, r io.Reader) (*domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) < 1 || len(rows[0]) == 0 {
			continue
		}
		tbl := &domain.Table{Name: name, Columns: rows[0]}
		for _, raw := range rows[1:] {
			row := make([]domain.Value, len(tbl.Columns))
			for i := range tbl.Columns {
				if i < len(raw) {
					row[i] = domain.String(raw[i])
				} else {
					row[i] = domain.Null()
				}
			}
			tbl.Rows = append(tbl.Rows, row)
		}
		return tbl, nil
	}
	return nil, fmt.Errorf("workbook %q has no usable sheet", name)
}

func jsonValue(v any) domain.Value {
	switch x := v.(type) {
	case nil:
		return domain.Null()
	case string:
		return domain.String(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return domain.Number(f)
		}
		return domain.String(x.String())
	case bool:
		if x {
			return domain.String("true")
		}
		return domain.String("false")
	default:
		// nested objects/arrays flatten to their JSON text
		b, err := json.Marshal(x)
		if err != nil {
			return domain.Null()
		}
		return domain.String(string(b))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
