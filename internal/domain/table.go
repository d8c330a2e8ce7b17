package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the scalar types a table cell can hold.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
)

// Value is a single table cell: a string, a number, or null.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// Null returns the null cell value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string cell. An empty or all-whitespace string becomes null.
func String(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Null()
	}
	return Value{Kind: KindString, Str: s}
}

// Number returns a numeric cell.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// IsNull reports whether the cell holds no value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Text renders the cell for prompt and chunk output. Null renders empty.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	default:
		return ""
	}
}

// Float returns the numeric interpretation of the cell. String cells are
// parsed after stripping thousands separators, currency signs, and percent
// suffixes, so scraped columns like "$1,234" still plot.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		s := strings.TrimSpace(v.Str)
		s = strings.Trim(s, "$€£%")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Table is an ordered set of named columns holding scalar cells.
// Tables live for one request and are never persisted.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]Value
}

// ColumnIndex returns the position of the named column, matching
// case-insensitively.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i, true
		}
	}
	return 0, false
}

// Column returns all cells of the named column in row order.
func (t *Table) Column(name string) ([]Value, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("table %q has no column %q", t.Name, name)
	}
	out := make([]Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, Null())
		}
	}
	return out, nil
}

// IsEmpty reports whether the table has no data rows.
func (t *Table) IsEmpty() bool { return len(t.Rows) == 0 }
