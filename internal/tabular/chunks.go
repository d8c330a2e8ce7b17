package tabular

import (
	"sort"
	"strings"

	"github.com/datalens-ai/datalens/internal/domain"
)

// pairSeparator joins the "column: value" pairs of one row.
const pairSeparator = " | "

// FlattenRow renders one table row as a retrieval chunk: non-null
// "column: value" pairs in column order. Returns "" when every cell is
// null.
func FlattenRow(columns []string, row []domain.Value) string {
	parts := make([]string, 0, len(columns))
	for i, col := range columns {
		if i >= len(row) || row[i].IsNull() {
			continue
		}
		parts = append(parts, col+": "+row[i].Text())
	}
	return strings.Join(parts, pairSeparator)
}

// Chunks flattens every row of every table into chunk strings. Tables
// are visited in sorted-name order so chunk ids are stable for a given
// request; rows that flatten to the empty string are dropped.
func Chunks(tables map[string]*domain.Table) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var chunks []string
	for _, name := range names {
		tbl := tables[name]
		for _, row := range tbl.Rows {
			if chunk := FlattenRow(tbl.Columns, row); chunk != "" {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks
}
