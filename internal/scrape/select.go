package scrape

import (
	"strings"

	"github.com/datalens-ai/datalens/internal/domain"
)

// indicatorKeywords mark the table most pages treat as the main data
// table (ranking charts and similar). This heuristic is a replaceable
// policy; callers relying on it should pass their own keywords.
var indicatorKeywords = []string{"rank", "peak"}

// ChooseTable picks the most promising table from a scraped page: the
// first non-empty table whose column names contain an indicator
// keyword, else the first non-empty table, else nil.
func ChooseTable(tables []*domain.Table) *domain.Table {
	return ChooseTableByKeywords(tables, indicatorKeywords)
}

// ChooseTableByKeywords is ChooseTable with caller-supplied keywords.
func ChooseTableByKeywords(tables []*domain.Table, keywords []string) *domain.Table {
	for _, tbl := range tables {
		if tbl.IsEmpty() {
			continue
		}
		if hasIndicatorColumn(tbl, keywords) {
			return tbl
		}
	}
	for _, tbl := range tables {
		if !tbl.IsEmpty() {
			return tbl
		}
	}
	return nil
}

func hasIndicatorColumn(tbl *domain.Table, keywords []string) bool {
	for _, col := range tbl.Columns {
		lower := strings.ToLower(col)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
