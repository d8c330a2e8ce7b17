package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/datalens-ai/datalens/internal/domain"
)

// ParseHTML extracts the page's plain text and every <table> element.
// Tables are named table_1, table_2, ... in document order.
func ParseHTML(body []byte) (string, []*domain.Table, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parse document: %w", err)
	}

	var tables []*domain.Table
	walkNodes(doc, "table", func(n *html.Node) {
		tbl := parseTable(n, fmt.Sprintf("table_%d", len(tables)+1))
		tables = append(tables, tbl)
	})

	return pageText(doc), tables, nil
}

// parseTable converts one <table> node. Leading all-<th> rows form the
// header; multi-level headers are flattened by joining the levels of
// each column with a space.
func parseTable(table *html.Node, name string) *domain.Table {
	var headerRows [][]string
	var dataRows [][]string

	walkNodes(table, "tr", func(tr *html.Node) {
		cells, allHeader := rowCells(tr)
		if len(cells) == 0 {
			return
		}
		if allHeader && len(dataRows) == 0 {
			headerRows = append(headerRows, cells)
			return
		}
		dataRows = append(dataRows, cells)
	})

	columns := flattenHeaders(headerRows, dataRows)
	tbl := &domain.Table{Name: name, Columns: columns}
	for _, cells := range dataRows {
		row := make([]domain.Value, len(columns))
		for i := range columns {
			if i < len(cells) {
				row[i] = domain.String(cells[i])
			} else {
				row[i] = domain.Null()
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

// rowCells returns the text of each td/th cell and whether every cell
// was a th.
func rowCells(tr *html.Node) ([]string, bool) {
	var cells []string
	allHeader := true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "th":
			cells = append(cells, nodeText(c))
		case "td":
			allHeader = false
			cells = append(cells, nodeText(c))
		}
	}
	return cells, allHeader
}

// flattenHeaders joins multi-level header rows column-wise. With no
// header rows at all, columns are synthesized as col_1..col_N from the
// widest data row.
func flattenHeaders(headerRows, dataRows [][]string) []string {
	if len(headerRows) == 0 {
		width := 0
		for _, row := range dataRows {
			if len(row) > width {
				width = len(row)
			}
		}
		columns := make([]string, width)
		for i := range columns {
			columns[i] = fmt.Sprintf("col_%d", i+1)
		}
		return columns
	}

	width := 0
	for _, row := range headerRows {
		if len(row) > width {
			width = len(row)
		}
	}

	columns := make([]string, width)
	for i := 0; i < width; i++ {
		var levels []string
		for _, row := range headerRows {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				levels = append(levels, strings.TrimSpace(row[i]))
			}
		}
		columns[i] = strings.Join(levels, " ")
	}
	return columns
}

// walkNodes calls fn for every element node named tag, skipping the
// subtree below each match so nested tables are not double-counted.
func walkNodes(n *html.Node, tag string, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == tag {
		fn(n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, tag, fn)
	}
}

// nodeText concatenates the text content below a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// pageText extracts readable text from the document, skipping script
// and style blocks.
func pageText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " ")
}
