// Package prompt builds the bounded analysis prompt sent to the model.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datalens-ai/datalens/internal/domain"
)

// NoImagePlaceholder stands in for a missing image description.
const NoImagePlaceholder = "No image description provided."

// DefaultPageTextLimit caps the page text section of the prompt.
const DefaultPageTextLimit = 2000

// Input carries everything the assembler folds into one prompt.
type Input struct {
	Question         string
	Chunks           []string
	ImageDescription string
	PageText         string
	Tables           map[string]*domain.Table

	// PageTextLimit overrides DefaultPageTextLimit when positive.
	PageTextLimit int
}

const schemaContract = `Respond with a single JSON object and nothing else. Allowed fields:
  "answer" (string, required): a direct answer to the question.
  "details" (string, optional): supporting reasoning or caveats.
  "confidence" (number, optional): your confidence in [0, 1].
  "plot_code" (string, optional): only when the question asks for a chart, a JSON chart directive: {"kind": "scatter"|"line"|"bar"|"histogram", "table": "<table name>", "x": "<column>", "y": "<column>", "title": "<title>", "regression": true|false}.
Do not wrap the response in markdown code fences. Do not embed image data or base64 content in any field.`

// Build assembles the prompt: question verbatim, bulleted retrieved rows,
// table schemas, image description (or placeholder), truncated page text,
// then the output contract.
func Build(in Input) string {
	var sb strings.Builder

	sb.WriteString("You are a data analyst answering a question about tabular data.\n\n")
	sb.WriteString("Question:\n")
	sb.WriteString(in.Question)
	sb.WriteString("\n\n")

	sb.WriteString("Most relevant rows:\n")
	if len(in.Chunks) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, chunk := range in.Chunks {
		sb.WriteString("- ")
		sb.WriteString(chunk)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(in.Tables) > 0 {
		sb.WriteString("Available tables:\n")
		for _, name := range sortedNames(in.Tables) {
			table := in.Tables[name]
			fmt.Fprintf(&sb, "%s (%d rows): %s\n",
				name, len(table.Rows), strings.Join(table.Columns, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Image description:\n")
	if in.ImageDescription == "" {
		sb.WriteString(NoImagePlaceholder)
	} else {
		sb.WriteString(in.ImageDescription)
	}
	sb.WriteString("\n\n")

	if in.PageText != "" {
		sb.WriteString("Page text:\n")
		sb.WriteString(truncate(in.PageText, in.limit()))
		sb.WriteString("\n\n")
	}

	sb.WriteString(schemaContract)
	return sb.String()
}

func (in Input) limit() int {
	if in.PageTextLimit > 0 {
		return in.PageTextLimit
	}
	return DefaultPageTextLimit
}

// truncate cuts at exactly limit bytes, no word-boundary adjustment.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func sortedNames(tables map[string]*domain.Table) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
