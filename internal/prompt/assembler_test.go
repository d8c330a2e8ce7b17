package prompt

import (
	"strings"
	"testing"

	"github.com/datalens-ai/datalens/internal/domain"
)

func TestBuild_ContainsQuestionAndChunks(t *testing.T) {
	out := Build(Input{
		Question: "What is the average of y?",
		Chunks:   []string{"x: 1 | y: 2", "x: 3 | y: 4"},
	})

	if !strings.Contains(out, "What is the average of y?") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(out, "- x: 1 | y: 2") {
		t.Error("prompt missing first bulleted chunk")
	}
	if !strings.Contains(out, "- x: 3 | y: 4") {
		t.Error("prompt missing second bulleted chunk")
	}
	if !strings.Contains(out, NoImagePlaceholder) {
		t.Error("prompt missing image placeholder when no description given")
	}
	if !strings.Contains(out, `"answer"`) {
		t.Error("prompt missing output schema contract")
	}
}

func TestBuild_ImageDescriptionReplacesPlaceholder(t *testing.T) {
	out := Build(Input{
		Question:         "q",
		ImageDescription: "A scatter plot of revenue by year.",
	})

	if !strings.Contains(out, "A scatter plot of revenue by year.") {
		t.Error("prompt missing image description")
	}
	if strings.Contains(out, NoImagePlaceholder) {
		t.Error("placeholder present despite description")
	}
}

func TestBuild_PageTextHardTruncation(t *testing.T) {
	long := strings.Repeat("a", 3000)
	out := Build(Input{Question: "q", PageText: long})

	if strings.Contains(out, strings.Repeat("a", DefaultPageTextLimit+1)) {
		t.Error("page text not truncated to limit")
	}
	if !strings.Contains(out, strings.Repeat("a", DefaultPageTextLimit)) {
		t.Error("truncated page text missing")
	}
}

func TestBuild_CustomPageTextLimit(t *testing.T) {
	out := Build(Input{Question: "q", PageText: "abcdef", PageTextLimit: 3})

	if !strings.Contains(out, "abc\n") {
		t.Error("expected page text cut at 3 bytes")
	}
	if strings.Contains(out, "abcdef") {
		t.Error("page text not truncated at custom limit")
	}
}

func TestBuild_TableSchemas(t *testing.T) {
	tables := map[string]*domain.Table{
		"b.csv": {Name: "b.csv", Columns: []string{"x", "y"}, Rows: make([][]domain.Value, 2)},
		"a.csv": {Name: "a.csv", Columns: []string{"rank"}, Rows: make([][]domain.Value, 1)},
	}
	out := Build(Input{Question: "q", Tables: tables})

	// Names are listed in sorted order for deterministic prompts.
	aIdx := strings.Index(out, "a.csv (1 rows): rank")
	bIdx := strings.Index(out, "b.csv (2 rows): x, y")
	if aIdx == -1 || bIdx == -1 {
		t.Fatalf("table schemas missing from prompt:\n%s", out)
	}
	if aIdx > bIdx {
		t.Error("table names not sorted")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	in := Input{
		Question: "q",
		Chunks:   []string{"a", "b"},
		Tables: map[string]*domain.Table{
			"t1": {Name: "t1", Columns: []string{"c"}},
			"t2": {Name: "t2", Columns: []string{"d"}},
		},
	}

	if Build(in) != Build(in) {
		t.Error("identical inputs produced different prompts")
	}
}
