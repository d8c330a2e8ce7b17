package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestCollectText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []genai.Part{genai.Text("hello "), genai.Text("world")},
			},
		}},
	}

	if got := collectText(resp); got != "hello world" {
		t.Errorf("collectText = %q, expected %q", got, "hello world")
	}
}

func TestCollectText_Empty(t *testing.T) {
	if got := collectText(&genai.GenerateContentResponse{}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}

	noContent := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}
	if got := collectText(noContent); got != "" {
		t.Errorf("expected empty string for nil content, got %q", got)
	}
}
