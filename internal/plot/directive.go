// Package plot renders model-requested charts into PNG data URIs.
//
// The model does not emit executable code. It emits a JSON chart
// directive naming one of a fixed set of chart kinds and the table
// columns to draw. Rendering failures degrade to an empty artifact so a
// broken visualization never fails the request.
package plot

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datalens-ai/datalens/internal/answer"
)

// EmptyArtifact is the failure sentinel: a data URI with no payload.
const EmptyArtifact = "data:image/png;base64,"

// URIPrefix marks an already-rendered inline image.
const URIPrefix = "data:image/"

// Chart kinds the renderer understands.
const (
	KindScatter   = "scatter"
	KindLine      = "line"
	KindBar       = "bar"
	KindHistogram = "histogram"
)

// Directive describes one chart to render.
type Directive struct {
	Kind       string `json:"kind"`
	Table      string `json:"table"`
	X          string `json:"x"`
	Y          string `json:"y"`
	Title      string `json:"title"`
	Regression bool   `json:"regression"`
}

// ParseDirective decodes a chart directive, tolerating code fences.
func ParseDirective(raw string) (Directive, error) {
	text := answer.StripFences(raw)

	var d Directive
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return Directive{}, fmt.Errorf("decode chart directive: %w", err)
	}

	switch d.Kind {
	case KindScatter, KindLine, KindBar, KindHistogram:
	default:
		return Directive{}, fmt.Errorf("unknown chart kind %q", d.Kind)
	}
	return d, nil
}

// WantsPlot reports whether the plot_code field references a chart at
// all. Non-chart content is skipped without touching the renderer.
func WantsPlot(code string) bool {
	if code == "" {
		return false
	}
	if strings.HasPrefix(code, URIPrefix) {
		return true
	}

	lower := strings.ToLower(code)
	for _, kw := range []string{KindScatter, KindLine, KindBar, KindHistogram, "plot", "chart"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
