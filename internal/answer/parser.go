// Package answer decodes raw model output into the response schema.
package answer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datalens-ai/datalens/internal/domain"
)

// Parse strips code fences and decodes the model output into an Answer.
// Malformed output degrades to a fixed "unknown" answer, never an error.
func Parse(raw string) domain.Answer {
	text := StripFences(raw)
	if text == "" {
		return domain.Unknown("model returned empty output")
	}

	var ans domain.Answer
	if err := json.Unmarshal([]byte(text), &ans); err != nil {
		// Some models wrap the object in a one-element array.
		var arr []domain.Answer
		if arrErr := json.Unmarshal([]byte(text), &arr); arrErr != nil || len(arr) == 0 {
			return domain.Unknown(fmt.Sprintf("could not parse model output: %v", err))
		}
		ans = arr[0]
	}

	if ans.Answer == "" {
		return domain.Unknown("model output missing answer field")
	}
	clampConfidence(&ans)
	return ans
}

// StripFences removes a leading/trailing markdown code fence. The opening
// fence may carry a language tag in any case (```JSON, ```json, ...).
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = text[3:]
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		tag := strings.TrimSpace(text[:nl])
		if tag == "" || isLanguageTag(tag) {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func clampConfidence(ans *domain.Answer) {
	if ans.Confidence == nil {
		return
	}
	if *ans.Confidence < 0 {
		*ans.Confidence = 0
	}
	if *ans.Confidence > 1 {
		*ans.Confidence = 1
	}
}
