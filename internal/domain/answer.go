package domain

// Answer is the structured result of one analysis request.
// Only Answer is mandatory; empty optional fields are dropped from the
// wire payload.
type Answer struct {
	Answer     string   `json:"answer"`
	Details    string   `json:"details,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	PlotCode   string   `json:"plot_code,omitempty"`
}

// Unknown builds the degraded fallback answer with the given reason.
func Unknown(reason string) Answer {
	return Answer{Answer: "unknown", Details: reason}
}

// Payload converts the answer to the response mapping, dropping empty
// and nil fields.
func (a Answer) Payload() map[string]any {
	out := map[string]any{"answer": a.Answer}
	if a.Details != "" {
		out["details"] = a.Details
	}
	if a.Confidence != nil {
		out["confidence"] = *a.Confidence
	}
	if a.PlotCode != "" {
		out["plot_code"] = a.PlotCode
	}
	return out
}
