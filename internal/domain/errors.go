package domain

import "errors"

var (
	// ErrNoData signals that neither the upload nor the question URL
	// produced a usable table.
	ErrNoData = errors.New("no data found")
	// ErrUnsupportedFormat signals an upload in a format the normalizer
	// cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrGenerationFailed signals that the LLM gateway exhausted its
	// retry budget.
	ErrGenerationFailed = errors.New("text generation failed")
	// ErrDeadline signals that the request exceeded its overall deadline.
	ErrDeadline = errors.New("request deadline exceeded")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
)
