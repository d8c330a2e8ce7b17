package domain

import "context"

// Generator is the outbound text-generation contract. Generate answers a
// text prompt; Describe captions an image given an instruction. Both are
// single attempts; retry policy lives in the gateway that wraps this.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Describe(ctx context.Context, image []byte, instruction string) (string, error)
}
