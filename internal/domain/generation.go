package domain

import "context"

// GenerationResult is the passthrough output of the generation backend.
type GenerationResult struct {
	Response string
	Metadata map[string]any
}

// Generator produces a text completion for a prompt. The core never formats
// prompts or parses completions beyond passing the result through.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}
