package llm

import (
	"context"
)

// Client is the extraction capability: a stateless completion call taking a
// fixed system prompt and a user payload.
type Client interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Options are the per-call generation settings shared by every provider.
// Generation is deterministic (temperature 0, top_p 1).
type Options struct {
	MaxTokens int
}
