package domain

import "context"

// LLMClient is the capability the agent needs from a language model
// provider: turn one prompt into one response.
type LLMClient interface {
	SendMessage(ctx context.Context, prompt string) (*LLMResponse, error)
}

// LLMResponse is the decoded answer of a single completion call.
type LLMResponse struct {
	Model   string
	Content string
}
