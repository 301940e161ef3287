package provider

import (
	"context"

	"snotra/internal/domain"
)

// Func adapts a plain function to domain.LLMClient. Useful for wiring
// canned responses in tests and local runs.
type Func func(ctx context.Context, prompt string) (*domain.LLMResponse, error)

func (f Func) SendMessage(ctx context.Context, prompt string) (*domain.LLMResponse, error) {
	return f(ctx, prompt)
}
