// Package agent turns translation-help intents into LLM prompts and decodes
// the answers. Provider failures never leave this package: callers only see
// whether an answer is available.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"snotra/internal/domain"
	"snotra/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// Agent is safe for concurrent use; it holds no per-call state.
type Agent struct {
	llm     domain.LLMClient
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Config struct {
	LLM     domain.LLMClient
	Timeout time.Duration // bound on one dispatch; default 60s
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func New(cfg Config) *Agent {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Agent{
		llm:     cfg.LLM,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// ValidatePhraseTranslation asks whether german is the right way to say
// english. ok is false when the LLM call failed.
func (a *Agent) ValidatePhraseTranslation(ctx context.Context, german, english string) (string, bool) {
	a.logger.InfoContext(ctx, "querying llm for phrase translation", "english", english, "german", german)
	return a.query(ctx, PhraseTranslationPrompt(german, english))
}

// AskWordDifference asks how first and second differ in German.
func (a *Agent) AskWordDifference(ctx context.Context, first, second string) (string, bool) {
	a.logger.InfoContext(ctx, "querying llm for word difference", "first", first, "second", second)
	return a.query(ctx, WordDifferencePrompt(first, second))
}

func (a *Agent) query(ctx context.Context, prompt string) (string, bool) {
	a.logger.DebugContext(ctx, "sending query", "prompt", prompt)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.llm.SendMessage(ctx, prompt)
	if err == nil && resp == nil {
		err = &domain.LLMError{Kind: domain.KindMalformed, Err: errors.New("empty response")}
	}
	a.metrics.LLMCall(time.Since(start).Seconds(), err)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed sending the query to the llm",
			"kind", domain.KindOf(err).String(),
			"err", err,
		)
		return "", false
	}

	a.logger.DebugContext(ctx, "query finished", "model", resp.Model, "response", resp.Content)
	return resp.Content, true
}
