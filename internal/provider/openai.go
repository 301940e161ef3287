package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snotra/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = openai.GPT3Dot5Turbo
	defaultHTTPTimeout = 120 * time.Second
)

// OpenAI implements domain.LLMClient for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string // empty = https://api.openai.com/v1
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		oc.BaseURL = cfg.APIBase
	}
	oc.HTTPClient = SharedHTTPClient(cfg.Timeout)

	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

// SendMessage sends prompt as a single user message and returns the first
// completion choice.
func (o *OpenAI) SendMessage(ctx context.Context, prompt string) (*domain.LLMResponse, error) {
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &domain.LLMError{Kind: domain.KindMalformed, Err: fmt.Errorf("openai: response %q has no choices", resp.ID)}
	}

	o.logger.Debug("openai completion",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &domain.LLMResponse{
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

// Healthy checks that the API is reachable and the key is accepted.
func (o *OpenAI) Healthy(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}
