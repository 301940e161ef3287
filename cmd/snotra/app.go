package main

import (
	"context"
	"fmt"
	"log/slog"

	"snotra/internal/agent"
	"snotra/internal/bot"
	"snotra/internal/channel"
	"snotra/internal/config"
	"snotra/internal/domain"
	"snotra/internal/metrics"
	"snotra/internal/provider"
	"snotra/internal/telemetry"
)

// app holds the long-lived components built once at startup.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
	metrics   *metrics.Metrics
	llm       *provider.OpenAI
	allow     bot.AllowList
	handler   *bot.Handler
	channel   domain.Channel
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		LokiURL: cfg.Log.LokiURL,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger := tel.Logger

	m := metrics.New()
	llm := newLLM(cfg, logger)
	allow := bot.ParseAllowList(cfg.AllowedUsers)

	handler := bot.New(bot.Config{
		AllowList: allow,
		Agent:     newAgent(cfg, llm, m, logger),
		Policy: bot.Policy{
			DirectOnly:        cfg.Policy.DirectOnly,
			StopAfterGuidance: cfg.Policy.StopAfterGuidance,
		},
		Metrics: m,
		Logger:  logger,
	})

	ch, err := newChannel(cfg, allow, logger)
	if err != nil {
		tel.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		telemetry: tel,
		logger:    logger,
		metrics:   m,
		llm:       llm,
		allow:     allow,
		handler:   handler,
		channel:   ch,
	}, nil
}

func (a *app) close() {
	a.telemetry.Close()
}

func newLLM(cfg *config.Config, logger *slog.Logger) *provider.OpenAI {
	return provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  cfg.OpenAI.Token,
		APIBase: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Logger:  logger,
	})
}

func newAgent(cfg *config.Config, llm domain.LLMClient, m *metrics.Metrics, logger *slog.Logger) *agent.Agent {
	return agent.New(agent.Config{
		LLM:     llm,
		Timeout: cfg.OpenAI.Timeout,
		Metrics: m,
		Logger:  logger,
	})
}

// newChannel picks the transport named by cfg.Transport.
func newChannel(cfg *config.Config, allow bot.AllowList, logger *slog.Logger) (domain.Channel, error) {
	switch cfg.Transport {
	case config.TransportDiscord:
		return channel.NewDiscord(channel.DiscordConfig{
			Token:  cfg.Discord.Token,
			Logger: logger,
		}), nil
	case config.TransportTelegram:
		return channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Telegram.Token,
			Logger: logger,
		}), nil
	case config.TransportCLI:
		ids := allow.IDs()
		if len(ids) == 0 {
			return nil, fmt.Errorf("cli transport: allow-list is empty")
		}
		// The terminal user speaks as the first allowed author.
		return channel.NewCLI(channel.CLIConfig{
			User:   ids[0],
			Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
