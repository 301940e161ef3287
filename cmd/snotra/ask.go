package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"snotra/internal/agent"
	"snotra/internal/bot"
	"snotra/internal/config"

	"github.com/spf13/cobra"
)

var errNoAnswer = errors.New(bot.FailureNotice)

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask the language model once, without a chat transport",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [german] [english]",
		Short: "Check whether a German phrase says the English meaning",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return askOnce(cmd, func(ctx context.Context, a *agent.Agent) (string, bool) {
				return a.ValidatePhraseTranslation(ctx, args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "diff [first] [second]",
		Short: "Explain the difference between two German words",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return askOnce(cmd, func(ctx context.Context, a *agent.Agent) (string, bool) {
				return a.AskWordDifference(ctx, args[0], args[1])
			})
		},
	})

	return cmd
}

func askOnce(cmd *cobra.Command, q func(context.Context, *agent.Agent) (string, bool)) error {
	cfg, err := loadConfig(config.ValidateLLM)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := consoleLogger(cfg)
	a := newAgent(cfg, newLLM(cfg, logger), nil, logger)

	answer, ok := q(ctx, a)
	if !ok {
		return errNoAnswer
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
