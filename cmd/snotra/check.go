package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"snotra/internal/bot"
	"snotra/internal/config"
	"snotra/internal/telemetry"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run diagnostic checks on the configuration and its endpoints",
		Long: `Verifies that the configuration is complete, the language model
endpoint answers, and the optional Loki and metrics endpoints are usable.
Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snotra Check v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &checkReport{out: out}

			// 1. Config loads and validates
			cfg, err := loadConfig(config.Validate)
			if err != nil {
				r.fail("Config", err.Error())
				return r.summary()
			}
			r.pass("Config", "valid")
			r.pass("Transport", cfg.Transport)

			allow := bot.ParseAllowList(cfg.AllowedUsers)
			if allow.Len() == 0 {
				r.warn("Allow-list", "no usable entries, every message will be ignored")
			} else {
				r.pass("Allow-list", fmt.Sprintf("%d user(s)", allow.Len()))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			// 2. Language model endpoint
			llm := newLLM(cfg, consoleLogger(cfg))
			if err := llm.Healthy(ctx); err != nil {
				r.fail("Language model", err.Error())
			} else {
				r.pass("Language model", llm.Model())
			}

			// 3. Loki
			checkLoki(ctx, r, cfg)

			// 4. Metrics listener
			if cfg.Metrics.Addr != "" {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					r.warn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
				} else {
					r.pass("Metrics addr", cfg.Metrics.Addr+" available")
				}
			}

			return r.summary()
		},
	}
}

func checkLoki(ctx context.Context, r *checkReport, cfg *config.Config) {
	if cfg.Log.LokiURL == "" {
		r.warn("Loki", "not configured, logging to console only")
		return
	}
	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		LokiURL: cfg.Log.LokiURL,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	})
	if err != nil {
		r.fail("Loki", err.Error())
		return
	}
	defer tel.Close()
	if !tel.LokiEnabled {
		r.warn("Loki", "unreachable at "+cfg.Log.LokiURL)
		return
	}
	r.pass("Loki", cfg.Log.LokiURL)
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-16s %s\n", check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-16s %s\n", check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-16s %s\n", check, detail)
}

func (r *checkReport) summary() error {
	fmt.Fprintf(r.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}
