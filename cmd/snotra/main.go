package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snotra/internal/config"
	"snotra/internal/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	version    = "0.1.0"
	configPath string   // overridable via --config flag
	envFiles   []string // overridable via --env flag
)

func main() {
	root := &cobra.Command{
		Use:   "snotra",
		Short: "Snotra: a chat assistant for German learners",
		Long: `Snotra listens on a chat transport for messages of the form

  <German phrase>
  <English meaning>

and asks a language model whether the German is right.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to an optional YAML config file")
	root.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files merged into the environment")

	root.AddCommand(runCmd())
	root.AddCommand(askCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and, when validate is not nil, checks
// it. Each command validates only what it uses.
func loadConfig(validate func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.Read(configPath, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen on the configured transport (default)",
		Long:  "Starts the configured transport (discord, telegram or cli) and answers messages until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(config.Validate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

// run starts the transport and, when configured, the /metrics listener.
// Either one failing stops the other.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("snotra starting",
		"version", version,
		"transport", a.channel.Name(),
		"model", a.llm.Model(),
		"allowed_users", a.allow.Len(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		// A transport that returns on its own (cli at EOF) ends the process.
		defer cancel()
		err := a.channel.Start(groupCtx, a.handler)
		a.handler.Wait()
		if err != nil {
			return fmt.Errorf("%s transport: %w", a.channel.Name(), err)
		}
		return nil
	})

	if a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Registry.Handler())
		srv := &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			a.logger.Info("metrics listening", "addr", srv.Addr)
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("metrics server: %w", err)
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	a.logger.Info("snotra stopped")
	return err
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. openai.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(val)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	return cmd
}

// consoleLogger is used by one-shot commands that do not ship logs.
func consoleLogger(cfg *config.Config) *slog.Logger {
	level, err := telemetry.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, ReplaceAttr: telemetry.ReplaceLevel}))
}
