package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type Options struct {
	Level   string
	Format  string // text | json
	LokiURL string // empty = console only

	Stdout     io.Writer    // default os.Stdout
	Stderr     io.Writer    // default os.Stderr, receives Loki push failures
	HTTPClient *http.Client // used for the Loki probe and pushes
}

// Telemetry is the process logging handle built once at startup.
type Telemetry struct {
	Logger *slog.Logger
	// LokiEnabled is true when the remote sink was reachable at startup.
	LokiEnabled bool

	loki *lokiPusher
}

// Setup builds the logger. It fails only on an invalid level or format;
// a missing or unreachable Loki endpoint degrades to console logging.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	console, err := newConsoleHandler(opts.Stdout, opts.Format, level)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{}
	if opts.LokiURL == "" {
		t.Logger = slog.New(console)
		t.Logger.Warn("Loki URL not provided. Continuing without it.")
		return t, nil
	}

	if err := probeLoki(ctx, opts.HTTPClient, opts.LokiURL); err != nil {
		t.Logger = slog.New(console)
		t.Logger.Warn("Couldn't connect to Loki. Continuing without it.", "url", opts.LokiURL, "err", err)
		return t, nil
	}

	pusher, err := newLokiPusher(opts.LokiURL, opts.HTTPClient, opts.Stderr)
	if err != nil {
		t.Logger = slog.New(console)
		t.Logger.Warn("Invalid Loki URL. Continuing without it.", "url", opts.LokiURL, "err", err)
		return t, nil
	}

	t.loki = pusher
	t.LokiEnabled = true
	t.Logger = slog.New(fanout{console, newLokiHandler(pusher, level)})
	t.Logger.Info("Loki initialized", "url", opts.LokiURL)
	return t, nil
}

// Close flushes the remote sink, if any.
func (t *Telemetry) Close() {
	if t != nil && t.loki != nil {
		t.loki.Close()
	}
}
