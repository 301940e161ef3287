package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"snotra/internal/domain"
)

// CLI implements domain.Channel over a terminal. Each message is a block of
// lines terminated by an empty line; replies are printed to out.
type CLI struct {
	user   string
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
}

type CLIConfig struct {
	User   string // author identifier attached to every message
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		user:   cfg.User,
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start reads messages until EOF or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, h domain.MessageHandler) error {
	c.print("Type the German phrase, then the English meaning on the next line. An empty line sends.\n")

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()

	var block []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.flush(ctx, h, block)
				return <-errc
			}
			if strings.TrimSpace(line) == "" {
				c.flush(ctx, h, block)
				block = block[:0]
				continue
			}
			block = append(block, line)
		}
	}
}

func (c *CLI) flush(ctx context.Context, h domain.MessageHandler, block []string) {
	if len(block) == 0 {
		return
	}
	c.logger.Debug("cli message read", "lines", len(block))
	h.HandleAsync(ctx, domain.InboundMessage{
		Channel:  "cli",
		ChatID:   "stdin",
		AuthorID: c.user,
		Body:     strings.Join(block, "\n"),
	}, domain.ReplyFunc(func(ctx context.Context, content string) error {
		return c.print("--- snotra ---\n" + content + "\n--------------\n")
	}))
}

func (c *CLI) print(s string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprint(c.out, s)
	return err
}
