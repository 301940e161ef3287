package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	lokiPushPath      = "/loki/api/v1/push"
	lokiBatchSize     = 100
	lokiFlushInterval = 2 * time.Second
)

type lokiEntry struct {
	ts   time.Time
	line string
}

// lokiPusher batches log lines and pushes them to Loki's HTTP API.
// Failed pushes are reported to errOut and dropped.
type lokiPusher struct {
	endpoint string
	labels   map[string]string
	client   *http.Client
	errOut   io.Writer

	mu      sync.Mutex
	pending []lokiEntry
	kick    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newLokiPusher(baseURL string, client *http.Client, errOut io.Writer) (*lokiPusher, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid loki url %q", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	p := &lokiPusher{
		endpoint: strings.TrimRight(u.String(), "/") + lokiPushPath,
		labels:   map[string]string{"service": ServiceName},
		client:   client,
		errOut:   errOut,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Write receives exactly one formatted record from the wrapped slog handler.
func (p *lokiPusher) Write(b []byte) (int, error) {
	line := strings.TrimRight(string(b), "\n")
	p.mu.Lock()
	p.pending = append(p.pending, lokiEntry{ts: time.Now(), line: line})
	full := len(p.pending) >= lokiBatchSize
	p.mu.Unlock()
	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
	return len(b), nil
}

func (p *lokiPusher) run() {
	defer close(p.stopped)
	ticker := time.NewTicker(lokiFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.kick:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

func (p *lokiPusher) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := p.push(batch); err != nil {
		fmt.Fprintf(p.errOut, "loki push failed, dropped %d lines: %v\n", len(batch), err)
	}
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

func (p *lokiPusher) push(batch []lokiEntry) error {
	values := make([][2]string, 0, len(batch))
	for _, e := range batch {
		values = append(values, [2]string{strconv.FormatInt(e.ts.UnixNano(), 10), e.line})
	}
	body, err := json.Marshal(lokiPushRequest{Streams: []lokiStream{{Stream: p.labels, Values: values}}})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("loki %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Close flushes pending lines and stops the background loop.
func (p *lokiPusher) Close() {
	p.once.Do(func() {
		close(p.done)
		<-p.stopped
	})
}

// probeLoki reports whether anything answers at baseURL. Any HTTP response
// counts as reachable.
func probeLoki(ctx context.Context, client *http.Client, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func newLokiHandler(p *lokiPusher, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(p, &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLevel})
}
