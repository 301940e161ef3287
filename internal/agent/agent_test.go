package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"snotra/internal/domain"
	"snotra/internal/metrics"
	"snotra/internal/provider"
)

// mockLLM records every prompt and answers with a canned response.
type mockLLM struct {
	mu      sync.Mutex
	prompts []string
	resp    *domain.LLMResponse
	err     error
}

func (m *mockLLM) SendMessage(ctx context.Context, prompt string) (*domain.LLMResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidatePhraseTranslation_SendsExactPrompt(t *testing.T) {
	llm := &mockLLM{resp: &domain.LLMResponse{Model: "mock", Content: "Yes, you are right!"}}
	a := New(Config{LLM: llm, Logger: testLogger()})

	got, ok := a.ValidatePhraseTranslation(context.Background(), "diese wort", "this word")
	if !ok {
		t.Fatal("expected a response")
	}
	if got != "Yes, you are right!" {
		t.Fatalf("expected verbatim content, got %q", got)
	}
	want := "In German, is 'diese wort' the right way to say 'this word'? If not, explain why and mark the differences in bold."
	if len(llm.prompts) != 1 || llm.prompts[0] != want {
		t.Fatalf("unexpected prompts: %q", llm.prompts)
	}
}

func TestAskWordDifference_SendsExactPrompt(t *testing.T) {
	llm := &mockLLM{resp: &domain.LLMResponse{Model: "mock", Content: "Etwas is something and sache is thing"}}
	a := New(Config{LLM: llm, Logger: testLogger()})

	got, ok := a.AskWordDifference(context.Background(), "etwas", "sache")
	if !ok || got != "Etwas is something and sache is thing" {
		t.Fatalf("unexpected result %q, %v", got, ok)
	}
	want := "In German, what is the difference between 'etwas' and 'sache'?"
	if len(llm.prompts) != 1 || llm.prompts[0] != want {
		t.Fatalf("unexpected prompts: %q", llm.prompts)
	}
}

func TestPrompts_SubstituteVerbatim(t *testing.T) {
	pairs := [][2]string{
		{"Hund", "dog"},
		{"it's", "l'eau"},
		{"zwei\tWörter", "two  words"},
		{"%s", "%d"},
	}
	for _, p := range pairs {
		llm := &mockLLM{resp: &domain.LLMResponse{Content: "content " + p[0]}}
		a := New(Config{LLM: llm, Logger: testLogger()})

		got, ok := a.ValidatePhraseTranslation(context.Background(), p[0], p[1])
		if !ok || got != "content "+p[0] {
			t.Fatalf("unexpected result for %q: %q %v", p, got, ok)
		}
		want := "In German, is '" + p[0] + "' the right way to say '" + p[1] + "'? If not, explain why and mark the differences in bold."
		if llm.prompts[0] != want {
			t.Fatalf("prompt mismatch:\n got %q\nwant %q", llm.prompts[0], want)
		}

		a.AskWordDifference(context.Background(), p[0], p[1])
		want = "In German, what is the difference between '" + p[0] + "' and '" + p[1] + "'?"
		if llm.prompts[1] != want {
			t.Fatalf("prompt mismatch:\n got %q\nwant %q", llm.prompts[1], want)
		}
	}
}

func TestQueryFailure_ReturnsAbsent(t *testing.T) {
	errs := []error{
		errors.New("opaque"),
		&domain.LLMError{Kind: domain.KindAuth, StatusCode: 401, Err: errors.New("bad key")},
		&domain.LLMError{Kind: domain.KindMalformed, Err: errors.New("no choices")},
	}
	for _, e := range errs {
		var logs bytes.Buffer
		m := metrics.New()
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		a := New(Config{LLM: &mockLLM{err: e}, Metrics: m, Logger: logger})

		if got, ok := a.ValidatePhraseTranslation(context.Background(), "etwas", "something"); ok || got != "" {
			t.Fatalf("expected absent result for %v, got %q", e, got)
		}
		if got, ok := a.AskWordDifference(context.Background(), "etwas", "sache"); ok || got != "" {
			t.Fatalf("expected absent result for %v, got %q", e, got)
		}
		if m.LLMErrorsTotal.Value() != 2 {
			t.Fatalf("expected 2 llm errors recorded, got %d", m.LLMErrorsTotal.Value())
		}
		out := logs.String()
		if strings.Count(out, "level=ERROR") != 2 || !strings.Contains(out, "failed sending the query to the llm") {
			t.Fatalf("expected one error log per failure for %v, got:\n%s", e, out)
		}
		if !strings.Contains(out, "kind="+domain.KindOf(e).String()) {
			t.Fatalf("expected error kind in log for %v, got:\n%s", e, out)
		}
	}
}

func TestQuery_NilResponseIsFailure(t *testing.T) {
	a := New(Config{LLM: &mockLLM{}, Logger: testLogger()})
	if _, ok := a.ValidatePhraseTranslation(context.Background(), "a", "b"); ok {
		t.Fatal("nil response without error should be treated as failure")
	}
}

func TestQuery_TimeoutBoundsDispatch(t *testing.T) {
	slow := provider.Func(func(ctx context.Context, prompt string) (*domain.LLMResponse, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &domain.LLMResponse{Content: "too late"}, nil
		}
	})
	a := New(Config{LLM: slow, Timeout: 20 * time.Millisecond, Logger: testLogger()})

	start := time.Now()
	if _, ok := a.ValidatePhraseTranslation(context.Background(), "a", "b"); ok {
		t.Fatal("expected failure on timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout did not bound the dispatch")
	}
}

func TestQuery_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	a := New(Config{LLM: &mockLLM{resp: &domain.LLMResponse{Content: "ok"}}, Metrics: m, Logger: testLogger()})
	a.ValidatePhraseTranslation(context.Background(), "a", "b")
	if m.LLMRequestsTotal.Value() != 1 || m.LLMErrorsTotal.Value() != 0 {
		t.Fatalf("unexpected counts %d/%d", m.LLMRequestsTotal.Value(), m.LLMErrorsTotal.Value())
	}
}
