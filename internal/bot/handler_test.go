package bot

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

	"snotra/internal/agent"
	"snotra/internal/domain"
	"snotra/internal/metrics"
	"snotra/internal/provider"
	"snotra/internal/telemetry"
)

type call struct{ german, english string }

// fakeAgent records dispatches and returns a fixed outcome.
type fakeAgent struct {
	mu     sync.Mutex
	calls  []call
	answer string
	ok     bool
}

func (f *fakeAgent) ValidatePhraseTranslation(ctx context.Context, german, english string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{german, english})
	return f.answer, f.ok
}

func (f *fakeAgent) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recorder collects replies; err, when set, is returned from every Reply.
type recorder struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (r *recorder) Reply(ctx context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, content)
	return r.err
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replies...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: telemetry.LevelTrace, ReplaceAttr: telemetry.ReplaceLevel}))
}

func newHandler(a PhraseValidator, p Policy, logger *slog.Logger) *Handler {
	return New(Config{
		AllowList: ParseAllowList("alice,Bob"),
		Agent:     a,
		Policy:    p,
		Metrics:   metrics.New(),
		Logger:    logger,
	})
}

func msgFrom(author, body string) domain.InboundMessage {
	return domain.InboundMessage{Channel: "test", ChatID: "c1", AuthorID: author, Body: body}
}

// --- Parsing ---

func TestParsePayload_TwoLines(t *testing.T) {
	p, extra, err := ParsePayload("etwas\nsomething")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Primary != "etwas" || p.Secondary != "something" || extra {
		t.Fatalf("unexpected payload %+v extra=%v", p, extra)
	}
}

func TestParsePayload_ExtraLinesDiscarded(t *testing.T) {
	p, extra, err := ParsePayload("etwas\nsomething\nmore")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Primary != "etwas" || p.Secondary != "something" || !extra {
		t.Fatalf("unexpected payload %+v extra=%v", p, extra)
	}
}

func TestParsePayload_NoDelimiter(t *testing.T) {
	if _, _, err := ParsePayload("etwas"); !errors.Is(err, ErrTooFewSegments) {
		t.Fatalf("expected ErrTooFewSegments, got %v", err)
	}
}

func TestParsePayload_EmptySecondLine(t *testing.T) {
	p, _, err := ParsePayload("etwas\n")
	if err != nil {
		t.Fatalf("two segments expected, got %v", err)
	}
	if p.Primary != "etwas" || p.Secondary != "" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

// --- AllowList ---

func TestAllowList_ExactCaseSensitive(t *testing.T) {
	a := ParseAllowList("alice,Bob")
	if !a.Contains("alice") || !a.Contains("Bob") {
		t.Fatal("expected members to match")
	}
	for _, id := range []string{"Alice", "bob", " alice", "alic", ""} {
		if a.Contains(id) {
			t.Fatalf("%q must not match", id)
		}
	}
	if got := a.IDs(); len(got) != 2 || got[0] != "alice" || got[1] != "Bob" {
		t.Fatalf("expected configured order, got %v", got)
	}
}

func TestAllowList_Empty(t *testing.T) {
	a := ParseAllowList("")
	if a.Len() != 0 || a.Contains("") {
		t.Fatal("empty allow list must contain nobody")
	}
}

// --- Handler ---

func TestHandle_ValidMessageDispatchesOnce(t *testing.T) {
	fa := &fakeAgent{answer: "Ja.", ok: true}
	rec := &recorder{}
	h := newHandler(fa, Policy{}, testLogger())

	h.Handle(context.Background(), msgFrom("alice", "etwas\nsomething"), rec)

	if len(fa.calls) != 1 || fa.calls[0] != (call{"etwas", "something"}) {
		t.Fatalf("unexpected dispatches %+v", fa.calls)
	}
	if got := rec.all(); len(got) != 1 || got[0] != "Ja." {
		t.Fatalf("unexpected replies %q", got)
	}
}

func TestHandle_ExtraSegmentsWarnAndUseFirstTwo(t *testing.T) {
	var logs bytes.Buffer
	fa := &fakeAgent{answer: "ok", ok: true}
	h := newHandler(fa, Policy{}, bufferLogger(&logs))

	h.Handle(context.Background(), msgFrom("alice", "etwas\nsomething\nmore"), &recorder{})

	if len(fa.calls) != 1 || fa.calls[0] != (call{"etwas", "something"}) {
		t.Fatalf("unexpected dispatches %+v", fa.calls)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "more than 2 parts") {
		t.Fatalf("expected warning, got:\n%s", logs.String())
	}
}

func TestHandle_NoDelimiterLogsTooFewSegmentsAtTrace(t *testing.T) {
	var logs bytes.Buffer
	fa := &fakeAgent{answer: "x", ok: true}
	h := newHandler(fa, Policy{}, bufferLogger(&logs))

	h.Handle(context.Background(), msgFrom("alice", "etwas"), &recorder{})

	out := logs.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "message does not have at least 2 parts") {
		t.Fatalf("expected trace log for the short message, got:\n%s", out)
	}
	if strings.Contains(out, "level=WARN") || strings.Contains(out, "level=ERROR") {
		t.Fatalf("a short message is not a warning, got:\n%s", out)
	}
}

func TestHandle_EmptyAuthorNeverAuthorized(t *testing.T) {
	fa := &fakeAgent{answer: "x", ok: true}
	rec := &recorder{}
	m := metrics.New()
	// A trailing comma leaves an empty entry in the allow-list.
	h := New(Config{AllowList: ParseAllowList("alice,"), Agent: fa, Metrics: m, Logger: testLogger()})

	h.Handle(context.Background(), msgFrom("", "Hund\ndog"), rec)

	if fa.count() != 0 || len(rec.all()) != 0 {
		t.Fatalf("author without identity must be dropped, got %d dispatches, replies %q", fa.count(), rec.all())
	}
	if !NewAllowList("alice", "").Contains("") {
		t.Fatal("allow-list matching itself stays exact")
	}
	if m.MessagesTotal.Value() != 1 {
		t.Fatalf("dropped messages still count as received, got %d", m.MessagesTotal.Value())
	}
	if m.InFlight.Value() != 0 {
		t.Fatalf("dropped message must not be in flight, got %d", m.InFlight.Value())
	}
}

func TestHandle_NoDelimiterSendsGuidanceOnly(t *testing.T) {
	for _, p := range []Policy{{}, {StopAfterGuidance: true}} {
		fa := &fakeAgent{answer: "x", ok: true}
		rec := &recorder{}
		h := newHandler(fa, p, testLogger())

		h.Handle(context.Background(), msgFrom("alice", "etwas"), rec)

		if fa.count() != 0 {
			t.Fatalf("policy %+v: no dispatch expected", p)
		}
		if got := rec.all(); len(got) != 1 || got[0] != FormatGuidance {
			t.Fatalf("policy %+v: expected exactly the guidance reply, got %q", p, got)
		}
	}
}

func TestHandle_BotAuthorNeverDispatches(t *testing.T) {
	fa := &fakeAgent{ok: true}
	rec := &recorder{}
	h := newHandler(fa, Policy{}, testLogger())

	msg := msgFrom("alice", "Hund\ndog")
	msg.AuthorIsBot = true
	h.Handle(context.Background(), msg, rec)

	if fa.count() != 0 || len(rec.all()) != 0 {
		t.Fatalf("bot message must be dropped silently: calls=%d replies=%q", fa.count(), rec.all())
	}
}

func TestHandle_UnknownAuthorNeverDispatches(t *testing.T) {
	fa := &fakeAgent{ok: true}
	rec := &recorder{}
	h := newHandler(fa, Policy{}, testLogger())

	for _, author := range []string{"mallory", "Alice", "bob"} {
		h.Handle(context.Background(), msgFrom(author, "Hund\ndog"), rec)
		h.Handle(context.Background(), msgFrom(author, "Hund"), rec)
	}
	if fa.count() != 0 || len(rec.all()) != 0 {
		t.Fatalf("unknown authors must be dropped silently: calls=%d replies=%q", fa.count(), rec.all())
	}
}

func TestHandle_GroupMessages(t *testing.T) {
	msg := msgFrom("alice", "Hund\ndog")
	msg.FromGroup = true

	fa := &fakeAgent{answer: "ok", ok: true}
	newHandler(fa, Policy{}, testLogger()).Handle(context.Background(), msg, &recorder{})
	if fa.count() != 1 {
		t.Fatal("canonical policy should not filter on group context")
	}

	fa = &fakeAgent{answer: "ok", ok: true}
	newHandler(fa, Policy{DirectOnly: true}, testLogger()).Handle(context.Background(), msg, &recorder{})
	if fa.count() != 0 {
		t.Fatal("direct-only policy must drop group messages")
	}
}

func TestHandle_AgentFailureSendsNotice(t *testing.T) {
	fa := &fakeAgent{ok: false}
	rec := &recorder{}
	h := newHandler(fa, Policy{}, testLogger())

	h.Handle(context.Background(), msgFrom("Bob", "Hund\ndog"), rec)

	if got := rec.all(); len(got) != 1 || got[0] != FailureNotice {
		t.Fatalf("expected failure notice, got %q", got)
	}
}

func TestHandle_ReplyErrorIsSwallowed(t *testing.T) {
	var logs bytes.Buffer
	fa := &fakeAgent{answer: "ok", ok: true}
	rec := &recorder{err: errors.New("connection reset")}
	m := metrics.New()
	h := New(Config{AllowList: NewAllowList("alice"), Agent: fa, Metrics: m, Logger: bufferLogger(&logs)})

	h.Handle(context.Background(), msgFrom("alice", "Hund\ndog"), rec)
	h.Handle(context.Background(), msgFrom("alice", "Katze\ncat"), rec)

	if fa.count() != 2 {
		t.Fatalf("later messages must still be processed, got %d dispatches", fa.count())
	}
	if !strings.Contains(logs.String(), "level=ERROR") || !strings.Contains(logs.String(), "connection reset") {
		t.Fatalf("expected error log, got:\n%s", logs.String())
	}
	if m.ReplyErrors.Value() != 2 {
		t.Fatalf("expected 2 reply errors recorded, got %d", m.ReplyErrors.Value())
	}
}

func TestHandle_AtMostTwoReplies(t *testing.T) {
	fa := &fakeAgent{answer: "ok", ok: true}
	rec := &recorder{}
	h := newHandler(fa, Policy{}, testLogger())

	for _, body := range []string{"", "a", "a\nb", "a\nb\nc", "\n\n\n"} {
		before := len(rec.all())
		h.Handle(context.Background(), msgFrom("alice", body), rec)
		if n := len(rec.all()) - before; n > 2 {
			t.Fatalf("body %q produced %d replies", body, n)
		}
	}
}

func TestHandleAsync_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	boom := domain.ReplyFunc(func(ctx context.Context, content string) error {
		defer close(done)
		panic("replier exploded")
	})
	h := newHandler(&fakeAgent{answer: "ok", ok: true}, Policy{}, testLogger())

	h.HandleAsync(context.Background(), msgFrom("alice", "Hund\ndog"), boom)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
	h.Wait()
}

func TestHandleAsync_WaitDrainsInFlight(t *testing.T) {
	rec := &recorder{}
	h := newHandler(&fakeAgent{answer: "Richtig.", ok: true}, Policy{}, testLogger())
	for i := 0; i < 5; i++ {
		h.HandleAsync(context.Background(), msgFrom("alice", "Hund\ndog"), rec)
	}
	h.Wait()
	if got := len(rec.all()); got != 5 {
		t.Fatalf("expected 5 replies after Wait, got %d", got)
	}
}

func TestHandle_ConcurrentMessages(t *testing.T) {
	fa := &fakeAgent{answer: "ok", ok: true}
	rec := &recorder{}
	h := newHandler(fa, Policy{}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Handle(context.Background(), msgFrom("alice", "Hund\ndog"), rec)
		}()
	}
	wg.Wait()
	if fa.count() != 50 || len(rec.all()) != 50 {
		t.Fatalf("expected 50 dispatches and replies, got %d/%d", fa.count(), len(rec.all()))
	}
}

// --- End to end through the real agent ---

func TestEndToEnd_Success(t *testing.T) {
	want := "In German, is 'Hund' the right way to say 'dog'? If not, explain why and mark the differences in bold."
	llm := provider.Func(func(ctx context.Context, prompt string) (*domain.LLMResponse, error) {
		if prompt != want {
			return nil, errors.New("unexpected prompt: " + prompt)
		}
		return &domain.LLMResponse{Model: "mock", Content: "Yes, correct."}, nil
	})
	rec := &recorder{}
	h := New(Config{
		AllowList: ParseAllowList("alice"),
		Agent:     agent.New(agent.Config{LLM: llm, Logger: testLogger()}),
		Logger:    testLogger(),
	})

	h.Handle(context.Background(), msgFrom("alice", "Hund\ndog"), rec)

	if got := rec.all(); len(got) != 1 || got[0] != "Yes, correct." {
		t.Fatalf("expected exactly the model answer, got %q", got)
	}
}

func TestEndToEnd_LLMFailure(t *testing.T) {
	llm := provider.Func(func(ctx context.Context, prompt string) (*domain.LLMResponse, error) {
		return nil, &domain.LLMError{Kind: domain.KindNetwork, Err: errors.New("dial tcp: refused")}
	})
	rec := &recorder{}
	h := New(Config{
		AllowList: ParseAllowList("alice"),
		Agent:     agent.New(agent.Config{LLM: llm, Logger: testLogger()}),
		Logger:    testLogger(),
	})

	h.Handle(context.Background(), msgFrom("alice", "Hund\ndog"), rec)

	if got := rec.all(); len(got) != 1 || got[0] != FailureNotice {
		t.Fatalf("expected failure notice, got %q", got)
	}
}
