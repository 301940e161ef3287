package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistry_CounterIsReused(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("x_total", "help", `k="v"`)
	b := r.Counter("x_total", "help", `k="v"`)
	if a != b {
		t.Fatal("expected same counter for same name and labels")
	}
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Fatalf("expected 3, got %d", a.Value())
	}
}

func TestRegistry_HistogramAddsInfBucket(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("lat_seconds", "latency", "", []float64{1, 0.5})
	h.Observe(0.2)
	h.Observe(0.7)
	h.Observe(100)

	var sb strings.Builder
	if _, err := r.WriteTo(&sb); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		`lat_seconds_bucket{le="0.5"} 1`,
		`lat_seconds_bucket{le="1"} 2`,
		`lat_seconds_bucket{le="+Inf"} 3`,
		`lat_seconds_count 3`,
		`# TYPE lat_seconds histogram`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestMetrics_RecordsOutcomes(t *testing.T) {
	m := New()
	m.MessageReceived()
	m.MessageReceived()
	m.MessageStarted()
	m.Dropped(DropBot)
	m.Dropped(DropBot)
	m.LLMCall(0.3, nil)
	m.LLMCall(1.2, errors.New("boom"))
	m.Replied(nil)
	m.Replied(errors.New("send failed"))
	m.MessageDone()

	if m.MessagesTotal.Value() != 2 || m.InFlight.Value() != 0 {
		t.Fatalf("unexpected message counts: total=%d inflight=%d", m.MessagesTotal.Value(), m.InFlight.Value())
	}
	if m.LLMRequestsTotal.Value() != 2 || m.LLMErrorsTotal.Value() != 1 {
		t.Fatalf("unexpected llm counts: %d/%d", m.LLMRequestsTotal.Value(), m.LLMErrorsTotal.Value())
	}
	if m.RepliesTotal.Value() != 1 || m.ReplyErrors.Value() != 1 {
		t.Fatalf("unexpected reply counts: %d/%d", m.RepliesTotal.Value(), m.ReplyErrors.Value())
	}
	if m.LLMLatency.Count() != 2 {
		t.Fatalf("expected 2 latency observations, got %d", m.LLMLatency.Count())
	}

	rec := httptest.NewRecorder()
	m.Registry.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `snotra_messages_dropped_total{reason="bot"} 2`) {
		t.Fatalf("dropped counter missing:\n%s", body)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageReceived()
	m.MessageStarted()
	m.Dropped(DropNotAllowed)
	m.LLMCall(1, nil)
	m.Replied(nil)
	m.MessageDone()
}
