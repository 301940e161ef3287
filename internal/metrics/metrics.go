package metrics

// Drop reasons reported by the message handler.
const (
	DropBot          = "bot"
	DropNotAllowed   = "not_allowed"
	DropGroup        = "group"
	DropMalformed    = "malformed"
	DropAfterWarning = "format_guidance"
)

// Metrics is the set of instruments the assistant records. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *Registry

	MessagesTotal    *Counter
	RepliesTotal     *Counter
	ReplyErrors      *Counter
	LLMRequestsTotal *Counter
	LLMErrorsTotal   *Counter
	InFlight         *Gauge
	LLMLatency       *Histogram
}

func New() *Metrics {
	r := NewRegistry()
	return &Metrics{
		Registry:         r,
		MessagesTotal:    r.Counter("snotra_messages_total", "Inbound messages received", ""),
		RepliesTotal:     r.Counter("snotra_replies_total", "Replies sent", ""),
		ReplyErrors:      r.Counter("snotra_reply_errors_total", "Replies that failed to send", ""),
		LLMRequestsTotal: r.Counter("snotra_llm_requests_total", "LLM completion requests", ""),
		LLMErrorsTotal:   r.Counter("snotra_llm_errors_total", "LLM completion requests that failed", ""),
		InFlight:         r.Gauge("snotra_messages_in_flight", "Messages currently being handled", ""),
		LLMLatency: r.Histogram("snotra_llm_latency_seconds", "LLM request latency in seconds", "",
			[]float64{0.5, 1, 2, 5, 10, 30, 60}),
	}
}

// Dropped counts a message discarded before reaching the agent.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.Registry.Counter("snotra_messages_dropped_total", "Inbound messages dropped before dispatch", `reason="`+reason+`"`).Inc()
}

// MessageReceived counts every inbound message, authorized or not.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessagesTotal.Inc()
}

// MessageStarted marks an authorized message as in flight.
func (m *Metrics) MessageStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) MessageDone() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

func (m *Metrics) Replied(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReplyErrors.Inc()
		return
	}
	m.RepliesTotal.Inc()
}

// LLMCall records one completion request and its outcome.
func (m *Metrics) LLMCall(seconds float64, err error) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.Inc()
	m.LLMLatency.Observe(seconds)
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}
