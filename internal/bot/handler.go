// Package bot gates inbound chat messages, parses the phrase/gloss payload,
// asks the agent, and replies.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"snotra/internal/domain"
	"snotra/internal/metrics"
	"snotra/internal/telemetry"

	"github.com/google/uuid"
)

const (
	// FormatGuidance is sent when a message has no line break.
	FormatGuidance = "The message needs to be separated by a new line, like so:\n<German>\n<English>"
	// FailureNotice is sent when the language model could not be queried.
	FailureNotice = "There was a problem querying the language model."
)

// PhraseValidator is the part of the agent the handler needs.
type PhraseValidator interface {
	ValidatePhraseTranslation(ctx context.Context, german, english string) (string, bool)
}

// Policy selects between the observed authorization and shape-check
// behaviours. The zero value is the canonical policy: allow-list only, and
// keep parsing after the format guidance.
type Policy struct {
	// DirectOnly drops messages that come from group conversations.
	DirectOnly bool
	// StopAfterGuidance stops handling right after the format guidance reply.
	StopAfterGuidance bool
}

// Handler is safe for concurrent use. All fields are read-only after New.
type Handler struct {
	allow   AllowList
	agent   PhraseValidator
	policy  Policy
	metrics *metrics.Metrics
	logger  *slog.Logger

	inflight sync.WaitGroup
}

type Config struct {
	AllowList AllowList
	Agent     PhraseValidator
	Policy    Policy
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		allow:   cfg.AllowList,
		agent:   cfg.Agent,
		policy:  cfg.Policy,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// HandleAsync handles msg on its own goroutine. A panic while handling is
// logged and contained to this message.
func (h *Handler) HandleAsync(ctx context.Context, msg domain.InboundMessage, r domain.Replier) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic while handling message",
					"channel", msg.Channel,
					"author", msg.AuthorID,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
			}
		}()
		h.Handle(ctx, msg, r)
	}()
}

// Wait blocks until every message started with HandleAsync has finished.
func (h *Handler) Wait() { h.inflight.Wait() }

// Handle runs one message through the pipeline. It never returns an error:
// every failure is either answered with a fixed reply or logged.
func (h *Handler) Handle(ctx context.Context, msg domain.InboundMessage, r domain.Replier) {
	h.metrics.MessageReceived()
	if !h.authorized(msg) {
		return
	}

	h.metrics.MessageStarted()
	defer h.metrics.MessageDone()

	logger := h.logger.With(
		"request_id", uuid.NewString(),
		"channel", msg.Channel,
		"author", msg.AuthorID,
	)

	if !HasDelimiter(msg.Body) {
		h.reply(ctx, logger, r, FormatGuidance, "failed to send format message")
		if h.policy.StopAfterGuidance {
			h.metrics.Dropped(metrics.DropAfterWarning)
			return
		}
	}

	payload, extra, err := ParsePayload(msg.Body)
	if err != nil {
		telemetry.Trace(ctx, logger, err.Error())
		h.metrics.Dropped(metrics.DropMalformed)
		return
	}
	if extra {
		logger.Warn("message has more than 2 parts, ignoring the extra")
	}

	answer, ok := h.agent.ValidatePhraseTranslation(ctx, payload.Primary, payload.Secondary)
	if !ok {
		answer = FailureNotice
	}
	h.reply(ctx, logger, r, answer, "failed to send response reply")
}

func (h *Handler) authorized(msg domain.InboundMessage) bool {
	switch {
	case h.policy.DirectOnly && msg.FromGroup:
		h.metrics.Dropped(metrics.DropGroup)
		return false
	case msg.AuthorIsBot:
		h.metrics.Dropped(metrics.DropBot)
		return false
	case msg.AuthorID == "" || !h.allow.Contains(msg.AuthorID):
		h.metrics.Dropped(metrics.DropNotAllowed)
		return false
	}
	return true
}

func (h *Handler) reply(ctx context.Context, logger *slog.Logger, r domain.Replier, content, failMsg string) {
	err := r.Reply(ctx, content)
	h.metrics.Replied(err)
	if err != nil {
		logger.Error(failMsg, "err", err)
	}
}
