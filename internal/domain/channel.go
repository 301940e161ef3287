package domain

import "context"

// Replier sends text back to the conversation an InboundMessage came from.
// Each transport supplies its own implementation per message.
type Replier interface {
	Reply(ctx context.Context, content string) error
}

// ReplyFunc adapts a plain function to the Replier interface.
type ReplyFunc func(ctx context.Context, content string) error

func (f ReplyFunc) Reply(ctx context.Context, content string) error { return f(ctx, content) }

// MessageHandler consumes inbound messages. Implementations must return
// promptly; long work belongs on another goroutine.
type MessageHandler interface {
	HandleAsync(ctx context.Context, msg InboundMessage, r Replier)
}

// Channel is a chat transport (Discord, Telegram, CLI).
type Channel interface {
	Name() string
	// Start connects and delivers messages to h until ctx is cancelled.
	// A connection failure is returned immediately.
	Start(ctx context.Context, h MessageHandler) error
}
