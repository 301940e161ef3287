package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"snotra/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen   = 4000
	telegramPollTimeout = 30
)

// telegramSender is the subset of *tgbotapi.BotAPI used to answer a message.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token  string
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, h domain.MessageHandler) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := telegramInbound(update)
			if !ok {
				if m := update.Message; m != nil && m.From != nil && m.From.UserName == "" {
					t.logger.Debug("telegram message without username ignored", "user_id", m.From.ID)
				}
				continue
			}
			t.logger.Debug("telegram message received",
				"author", msg.AuthorID,
				"chat_id", msg.ChatID,
				"content_len", len(msg.Body),
			)
			h.HandleAsync(ctx, msg, t.replier(bot, update.Message))
		}
	}
}

// telegramInbound maps an update onto the transport-neutral message.
// Updates without a text message are skipped, and so are authors without a
// username since the allow-list matches on usernames.
func telegramInbound(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" || m.From.UserName == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Channel:     "telegram",
		ChatID:      strconv.FormatInt(m.Chat.ID, 10),
		AuthorID:    m.From.UserName,
		AuthorIsBot: m.From.IsBot,
		FromGroup:   !m.Chat.IsPrivate(),
		Body:        m.Text,
	}, true
}

func (t *Telegram) replier(s telegramSender, m *tgbotapi.Message) domain.Replier {
	chatID := m.Chat.ID
	replyTo := m.MessageID
	return domain.ReplyFunc(func(ctx context.Context, content string) error {
		for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
			out := tgbotapi.NewMessage(chatID, chunk)
			out.ReplyToMessageID = replyTo
			if _, err := s.Send(out); err != nil {
				return fmt.Errorf("telegram send: %w", err)
			}
		}
		return nil
	})
}
