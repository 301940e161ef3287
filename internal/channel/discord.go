package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"snotra/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000
)

// discordReplier is the subset of *discordgo.Session used to answer a message.
type discordReplier interface {
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord implements domain.Channel for Discord.
type Discord struct {
	token  string
	logger *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token  string
	Logger *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:  cfg.Token,
		logger: cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to the Discord gateway and hands every created message to h.
func (d *Discord) Start(ctx context.Context, h domain.MessageHandler) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		// Ignore the bot's own messages.
		if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}

		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"guild_id", m.GuildID,
			"content_len", len(m.Content),
		)

		h.HandleAsync(ctx, discordInbound(m), d.replier(s, m))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	if session.State != nil && session.State.User != nil {
		d.logger.Info("discord bot connected", "user", session.State.User.Username)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// discordInbound maps a gateway event onto the transport-neutral message.
// Authors are identified by username.
func discordInbound(m *discordgo.MessageCreate) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:     "discord",
		ChatID:      m.ChannelID,
		AuthorID:    m.Author.Username,
		AuthorIsBot: m.Author.Bot,
		FromGroup:   m.GuildID != "",
		Body:        m.Content,
	}
}

func (d *Discord) replier(s discordReplier, m *discordgo.MessageCreate) domain.Replier {
	ref := m.Reference()
	return domain.ReplyFunc(func(ctx context.Context, content string) error {
		for _, chunk := range splitMessage(content, discordMaxMsgLen) {
			if _, err := s.ChannelMessageSendReply(m.ChannelID, chunk, ref, discordgo.WithContext(ctx)); err != nil {
				return fmt.Errorf("discord send: %w", err)
			}
		}
		return nil
	})
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		// Try to split on a newline.
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		// Never cut inside a multi-byte rune.
		for cut > 1 && !utf8.RuneStart(msg[cut]) {
			cut--
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
