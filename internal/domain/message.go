package domain

// InboundMessage is one user-initiated message as delivered by a transport.
type InboundMessage struct {
	Channel     string // transport name: discord | telegram | cli
	ChatID      string // conversation the reply goes back to
	AuthorID    string
	AuthorIsBot bool
	FromGroup   bool // false for private one-to-one conversations
	Body        string
}

// ParsedPayload is the (phrase, gloss) pair extracted from a message body.
type ParsedPayload struct {
	Primary   string // source-language phrase
	Secondary string // target-language gloss
}
