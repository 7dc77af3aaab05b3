package models

import "time"

// Chat types as assigned by the upstream platform.
const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
)

// BotSenderID marks bot-authored messages; the upstream platform never
// assigns id 0 to a real user.
const BotSenderID int64 = 0

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
}

type Chat struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Type      string `json:"type"`
}

// Message mirrors the inbound wire shape and is persisted verbatim, one
// JSON document per message.
type Message struct {
	MessageID int    `json:"message_id"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

func (m *Message) IsFromBot() bool {
	return m.From.ID == BotSenderID
}

// SenderName is the display name used to prefix user turns: first name,
// falling back to username, falling back to "Unknown".
func (m *Message) SenderName() string {
	if m.From.FirstName != "" {
		return m.From.FirstName
	}
	if m.From.Username != "" {
		return m.From.Username
	}
	return "Unknown"
}

// LogKey selects the message-log directory: group chats share one log per
// chat, private chats are keyed by the sender.
func (m *Message) LogKey() int64 {
	if m.Chat.Type != ChatTypePrivate {
		return m.Chat.ID
	}
	return m.From.ID
}

// NewBotReply synthesizes the bot-authored record for a reply to inbound:
// next message id in the chat, sender id 0, current time.
func NewBotReply(inbound *Message, text string) *Message {
	return &Message{
		MessageID: inbound.MessageID + 1,
		From: User{
			ID:           BotSenderID,
			IsBot:        true,
			FirstName:    "assistant",
			Username:     "assistant",
			LanguageCode: "en",
		},
		Chat: Chat{
			ID:        inbound.Chat.ID,
			FirstName: inbound.SenderName(),
			Username:  inbound.From.Username,
			Type:      inbound.Chat.Type,
		},
		Date: time.Now().Unix(),
		Text: text,
	}
}
