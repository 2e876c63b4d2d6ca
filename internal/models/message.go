package models

import (
	"strings"
	"time"
)

// MessageType discriminates the payload of a message.
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// Payload is the user-supplied body of a message.
type Payload struct {
	Type    MessageType `json:"message_type"`
	Content string      `json:"content,omitempty"`
	FileURL string      `json:"file_url,omitempty"`
}

// Normalize infers a missing type from the populated field and reports
// whether the payload is usable. A text payload needs content, a file
// payload needs a file URL.
func (p Payload) Normalize() (Payload, bool) {
	if p.Type == "" {
		switch {
		case p.FileURL != "":
			p.Type = MessageTypeFile
		case strings.TrimSpace(p.Content) != "":
			p.Type = MessageTypeText
		}
	}
	switch p.Type {
	case MessageTypeText:
		return p, strings.TrimSpace(p.Content) != ""
	case MessageTypeFile:
		return p, p.FileURL != ""
	default:
		return p, false
	}
}

// Message is a persisted direct or channel message. Exactly one of
// RecipientID and ChannelID is set.
type Message struct {
	ID          string      `db:"id" json:"id"`
	Seq         int64       `db:"seq" json:"-"`
	SenderID    string      `db:"sender_id" json:"sender_id"`
	RecipientID *string     `db:"recipient_id" json:"recipient_id,omitempty"`
	ChannelID   *string     `db:"channel_id" json:"channel_id,omitempty"`
	Type        MessageType `db:"message_type" json:"message_type"`
	Content     string      `db:"content" json:"content,omitempty"`
	FileURL     string      `db:"file_url" json:"file_url,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// IsChannel reports whether the message belongs to a channel.
func (m Message) IsChannel() bool {
	return m.ChannelID != nil
}

// Recipient returns the direct recipient or "".
func (m Message) Recipient() string {
	if m.RecipientID == nil {
		return ""
	}
	return *m.RecipientID
}

// Channel returns the owning channel or "".
func (m Message) Channel() string {
	if m.ChannelID == nil {
		return ""
	}
	return *m.ChannelID
}

// DirectContact summarises a direct conversation partner.
type DirectContact struct {
	User
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}
