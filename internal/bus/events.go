// Package bus carries messages between the transport and the agent core.
package bus

import "time"

// InboundMessage is one message delivered by a chat transport.
type InboundMessage struct {
	Channel   string    `json:"channel"`
	ID        string    `json:"id"` // transport sequence id
	SenderID  string    `json:"sender_id"`
	ChatID    string    `json:"chat_id"`
	FromSelf  bool      `json:"from_self,omitempty"`
	IsGroup   bool      `json:"is_group,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DedupKey identifies a delivery for duplicate suppression. Messages without
// an id have no key and are never treated as duplicates.
func (m *InboundMessage) DedupKey() string {
	if m.ID == "" {
		return ""
	}
	return m.ChatID + "/" + m.ID
}

// OutboundMessage is text to send to a chat.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"` // reply, correction, command
}

// Group is a conversation the transport can bind to.
type Group struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}
