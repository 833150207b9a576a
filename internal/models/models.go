package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is a user's presence state. Any status may transition to any other.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

type User struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
}

// Message is an immutable chat message. An empty Recipient means broadcast.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(content, sender, recipient string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Recipient: recipient,
		CreatedAt: time.Now().UTC(),
	}
}

// Broadcast reports whether the message is addressed to everyone.
func (m Message) Broadcast() bool {
	return m.Recipient == ""
}

// Conversation summarizes a private exchange with one counterpart.
type Conversation struct {
	Counterpart string    `json:"counterpart"`
	LastMessage time.Time `json:"last_message"`
}
