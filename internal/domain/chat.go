package domain

import (
	"slices"
	"time"
)

// Chat is a conversation between a user and a course assistant. Deleted
// chats are tombstoned, never removed.
type Chat struct {
	ID        string    `json:"_id"`
	User      string    `json:"user,omitempty"`
	Course    string    `json:"course"`
	Messages  []string  `json:"messages"`
	Title     string    `json:"title"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// EntityID returns the server id of the chat.
func (c Chat) EntityID() string { return c.ID }

// Clone returns a copy whose message list is independent of c.
func (c Chat) Clone() Chat {
	c.Messages = cloneIDs(c.Messages)
	return c
}

// HasTitle returns true if the server already generated a title.
func (c *Chat) HasTitle() bool {
	return c.Title != ""
}

// HasMessage returns true if messageID is part of the chat.
func (c *Chat) HasMessage(messageID string) bool {
	return slices.Contains(c.Messages, messageID)
}

// AppendMessage adds messageID at the end of the chat. A message already
// present is not appended twice.
func (c *Chat) AppendMessage(messageID string) bool {
	if c.HasMessage(messageID) {
		return false
	}
	c.Messages = append(c.Messages, messageID)
	return true
}
