package domain

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of a chat. Only its id is cached on the chat.
type Message struct {
	ID        string    `json:"_id"`
	Chat      string    `json:"chat"`
	User      string    `json:"user,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// HighlightText is one fragment of a search highlight.
type HighlightText struct {
	Value string `json:"value"`
	Type  string `json:"type"` // "hit" or "text"
}

// Highlight describes where a search query matched a message.
type Highlight struct {
	Path  string          `json:"path"`
	Score float64         `json:"score"`
	Texts []HighlightText `json:"texts"`
}

// HighlightMessage is a message returned by search together with its
// highlight information.
type HighlightMessage struct {
	ID         string      `json:"_id"`
	Chat       string      `json:"chat"`
	User       string      `json:"user,omitempty"`
	Content    string      `json:"content"`
	Highlights []Highlight `json:"highlights"`
	UpdatedAt  time.Time   `json:"updatedAt,omitzero"`
}

// HitTerms returns the distinct matched fragments, in order of appearance.
func (h *HighlightMessage) HitTerms() []string {
	if h == nil {
		return nil
	}
	seen := make(map[string]bool)
	var terms []string
	for _, hl := range h.Highlights {
		for _, t := range hl.Texts {
			v := strings.TrimSpace(t.Value)
			if t.Type != "hit" || v == "" || seen[v] {
				continue
			}
			seen[v] = true
			terms = append(terms, v)
		}
	}
	return terms
}

// Clone returns a deep copy of the hit.
func (h HighlightMessage) Clone() HighlightMessage {
	hls := make([]Highlight, len(h.Highlights))
	for i, hl := range h.Highlights {
		hl.Texts = append([]HighlightText(nil), hl.Texts...)
		hls[i] = hl
	}
	h.Highlights = hls
	return h
}
