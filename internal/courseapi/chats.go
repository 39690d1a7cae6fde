package courseapi

import (
	"context"
	"net/http"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

type chatEnvelope struct {
	Chat domain.Chat `json:"chat"`
}

type chatsEnvelope struct {
	Chats []domain.Chat `json:"chats"`
}

// ChatFilter selects the chats a bulk update applies to. An empty Course
// matches every chat of the user.
type ChatFilter struct {
	Course string `json:"course,omitempty"`
}

type softDeleteRequest struct {
	Filter  ChatFilter     `json:"filter"`
	Updates map[string]any `json:"updates"`
}

// FetchUserChats returns every chat of userID.
func (c *Client) FetchUserChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	var env chatsEnvelope
	if err := c.do(ctx, http.MethodGet, path(userID, "chats"), nil, &env); err != nil {
		return nil, err
	}
	return env.Chats, nil
}

// CreateChatTitle asks the server to generate a title for chatID and returns
// the updated chat.
func (c *Client) CreateChatTitle(ctx context.Context, chatID string) (domain.Chat, error) {
	var env chatEnvelope
	err := c.do(ctx, http.MethodPost, path("chats", chatID, "chat-title"), nil, &env)
	return env.Chat, err
}

// CreateChat creates an empty chat for userID under courseID.
func (c *Client) CreateChat(ctx context.Context, userID, courseID string) (domain.Chat, error) {
	var env chatEnvelope
	body := map[string]string{"course": courseID}
	err := c.do(ctx, http.MethodPost, path(userID, "chats"), body, &env)
	return env.Chat, err
}

// FetchChat returns a single chat.
func (c *Client) FetchChat(ctx context.Context, chatID string) (domain.Chat, error) {
	var env chatEnvelope
	err := c.do(ctx, http.MethodGet, path("chats", chatID), nil, &env)
	return env.Chat, err
}

// SoftDeleteChats tombstones the chats of userID matched by filter and
// returns only the affected chats.
func (c *Client) SoftDeleteChats(ctx context.Context, userID string, filter ChatFilter) ([]domain.Chat, error) {
	body := softDeleteRequest{
		Filter:  filter,
		Updates: map[string]any{"$set": map[string]bool{"deleted": true}},
	}
	var env chatsEnvelope
	if err := c.do(ctx, http.MethodPatch, path(userID, "chats"), body, &env); err != nil {
		return nil, err
	}
	return env.Chats, nil
}

// SoftDeleteChat tombstones a single chat.
func (c *Client) SoftDeleteChat(ctx context.Context, userID, chatID string) (domain.Chat, error) {
	var env chatEnvelope
	body := map[string]bool{"deleted": true}
	err := c.do(ctx, http.MethodPatch, path(userID, "chats", chatID), body, &env)
	return env.Chat, err
}
