package courseapi

import (
	"context"
	"net/http"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

type messageEnvelope struct {
	Message domain.Message `json:"message"`
}

// CreateMessage posts a user-authored message to chatID.
func (c *Client) CreateMessage(ctx context.Context, chatID, content string) (domain.Message, error) {
	var env messageEnvelope
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPost, path("chats", chatID, "messages"), body, &env)
	return env.Message, err
}

// CreateAssistantReply asks the course assistant to answer the latest
// message of chatID and returns the stored reply.
func (c *Client) CreateAssistantReply(ctx context.Context, chatID string) (domain.Message, error) {
	var env messageEnvelope
	err := c.do(ctx, http.MethodPost, path("chats", chatID, "messages", "gpt-response"), nil, &env)
	return env.Message, err
}
