package courseapi

import (
	"context"
	"net/http"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

type userEnvelope struct {
	User domain.User `json:"user"`
}

// UpdateUser applies updates to userID and returns the stored user.
func (c *Client) UpdateUser(ctx context.Context, userID string, updates domain.UserUpdate) (domain.User, error) {
	var env userEnvelope
	err := c.do(ctx, http.MethodPatch, path("users", userID), updates, &env)
	return env.User, err
}

// DeleteUser soft-deletes userID.
func (c *Client) DeleteUser(ctx context.Context, userID string) (domain.User, error) {
	deleted := true
	return c.UpdateUser(ctx, userID, domain.UserUpdate{Deleted: &deleted})
}
