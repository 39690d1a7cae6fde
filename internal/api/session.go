package api

import (
	"net/http"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

type panelRequest struct {
	Panel domain.Panel `json:"panel" validate:"required,oneof=INFO CHAT SEARCH"`
}

// GetView returns the current session view.
func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	h.view(w, http.StatusOK)
}

// SignIn applies an authenticated user payload, as returned by the
// server's login, register or fetch-user calls.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var u domain.User
	if !h.decode(w, r, &u) {
		return
	}
	if err := h.validate.Var(u.ID, "required"); err != nil {
		Error(w, http.StatusBadRequest, "user _id is required")
		return
	}
	if err := h.sess.SignIn(u); err != nil {
		Fail(w, err)
		return
	}
	h.logger.Info("User signed in", "user_id", u.ID)
	h.view(w, http.StatusOK)
}

// Logout ends the session.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.sess.Logout()
	h.view(w, http.StatusOK)
}

// Bootstrap loads courses and chats for the signed-in user.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Bootstrap(r.Context()); err != nil {
		Fail(w, err)
		return
	}
	h.view(w, http.StatusOK)
}

// SetPanel switches the side panel.
func (h *Handler) SetPanel(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.sess.SetActivePanel(req.Panel); err != nil {
		Fail(w, err)
		return
	}
	h.view(w, http.StatusOK)
}

// UpdateUser patches the current user.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserUpdate
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.sess.UpdateUser(r.Context(), req)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"user": u})
}

// DeleteUser soft-deletes the current user and ends the session.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.DeleteUser(r.Context()); err != nil {
		Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
