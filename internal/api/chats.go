package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

type messageRequest struct {
	Content string `json:"content" validate:"required"`
}

// RefreshChats fetches the user's chats, backfilling missing titles.
func (h *Handler) RefreshChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.sess.FetchUserChats(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// CreateChat creates a chat under the selected course and activates it.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	c, err := h.sess.CreateChat(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"chat": c})
}

// SoftDeleteChats deletes the user's chats in the selected course, or all
// of them when no course is selected.
func (h *Handler) SoftDeleteChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.sess.SoftDeleteChats(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// FetchChat loads one chat into the store.
func (h *Handler) FetchChat(w http.ResponseWriter, r *http.Request) {
	c, err := h.sess.FetchChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"chat": c})
}

// SoftDeleteChat deletes one chat.
func (h *Handler) SoftDeleteChat(w http.ResponseWriter, r *http.Request) {
	c, err := h.sess.SoftDeleteChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"chat": c})
}

// SelectChat makes a stored chat active.
func (h *Handler) SelectChat(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.SelectChat(chi.URLParam(r, "chatID")); err != nil {
		Fail(w, err)
		return
	}
	h.view(w, http.StatusOK)
}

// FocusChat marks a chat as focused in the chat list.
func (h *Handler) FocusChat(w http.ResponseWriter, r *http.Request) {
	h.sess.SetFocusedChat(chi.URLParam(r, "chatID"))
	h.view(w, http.StatusOK)
}

// CreateChatTitle asks the server to title a chat.
func (h *Handler) CreateChatTitle(w http.ResponseWriter, r *http.Request) {
	c, err := h.sess.CreateChatTitle(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"chat": c})
}

// RequestReply asks the assistant to answer in a chat.
func (h *Handler) RequestReply(w http.ResponseWriter, r *http.Request) {
	m, err := h.sess.RequestAssistantReply(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"message": m})
}

// SendMessage posts a user message to the active chat.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, err := h.sess.SendMessage(r.Context(), req.Content)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"message": m})
}

// OpenSearchResult navigates to the chat holding a search hit.
func (h *Handler) OpenSearchResult(w http.ResponseWriter, r *http.Request) {
	var hit domain.HighlightMessage
	if !h.decode(w, r, &hit) {
		return
	}
	if err := h.validate.Var(hit.Chat, "required"); err != nil {
		Error(w, http.StatusBadRequest, "hit chat is required")
		return
	}
	if err := h.sess.OpenSearchResult(r.Context(), hit); err != nil {
		Fail(w, err)
		return
	}
	h.view(w, http.StatusOK)
}
