// Package api exposes the session over a local HTTP API: intents in,
// views out.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/session"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the session's operations.
type Handler struct {
	sess     *session.Session
	validate *validator.Validate
	logger   *slog.Logger

	// base outlives single requests; training jobs run under it.
	base context.Context
	jobs sync.WaitGroup
}

// NewHandler creates a Handler. Background work started by a request runs
// under base and stops when base is canceled.
func NewHandler(base context.Context, sess *session.Session, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sess:     sess,
		validate: validator.New(),
		logger:   logger,
		base:     base,
	}
}

// RegisterRoutes registers all session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetView)
			r.Post("/signin", h.SignIn)
			r.Post("/logout", h.Logout)
			r.Post("/bootstrap", h.Bootstrap)
			r.Put("/panel", h.SetPanel)
		})
		r.Route("/user", func(r chi.Router) {
			r.Patch("/", h.UpdateUser)
			r.Delete("/", h.DeleteUser)
		})
		r.Route("/chats", func(r chi.Router) {
			r.Post("/", h.CreateChat)
			r.Delete("/", h.SoftDeleteChats)
			r.Post("/refresh", h.RefreshChats)
			r.Route("/{chatID}", func(r chi.Router) {
				r.Get("/", h.FetchChat)
				r.Delete("/", h.SoftDeleteChat)
				r.Post("/select", h.SelectChat)
				r.Post("/focus", h.FocusChat)
				r.Post("/title", h.CreateChatTitle)
				r.Post("/reply", h.RequestReply)
			})
		})
		r.Post("/messages", h.SendMessage)
		r.Post("/search/open", h.OpenSearchResult)
		r.Route("/courses", func(r chi.Router) {
			r.Post("/refresh", h.RefreshCourses)
			r.Put("/selected", h.SelectCourse)
			r.Post("/new-chat", h.NewChat)
			r.Post("/train", h.Train)
			r.Get("/train/{courseID}", h.TrainingProgress)
			r.Delete("/train/{courseID}", h.CancelTraining)
		})
	})
}

// Wait blocks until background jobs started by requests have returned.
func (h *Handler) Wait() {
	h.jobs.Wait()
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Fail writes err with the status its failure kind maps to.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err.Error())
}

// StatusFor maps an operation error to an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, session.ErrStale) {
		return http.StatusConflict
	}
	var f *session.Failure
	if !errors.As(err, &f) {
		return http.StatusInternalServerError
	}
	switch f.Kind {
	case session.FailureConsistency:
		return http.StatusConflict
	case session.FailureServer, session.FailureTrainingFailed:
		return http.StatusBadGateway
	case session.FailureTransport:
		if courseapi.IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case session.FailureTimedOut:
		return http.StatusGatewayTimeout
	case session.FailureCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("invalid field %s: failed %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func (h *Handler) view(w http.ResponseWriter, status int) {
	JSON(w, status, h.sess.View())
}
