//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/courseapi/courseapitest"
	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/session"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusConflict, "chat not found")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"chat not found"}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"consistency", &session.Failure{Kind: session.FailureConsistency}, http.StatusConflict},
		{"server", &session.Failure{Kind: session.FailureServer}, http.StatusBadGateway},
		{"transport", &session.Failure{Kind: session.FailureTransport}, http.StatusBadGateway},
		{"canceled", &session.Failure{Kind: session.FailureCanceled}, http.StatusServiceUnavailable},
		{"timed out", &session.Failure{Kind: session.FailureTimedOut}, http.StatusGatewayTimeout},
		{"training failed", &session.Failure{Kind: session.FailureTrainingFailed}, http.StatusBadGateway},
		{"stale", fmt.Errorf("fetch chat: %w", session.ErrStale), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

type fixture struct {
	srv    *courseapitest.Server
	sess   *session.Session
	h      *Handler
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := courseapitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(domain.User{ID: "u1", School: "s1", FirstName: "Ada", Type: domain.UserTypeProfessor, Chats: []string{}})
	srv.AddCourse(domain.Course{ID: "k1", Name: "Calculus", School: "s1", PromptTemplates: []string{"Explain limits"}})
	srv.AddChat(domain.Chat{ID: "c1", User: "u1", Course: "k1", Title: "Limits"})

	client, err := courseapi.New(srv.URL)
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)
	sess := session.New(client, session.Options{
		Logger: logger,
		Poller: training.Poller{Interval: time.Millisecond, MaxAttempts: 50},
	})

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(ctx, sess, logger)
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &fixture{srv: srv, sess: sess, h: h, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	u, ok := f.srv.User("u1")
	require.True(t, ok)
	w := f.do(t, http.MethodPost, "/api/session/signin", u)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) session.View {
	t.Helper()
	var v session.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestSignInAndView(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodGet, "/api/session/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	require.NotNil(t, v.User)
	assert.Equal(t, "u1", v.User.ID)
	assert.Equal(t, domain.PanelInfo, v.ActivePanel)
}

func TestSignInRequiresID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/session/signin", domain.User{FirstName: "Ada"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, f.sess.View().User)
}

func TestInvalidJSONBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPut, "/api/session/panel", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, w.Body.String())
}

func TestSetPanelValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/session/panel", map[string]string{"panel": "SETTINGS"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/session/panel", map[string]string{"panel": "SEARCH"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PanelSearch, decodeView(t, w).ActivePanel)
}

func TestRefreshAndSelectChat(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodPost, "/api/chats/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/chats/c1/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	require.NotNil(t, v.ActiveChat)
	assert.Equal(t, "c1", v.ActiveChat.ID)
	assert.True(t, v.ShouldFocusChatInput)
}

func TestSelectUnknownChatIsConflict(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodPost, "/api/chats/nope/select", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestServerErrorIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.srv.Fail(courseapitest.RouteFetchUserChats, http.StatusInternalServerError, "database down")

	w := f.do(t, http.MethodPost, "/api/chats/refresh", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"database down"}`, w.Body.String())
}

func TestCreateChatAndSendMessage(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/courses/refresh", nil).Code)

	w := f.do(t, http.MethodPost, "/api/chats", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "no course selected yet")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/courses/selected", map[string]string{"courseId": "k1"}).Code)
	w = f.do(t, http.MethodPost, "/api/chats", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/messages", map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/messages", map[string]string{"content": "What is a limit?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	v := f.sess.View()
	require.NotNil(t, v.ActiveChat)
	assert.Len(t, v.ActiveChat.Messages, 1)
}

func TestRefreshSchoolCourses(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodPost, "/api/courses/refresh?school=s1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.srv.CallCount(courseapitest.RouteSchoolCourses))
	assert.Contains(t, f.sess.View().Courses, "k1")
}

func TestTrainRunsInBackground(t *testing.T) {
	f := newFixture(t)
	f.srv.SetTrainingScript("k1", domain.TrainingPending, domain.TrainingComplete)
	f.signIn(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/courses/refresh", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/courses/selected", map[string]string{"courseId": "k1"}).Code)

	w := f.do(t, http.MethodPost, "/api/courses/train", map[string]string{"content": "Limits are..."})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		pr, ok := f.sess.TrainingProgress("k1")
		return ok && pr.State == training.StateComplete
	}, 2*time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/courses/train/k1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Limits are...", f.srv.TrainedContent("k1"))
}

func TestTrainWithoutSelectedCourse(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodPost, "/api/courses/train", map[string]string{"content": "x"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelUnknownTraining(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodDelete, "/api/courses/train/k1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/courses/train/k1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogoutClearsView(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodPost, "/api/session/logout", nil)

	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	assert.Nil(t, v.User)
	assert.Empty(t, v.Chats)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	w := f.do(t, http.MethodDelete, "/api/user/", nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	u, _ := f.srv.User("u1")
	assert.True(t, u.Deleted)
	assert.Nil(t, f.sess.View().User)
}
