package session

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/courseapi/courseapitest"
	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// holdRoute blocks the first request to route until the returned release
// func is called. The returned channel closes once the request arrived.
func holdRoute(srv *courseapitest.Server, route string) (<-chan struct{}, func()) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv.SetHook(func(r string, _ *http.Request) {
		if r != route {
			return
		}
		held := false
		once.Do(func() {
			held = true
			close(arrived)
		})
		if held {
			<-release
		}
	})
	var releaseOnce sync.Once
	return arrived, func() { releaseOnce.Do(func() { close(release) }) }
}

func courseIDs(v View) []string {
	ids := make([]string, 0, len(v.Courses))
	for id := range v.Courses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func TestSchoolCoursesDoNotSupersedeFullCourseList(t *testing.T) {
	t.Parallel()
	s, srv := newTestSession(t)
	srv.AddCourse(domain.Course{ID: "k9", Name: "Art", School: "s2"})
	ctx := context.Background()

	arrived, release := holdRoute(srv, courseapitest.RouteAllCourses)
	defer release()
	done := make(chan error, 1)
	go func() {
		_, err := s.FetchAllCourses(ctx)
		done <- err
	}()
	<-arrived

	_, err := s.FetchSchoolCourses(ctx, "s1")
	require.NoError(t, err)
	release()

	require.NoError(t, <-done)
	v := s.View()
	assert.Equal(t, []string{"k1", "k2", "k9"}, courseIDs(v))
	assert.Nil(t, v.Status[DomainCourses].Error)
}

func TestBootstrapSurvivesConcurrentSchoolFetch(t *testing.T) {
	t.Parallel()
	s, srv := newTestSession(t)
	u, ok := srv.User("u1")
	require.True(t, ok)
	u.SelectedCourse = "k2"
	srv.AddUser(u)
	signIn(t, s, srv)
	ctx := context.Background()

	arrived, release := holdRoute(srv, courseapitest.RouteAllCourses)
	defer release()
	done := make(chan error, 1)
	go func() { done <- s.Bootstrap(ctx) }()
	<-arrived

	_, err := s.FetchSchoolCourses(ctx, "s1")
	require.NoError(t, err)
	release()

	require.NoError(t, <-done)
	v := s.View()
	assert.Equal(t, "k2", v.SelectedCourse)
	assert.True(t, v.WaitingFirstMessage)
}

func TestSoftDeleteDoesNotSupersedeChatList(t *testing.T) {
	t.Parallel()
	srv := courseapitest.NewServer()
	t.Cleanup(srv.Close)
	seed(srv)
	api := newHeldAPI(t, srv)
	s := New(api, Options{Logger: slog.New(slog.DiscardHandler)})
	signIn(t, s, srv)
	ctx := context.Background()
	_, err := s.FetchAllCourses(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SelectCourse("k1"))

	api.holdUserChats = true
	done := make(chan error, 1)
	go func() {
		_, err := s.FetchUserChats(ctx)
		done <- err
	}()
	<-api.read

	_, err = s.SoftDeleteChats(ctx)
	require.NoError(t, err)
	close(api.release)

	require.NoError(t, <-done)
	v := s.View()
	require.Contains(t, v.Chats, "c3")
	assert.False(t, v.Chats["c3"].Deleted)
	assert.True(t, v.Chats["c1"].Deleted)
	assert.True(t, v.Chats["c2"].Deleted)
	assert.Nil(t, v.Status[DomainChats].Error)
}

// heldAPI holds FetchChat or FetchUserChats responses, already read from
// the server, until the test releases them.
type heldAPI struct {
	API
	holdChat      bool
	holdUserChats bool
	read          chan struct{}
	release       chan struct{}
}

func newHeldAPI(t *testing.T, srv *courseapitest.Server) *heldAPI {
	t.Helper()
	client, err := courseapi.New(srv.URL)
	require.NoError(t, err)
	return &heldAPI{API: client, read: make(chan struct{}, 1), release: make(chan struct{})}
}

func (h *heldAPI) hold() {
	h.read <- struct{}{}
	<-h.release
}

func (h *heldAPI) FetchChat(ctx context.Context, chatID string) (domain.Chat, error) {
	c, err := h.API.FetchChat(ctx, chatID)
	if h.holdChat {
		h.hold()
	}
	return c, err
}

func (h *heldAPI) FetchUserChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	chats, err := h.API.FetchUserChats(ctx, userID)
	if h.holdUserChats {
		h.hold()
	}
	return chats, err
}

func TestChatFetchedBeforeAppendDoesNotDropMessage(t *testing.T) {
	t.Parallel()
	srv := courseapitest.NewServer()
	t.Cleanup(srv.Close)
	seed(srv)
	api := newHeldAPI(t, srv)
	s := New(api, Options{Logger: slog.New(slog.DiscardHandler)})
	signIn(t, s, srv)
	ctx := context.Background()

	_, err := s.FetchUserChats(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SelectChat("c2"))

	api.holdChat = true
	done := make(chan error, 1)
	go func() {
		_, err := s.FetchChat(ctx, "c2")
		done <- err
	}()
	<-api.read

	m, err := s.SendMessage(ctx, "hello")
	require.NoError(t, err)
	close(api.release)

	require.ErrorIs(t, <-done, ErrStale)
	v := s.View()
	assert.Equal(t, []string{m.ID}, v.Chats["c2"].Messages)
	require.NotNil(t, v.ActiveChat)
	assert.Equal(t, []string{m.ID}, v.ActiveChat.Messages)
	assert.Nil(t, v.Status[DomainChats].Error)
}

func TestOlderChatListDoesNotOverwriteNewerChat(t *testing.T) {
	t.Parallel()
	srv := courseapitest.NewServer()
	t.Cleanup(srv.Close)
	seed(srv)
	api := newHeldAPI(t, srv)
	api.holdUserChats = true
	s := New(api, Options{Logger: slog.New(slog.DiscardHandler)})
	signIn(t, s, srv)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.FetchUserChats(ctx)
		done <- err
	}()
	<-api.read

	srv.AddChat(domain.Chat{ID: "c3", User: "u1", Course: "k2", Title: "Forces and motion"})
	_, err := s.FetchChat(ctx, "c3")
	require.NoError(t, err)
	close(api.release)

	require.NoError(t, <-done)
	v := s.View()
	assert.Equal(t, "Forces and motion", v.Chats["c3"].Title)
	assert.Equal(t, "Derivatives", v.Chats["c2"].Title)
	assert.Contains(t, v.Chats, "c1")
}
