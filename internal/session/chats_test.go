package session

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/courseapi/courseapitest"
	"github.com/ashureev/coursegpt-sync/internal/domain"
)

func TestFetchUserChatsBackfillsTitles(t *testing.T) {
	t.Parallel()
	s, srv := newTestSession(t)
	srv.TitleFor = func(c domain.Chat) string { return "Generated " + c.ID }
	srv.AddChat(domain.Chat{ID: "c4", User: "u1", Course: "k2"})
	signIn(t, s, srv)

	var inFlight, maxInFlight atomic.Int32
	srv.SetHook(func(route string, _ *http.Request) {
		if route != courseapitest.RouteCreateChatTitle {
			return
		}
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
	})

	chats, err := s.FetchUserChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 4)

	v := s.View()
	assert.Equal(t, "Generated c1", v.Chats["c1"].Title)
	assert.Equal(t, "Derivatives", v.Chats["c2"].Title)
	assert.Equal(t, "Generated c4", v.Chats["c4"].Title)
	assert.Equal(t, 2, srv.CallCount(courseapitest.RouteCreateChatTitle))
	assert.LessOrEqual(t, maxInFlight.Load(), int32(1))
}

func TestFetchUserChatsSingleUntitledScenario(t *testing.T) {
	t.Parallel()

	srv := courseapitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(domain.User{ID: "u1"})
	srv.AddChat(domain.Chat{ID: "c1", User: "u1", Title: ""})
	srv.TitleFor = func(domain.Chat) string { return "Limits and continuity" }

	s := newClientSession(t, srv)
	require.NoError(t, s.SignIn(domain.User{ID: "u1"}))

	_, err := s.FetchUserChats(context.Background())
	require.NoError(t, err)
	v := s.View()
	require.Len(t, v.Chats, 1)
	assert.Equal(t, "Limits and continuity", v.Chats["c1"].Title)
}

func TestFetchUserChatsMergesWithoutDropping(t *testing.T) {
	t.Parallel()
	s, _ := loaded(t)
	require.NoError(t, s.SelectChatEntity(domain.Chat{ID: "local", Course: "k1", Title: "Pushed"}))

	_, err := s.FetchUserChats(context.Background())
	require.NoError(t, err)
	assert.Contains(t, s.View().Chats, "local")
}

func TestBackfillFailureRejectsWholeFetch(t *testing.T) {
	t.Parallel()
	s, srv := newTestSession(t)
	signIn(t, s, srv)
	srv.FailNext(courseapitest.RouteCreateChatTitle, http.StatusTooManyRequests, "Slow down")

	_, err := s.FetchUserChats(context.Background())
	f := failureOf(t, err)
	assert.Equal(t, FailureServer, f.Kind)
	assert.Equal(t, http.StatusTooManyRequests, f.Status)
	assert.Equal(t, "Slow down", f.Message)
	assert.Empty(t, s.View().Chats)
}

func TestSoftDeleteChatsWithCourseFilter(t *testing.T) {
	t.Parallel()
	s, srv := loaded(t)
	require.NoError(t, s.SelectCourse("k1"))

	affected, err := s.SoftDeleteChats(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(affected))
	for _, c := range affected {
		ids = append(ids, c.ID)
		assert.True(t, c.Deleted)
		assert.Equal(t, "k1", c.Course)
	}
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	v := s.View()
	assert.True(t, v.Chats["c1"].Deleted)
	assert.True(t, v.Chats["c2"].Deleted)
	assert.False(t, v.Chats["c3"].Deleted)
	require.Len(t, v.Chats, 3)

	c3, _ := srv.Chat("c3")
	assert.False(t, c3.Deleted)
}

func TestSoftDeleteChatsWithoutFilterTombstonesAll(t *testing.T) {
	t.Parallel()
	s, _ := loaded(t)
	require.NoError(t, s.SelectChat("c3"))

	affected, err := s.SoftDeleteChats(context.Background())
	require.NoError(t, err)
	assert.Len(t, affected, 3)

	v := s.View()
	for id, c := range v.Chats {
		assert.Truef(t, c.Deleted, "chat %s not tombstoned", id)
	}
	assert.True(t, v.ActiveChat.Deleted)
	assertMirror(t, v)
}

func TestSoftDeleteSingleChatRefreshesMirror(t *testing.T) {
	t.Parallel()
	s, _ := loaded(t)
	require.NoError(t, s.SelectChat("c2"))

	_, err := s.SoftDeleteChat(context.Background(), "c2")
	require.NoError(t, err)

	v := s.View()
	assert.True(t, v.Chats["c2"].Deleted)
	assert.False(t, v.Chats["c1"].Deleted)
	assertMirror(t, v)
}

func TestCreateChatTitleRefreshesMirror(t *testing.T) {
	t.Parallel()
	s, srv := loaded(t)
	srv.TitleFor = func(domain.Chat) string { return "Renamed" }
	require.NoError(t, s.SelectChat("c2"))

	c, err := s.CreateChatTitle(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.Title)
	assert.Equal(t, "Renamed", s.View().ActiveChat.Title)
}

func TestLoadingAndErrorLifecycle(t *testing.T) {
	t.Parallel()
	s, srv := newTestSession(t)
	signIn(t, s, srv)

	var sawLoading atomic.Bool
	srv.SetHook(func(route string, _ *http.Request) {
		if route == courseapitest.RouteFetchUserChats && s.Status(DomainChats).Loading {
			sawLoading.Store(true)
		}
	})
	srv.FailNext(courseapitest.RouteFetchUserChats, http.StatusInternalServerError, "Database unavailable")

	_, err := s.FetchUserChats(context.Background())
	require.Error(t, err)
	assert.True(t, sawLoading.Load())

	st := s.Status(DomainChats)
	assert.False(t, st.Loading)
	require.NotNil(t, st.Error)
	assert.Equal(t, "Database unavailable", st.Error.Message)
	assert.Equal(t, FailureServer, st.Error.Kind)
	assert.False(t, s.View().Fatal)

	_, err = s.FetchUserChats(context.Background())
	require.NoError(t, err)
	st = s.Status(DomainChats)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Error)
}

func TestUserErrorIsFatal(t *testing.T) {
	t.Parallel()
	s, srv := newTestSession(t)
	signIn(t, s, srv)
	srv.FailNext(courseapitest.RouteUpdateUser, http.StatusUnauthorized, "Session expired")

	name := "Grace"
	_, err := s.UpdateUser(context.Background(), domain.UserUpdate{FirstName: &name})
	require.Error(t, err)
	v := s.View()
	assert.True(t, v.Fatal)
	assert.Equal(t, "Session expired", v.Status[DomainUser].Error.Message)

	u, err := s.UpdateUser(context.Background(), domain.UserUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Grace", u.FirstName)
	v = s.View()
	assert.False(t, v.Fatal)
	assert.Equal(t, "Grace", v.User.FirstName)
}

func TestDeleteUserEndsSession(t *testing.T) {
	t.Parallel()
	s, srv := loaded(t)

	require.NoError(t, s.DeleteUser(context.Background()))
	v := s.View()
	assert.Nil(t, v.User)
	assert.Empty(t, v.Chats)

	u, _ := srv.User("u1")
	assert.True(t, u.Deleted)
}

func TestCreateChatForMissingUserIsConsistencyFailure(t *testing.T) {
	t.Parallel()
	srv := courseapitest.NewServer()
	t.Cleanup(srv.Close)
	seed(srv)
	client, err := courseapi.New(srv.URL)
	require.NoError(t, err)
	var logs bytes.Buffer
	s := New(client, Options{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})
	signIn(t, s, srv)
	ctx := context.Background()
	_, err = s.FetchAllCourses(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SelectCourse("k1"))

	s.mu.Lock()
	s.st.store.Users.Reset()
	s.mu.Unlock()

	c, err := s.CreateChat(ctx)
	require.NoError(t, err)

	v := s.View()
	assert.Contains(t, v.Chats, c.ID)
	assert.True(t, v.Fatal)
	require.NotNil(t, v.Status[DomainUser].Error)
	assert.Equal(t, FailureConsistency, v.Status[DomainUser].Error.Kind)
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
	assert.Contains(t, logs.String(), `"rule":"link-chat-to-user"`)
}

// gatedAPI hands each FetchChat call a channel the test answers.
type gatedAPI struct {
	API
	mu      sync.Mutex
	pending []chan domain.Chat
	arrived chan struct{}
}

func (g *gatedAPI) FetchChat(ctx context.Context, _ string) (domain.Chat, error) {
	ch := make(chan domain.Chat, 1)
	g.mu.Lock()
	g.pending = append(g.pending, ch)
	g.mu.Unlock()
	g.arrived <- struct{}{}
	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		return domain.Chat{}, ctx.Err()
	}
}

func (g *gatedAPI) answer(i int, c domain.Chat) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[i] <- c
}

func TestStaleResultIsDiscarded(t *testing.T) {
	t.Parallel()
	api := &gatedAPI{arrived: make(chan struct{}, 2)}
	s := New(api, Options{Logger: slog.New(slog.DiscardHandler)})
	ctx := context.Background()

	type result struct {
		chat domain.Chat
		err  error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		c, err := s.FetchChat(ctx, "c1")
		first <- result{c, err}
	}()
	<-api.arrived
	go func() {
		c, err := s.FetchChat(ctx, "c1")
		second <- result{c, err}
	}()
	<-api.arrived

	api.answer(1, domain.Chat{ID: "c1", Title: "newer", Messages: []string{"m1", "m2"}})
	r2 := <-second
	require.NoError(t, r2.err)

	api.answer(0, domain.Chat{ID: "c1", Title: "older", Messages: []string{"m1"}})
	r1 := <-first
	require.ErrorIs(t, r1.err, ErrStale)

	v := s.View()
	assert.Equal(t, "newer", v.Chats["c1"].Title)
	assert.Equal(t, []string{"m1", "m2"}, v.Chats["c1"].Messages)
	assert.False(t, v.Status[DomainChats].Loading)
	assert.Nil(t, v.Status[DomainChats].Error)
}

func TestResultsAfterLogoutAreDiscarded(t *testing.T) {
	t.Parallel()
	api := &gatedAPI{arrived: make(chan struct{}, 1)}
	s := New(api, Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, s.SignIn(domain.User{ID: "u1"}))

	done := make(chan error, 1)
	go func() {
		_, err := s.FetchChat(context.Background(), "c1")
		done <- err
	}()
	<-api.arrived
	assert.True(t, s.Status(DomainChats).Loading)

	s.Logout()
	assert.False(t, s.Status(DomainChats).Loading)

	api.answer(0, domain.Chat{ID: "c1"})
	require.ErrorIs(t, <-done, ErrStale)
	v := s.View()
	assert.Empty(t, v.Chats)
	assert.False(t, v.Status[DomainChats].Loading)
}
