// Package session keeps the client-side cache of CourseGPT entities
// consistent while server calls, local navigation and training jobs
// interleave.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

// API is the set of REST calls a session issues.
type API interface {
	FetchUserChats(ctx context.Context, userID string) ([]domain.Chat, error)
	CreateChatTitle(ctx context.Context, chatID string) (domain.Chat, error)
	CreateChat(ctx context.Context, userID, courseID string) (domain.Chat, error)
	FetchChat(ctx context.Context, chatID string) (domain.Chat, error)
	SoftDeleteChats(ctx context.Context, userID string, filter courseapi.ChatFilter) ([]domain.Chat, error)
	SoftDeleteChat(ctx context.Context, userID, chatID string) (domain.Chat, error)
	CreateMessage(ctx context.Context, chatID, content string) (domain.Message, error)
	CreateAssistantReply(ctx context.Context, chatID string) (domain.Message, error)
	FetchSchoolCourse(ctx context.Context, schoolID, courseID string) (domain.Course, error)
	FetchSchoolCourses(ctx context.Context, schoolID string) ([]domain.Course, error)
	FetchAllCourses(ctx context.Context) ([]domain.Course, error)
	UpdateUser(ctx context.Context, userID string, updates domain.UserUpdate) (domain.User, error)
	DeleteUser(ctx context.Context, userID string) (domain.User, error)
	training.API
}

var _ API = (*courseapi.Client)(nil)

// Options configures a Session.
type Options struct {
	Logger *slog.Logger
	// Poller holds the training poll interval and budget. OnProgress is
	// owned by the session and overwritten.
	Poller training.Poller
}

// Session is the single owner of the cached state. All methods are safe
// for concurrent use; every transition runs to completion under one lock
// and no network call is made while holding it.
type Session struct {
	api    API
	logger *slog.Logger
	poller training.Poller
	bus    *bus

	mu      sync.Mutex
	st      *state
	subs    map[int]chan struct{}
	nextSub int
	jobs    map[string]*job
}

// New returns a signed-out session that talks to api.
func New(api API, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := opts.Poller
	if p.Logger == nil {
		p.Logger = logger
	}
	return &Session{
		api:    api,
		logger: logger,
		poller: p,
		bus:    newBus(logger),
		st:     newState(),
		subs:   make(map[int]chan struct{}),
		jobs:   make(map[string]*job),
	}
}

// Rules lists the reconciliation rules run for kind, in order.
func (s *Session) Rules(kind EventKind) []RuleInfo {
	return s.bus.describe(kind)
}

// Subscribe returns a channel that receives a value after every state
// change. Notifications coalesce: a slow reader sees one pending signal,
// not one per change. Call the returned func to unsubscribe.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// changed bumps the version and wakes subscribers. Callers hold s.mu.
func (s *Session) changed() {
	s.st.version++
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// fail records err on d and returns its normalized form. Callers hold s.mu.
func (s *Session) fail(d Domain, op string, err error) *Failure {
	f := classify(op, err)
	s.st.status[d].err = f

	log := s.logger.With("domain", d, "op", op, "kind", f.Kind)
	switch f.Kind {
	case FailureConsistency:
		log.Error("session consistency failure", "error", f.Message)
	case FailureCanceled:
		log.Info("session call canceled")
	default:
		log.Warn("session call rejected", "error", f.Message, "status", f.Status)
	}
	return f
}

// local runs a transition that needs no network call. An error is
// recorded on d.
func (s *Session) local(d Domain, op string, fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.st); err != nil {
		f := s.fail(d, op, err)
		s.changed()
		return f
	}
	s.changed()
	return nil
}

// read runs fn under the lock without marking a change.
func (s *Session) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}
