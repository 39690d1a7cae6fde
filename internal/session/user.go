package session

import (
	"context"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

const targetUser = "user"

// SignIn applies an authenticated user payload. Signing in as a different
// user first ends the current session.
func (s *Session) SignIn(u domain.User) error {
	return s.local(DomainUser, "sign in", func(st *state) error {
		if u.ID == "" {
			return inconsistent("signed-in user has no id")
		}
		if st.userID != "" && st.userID != u.ID {
			s.endSession(st)
		}
		if err := st.store.Users.UpsertOne(u); err != nil {
			return err
		}
		st.status[DomainUser].err = nil
		s.bus.publish(st, event{kind: EventUserUpdated, user: &u})
		return nil
	})
}

// UpdateUser patches the current user on the server.
func (s *Session) UpdateUser(ctx context.Context, updates domain.UserUpdate) (domain.User, error) {
	var userID string
	return run(ctx, s, call[domain.User]{
		domain:  DomainUser,
		op:      "update user",
		target:  targetUser,
		prepare: s.requireUser(&userID),
		fetch: func(ctx context.Context) (domain.User, error) {
			return s.api.UpdateUser(ctx, userID, updates)
		},
		apply: func(st *state, _ uint64, u domain.User) error {
			if err := st.store.Users.UpsertOne(u); err != nil {
				return err
			}
			s.bus.publish(st, event{kind: EventUserUpdated, user: &u})
			return nil
		},
	})
}

// DeleteUser soft-deletes the current user. The session ends once the
// server confirms.
func (s *Session) DeleteUser(ctx context.Context) error {
	var userID string
	_, err := run(ctx, s, call[domain.User]{
		domain:  DomainUser,
		op:      "delete user",
		target:  targetUser,
		prepare: s.requireUser(&userID),
		fetch: func(ctx context.Context) (domain.User, error) {
			return s.api.DeleteUser(ctx, userID)
		},
		apply: func(st *state, _ uint64, _ domain.User) error {
			s.endSession(st)
			return nil
		},
	})
	return err
}

// Logout drops every entity and all derived state in one transition and
// cancels running training jobs.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSession(s.st)
	s.changed()
	s.logger.Info("session ended")
}

// endSession is the single teardown point. Callers hold s.mu.
func (s *Session) endSession(st *state) {
	for id, j := range s.jobs {
		j.cancel()
		delete(s.jobs, id)
	}
	s.bus.publish(st, event{kind: EventSessionEnded})
}

// SetActivePanel switches the side panel.
func (s *Session) SetActivePanel(p domain.Panel) error {
	return s.local(DomainUser, "set active panel", func(st *state) error {
		if !p.Valid() {
			return inconsistent("unknown panel %q", p)
		}
		st.activePanel = p
		return nil
	})
}

// SetShouldFocusChatInput sets the chat input focus request flag.
func (s *Session) SetShouldFocusChatInput(focus bool) {
	_ = s.local(DomainUser, "set focus chat input", func(st *state) error {
		st.shouldFocusChatInput = focus
		return nil
	})
}

func (s *Session) requireUser(userID *string) func(st *state) error {
	return func(st *state) error {
		if st.userID == "" {
			return ErrNotSignedIn
		}
		*userID = st.userID
		return nil
	}
}
