package session

import (
	"context"
	"time"

	"github.com/ashureev/coursegpt-sync/internal/store"
)

// Export returns a snapshot of the cached entities.
func (s *Session) Export() *store.Snapshot {
	var snap *store.Snapshot
	s.read(func(st *state) {
		snap = &store.Snapshot{
			UserID:         st.userID,
			SelectedCourse: st.selectedCourse,
			Users:          st.store.Users.All(),
			Chats:          st.store.Chats.All(),
			Courses:        st.store.Courses.All(),
			SavedAt:        time.Now().UTC(),
		}
	})
	return snap
}

// Restore loads a snapshot into a signed-out session, or into the session
// of the same user.
func (s *Session) Restore(snap *store.Snapshot) error {
	if snap.IsEmpty() {
		return nil
	}
	return s.local(DomainUser, "restore snapshot", func(st *state) error {
		if st.userID != "" && st.userID != snap.UserID {
			return inconsistent("snapshot belongs to %q, not the signed-in user", snap.UserID)
		}
		next := store.New()
		if err := next.Users.ReplaceAll(snap.Users); err != nil {
			return err
		}
		if err := next.Chats.ReplaceAll(snap.Chats); err != nil {
			return err
		}
		if err := next.Courses.ReplaceAll(snap.Courses); err != nil {
			return err
		}
		if snap.UserID != "" && !next.Users.Has(snap.UserID) {
			return inconsistent("snapshot user %q has no user record", snap.UserID)
		}

		st.store = next
		st.userID = snap.UserID
		st.selectedCourse = ""
		if next.Courses.Has(snap.SelectedCourse) {
			st.selectedCourse = snap.SelectedCourse
		}
		if st.tracker.activeChat != nil {
			st.refreshMirror(st.tracker.activeChat.ID)
		}
		return nil
	})
}

// RunPersister saves a snapshot to repo once changes have been quiet for
// debounce, until ctx is canceled. The current state is saved once on
// start. An empty session clears the repository, so nothing survives a
// logout. Pending changes are flushed on exit.
func (s *Session) RunPersister(ctx context.Context, repo store.Repository, debounce time.Duration) error {
	changes, unsubscribe := s.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(debounce)
	defer timer.Stop()
	dirty := true

	for {
		select {
		case <-ctx.Done():
			if dirty {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				s.persist(flushCtx, repo)
				cancel()
			}
			return nil
		case <-changes:
			dirty = true
			timer.Reset(debounce)
		case <-timer.C:
			s.persist(ctx, repo)
			dirty = false
		}
	}
}

func (s *Session) persist(ctx context.Context, repo store.Repository) {
	snap := s.Export()
	var err error
	if snap.IsEmpty() {
		err = repo.Clear(ctx)
	} else {
		err = repo.Save(ctx, snap)
	}
	if err != nil {
		s.logger.Warn("persist session snapshot failed", "error", err)
		return
	}
	s.logger.Debug("session snapshot saved", "chats", len(snap.Chats), "courses", len(snap.Courses))
}
