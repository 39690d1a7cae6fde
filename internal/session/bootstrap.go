package session

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

// Bootstrap runs the initial load for a signed-in user. Courses and chats
// are fetched concurrently; once courses are in, the user's saved course
// is selected and, if set, a new chat is prepared for it. Either fetch
// failing does not stop the other.
func (s *Session) Bootstrap(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		if _, err := s.FetchAllCourses(ctx); err != nil {
			return err
		}
		return s.restoreCourseSelection()
	})
	g.Go(func() error {
		_, err := s.FetchUserChats(ctx)
		return err
	})
	return g.Wait()
}

func (s *Session) restoreCourseSelection() error {
	return s.local(DomainCourses, "restore course selection", func(st *state) error {
		u, err := st.currentUser()
		if err != nil {
			return err
		}
		if u.SelectedCourse == "" {
			return nil
		}
		if !st.store.Courses.Has(u.SelectedCourse) {
			s.logger.Warn("saved course no longer exists", "course_id", u.SelectedCourse)
			return nil
		}
		if err := st.selectCourse(u.SelectedCourse); err != nil {
			return err
		}
		st.activePanel = domain.PanelInfo
		st.setActiveChat(nil)
		st.tracker.waitingFirstMessage = true
		return nil
	})
}
