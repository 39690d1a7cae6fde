package session

import (
	"context"

	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

// targetAllCourses orders full course list replaces against each other.
const targetAllCourses = "courses:all"

// FetchSchoolCourse reloads one course of a school.
func (s *Session) FetchSchoolCourse(ctx context.Context, schoolID, courseID string) (domain.Course, error) {
	return run(ctx, s, call[domain.Course]{
		domain: DomainCourses,
		op:     "fetch school course",
		fetch: func(ctx context.Context) (domain.Course, error) {
			return s.api.FetchSchoolCourse(ctx, schoolID, courseID)
		},
		apply: func(st *state, seq uint64, c domain.Course) error {
			if !st.fresh(courseKey(c.ID), seq) {
				return ErrStale
			}
			return s.mergeCourses(st, seq, []domain.Course{c})
		},
	})
}

// FetchSchoolCourses merges the courses of a school into the store.
func (s *Session) FetchSchoolCourses(ctx context.Context, schoolID string) ([]domain.Course, error) {
	return run(ctx, s, call[[]domain.Course]{
		domain: DomainCourses,
		op:     "fetch school courses",
		fetch: func(ctx context.Context) ([]domain.Course, error) {
			return s.api.FetchSchoolCourses(ctx, schoolID)
		},
		apply: s.mergeCourses,
	})
}

// FetchAllCourses replaces the course map with the server's full list.
func (s *Session) FetchAllCourses(ctx context.Context) ([]domain.Course, error) {
	return run(ctx, s, call[[]domain.Course]{
		domain: DomainCourses,
		op:     "fetch all courses",
		target: targetAllCourses,
		fetch:  s.api.FetchAllCourses,
		apply:  s.replaceCourses,
	})
}

// mergeCourses merges the courses of call seq that no newer write has
// touched.
func (s *Session) mergeCourses(st *state, seq uint64, cs []domain.Course) error {
	fresh := make([]domain.Course, 0, len(cs))
	for _, c := range cs {
		if !st.fresh(courseKey(c.ID), seq) {
			s.logger.Debug("skipping superseded course", "course_id", c.ID, "seq", seq)
			continue
		}
		fresh = append(fresh, c)
	}
	if err := st.store.Courses.MergeMany(fresh); err != nil {
		return err
	}
	for _, c := range fresh {
		st.written(courseKey(c.ID), seq)
	}
	return nil
}

// replaceCourses makes cs the course map. Courses written by a newer call
// keep their newer version and are not removed.
func (s *Session) replaceCourses(st *state, seq uint64, cs []domain.Course) error {
	next := make([]domain.Course, 0, len(cs))
	listed := make(map[string]bool, len(cs))
	var touched []string
	for _, c := range cs {
		listed[c.ID] = true
		if st.fresh(courseKey(c.ID), seq) {
			next = append(next, c)
			touched = append(touched, c.ID)
			continue
		}
		if cur, err := st.store.Courses.Get(c.ID); err == nil {
			next = append(next, cur)
		}
	}
	for _, cur := range st.store.Courses.All() {
		if listed[cur.ID] {
			continue
		}
		if !st.fresh(courseKey(cur.ID), seq) {
			next = append(next, cur)
			continue
		}
		touched = append(touched, cur.ID)
	}

	if err := st.store.Courses.ReplaceAll(next); err != nil {
		return err
	}
	for _, id := range touched {
		st.written(courseKey(id), seq)
	}
	s.bus.publish(st, event{kind: EventCoursesReplaced})
	return nil
}

// SelectCourse sets the dropdown course. An empty id selects all chats.
func (s *Session) SelectCourse(courseID string) error {
	return s.local(DomainCourses, "select course", func(st *state) error {
		return st.selectCourse(courseID)
	})
}

// PromptTemplates returns the selected course's prompt templates while a
// new chat is waiting for its first message, and nil otherwise.
func (s *Session) PromptTemplates() []string {
	var out []string
	s.read(func(st *state) { out = promptTemplates(st) })
	return out
}

func promptTemplates(st *state) []string {
	if st.selectedCourse == "" || !st.tracker.waitingFirstMessage {
		return nil
	}
	c, err := st.store.Courses.Get(st.selectedCourse)
	if err != nil {
		return nil
	}
	return c.PromptTemplates
}

type job struct {
	cancel context.CancelFunc
}

// TrainSelectedCourse submits content to train the selected course's model
// and blocks until the job ends. The courses domain stays loading for the
// whole job. A completed job reloads the course.
func (s *Session) TrainSelectedCourse(ctx context.Context, content string) (training.Result, error) {
	var (
		tj   training.Job
		j    *job
		jctx context.Context
	)
	res, err := run(ctx, s, call[training.Result]{
		domain: DomainCourses,
		op:     "train course",
		prepare: func(st *state) error {
			u, err := st.currentUser()
			if err != nil {
				return err
			}
			if st.selectedCourse == "" {
				return inconsistent("no course selected for training")
			}
			if _, running := s.jobs[st.selectedCourse]; running {
				return ErrJobRunning
			}
			tj = training.Job{SchoolID: u.School, UserID: u.ID, CourseID: st.selectedCourse, Content: content}
			var cancel context.CancelFunc
			jctx, cancel = context.WithCancel(ctx)
			j = &job{cancel: cancel}
			s.jobs[tj.CourseID] = j
			st.training[tj.CourseID] = training.Progress{CourseID: tj.CourseID, State: training.StateIdle}
			return nil
		},
		fetch: func(context.Context) (training.Result, error) {
			p := s.poller
			p.OnProgress = func(pr training.Progress) { s.trainingProgress(j, pr) }
			return p.Run(jctx, s.api, tj)
		},
	})

	if j != nil {
		s.mu.Lock()
		if s.jobs[tj.CourseID] == j {
			delete(s.jobs, tj.CourseID)
		}
		s.mu.Unlock()
		j.cancel()
	}
	if err != nil {
		return res, err
	}

	if _, ferr := s.FetchSchoolCourse(ctx, tj.SchoolID, tj.CourseID); ferr != nil {
		s.logger.Warn("reload trained course failed", "course_id", tj.CourseID, "error", ferr)
	}
	return res, nil
}

func (s *Session) trainingProgress(j *job, pr training.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[pr.CourseID] != j {
		return
	}
	s.st.training[pr.CourseID] = pr
	s.changed()
}

// CancelTraining stops the running job for courseID. It reports whether a
// job was running.
func (s *Session) CancelTraining(courseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[courseID]
	if ok {
		j.cancel()
	}
	return ok
}

// TrainingProgress returns the last known state of courseID's job.
func (s *Session) TrainingProgress(courseID string) (training.Progress, bool) {
	var (
		pr training.Progress
		ok bool
	)
	s.read(func(st *state) { pr, ok = st.training[courseID] })
	return pr, ok
}
