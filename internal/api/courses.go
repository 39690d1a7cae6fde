package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

type selectCourseRequest struct {
	CourseID string `json:"courseId"`
}

type trainRequest struct {
	Content string `json:"content" validate:"required"`
}

// RefreshCourses replaces the course list, or merges one school's courses
// when ?school= is given.
func (h *Handler) RefreshCourses(w http.ResponseWriter, r *http.Request) {
	var (
		courses []domain.Course
		err     error
	)
	if school := r.URL.Query().Get("school"); school != "" {
		courses, err = h.sess.FetchSchoolCourses(r.Context(), school)
	} else {
		courses, err = h.sess.FetchAllCourses(r.Context())
	}
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"courses": courses})
}

// SelectCourse sets the course filter. An empty id selects all chats.
func (h *Handler) SelectCourse(w http.ResponseWriter, r *http.Request) {
	var req selectCourseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.sess.SelectCourse(req.CourseID); err != nil {
		Fail(w, err)
		return
	}
	h.view(w, http.StatusOK)
}

// NewChat prepares the selected course for a first message.
func (h *Handler) NewChat(w http.ResponseWriter, _ *http.Request) {
	if err := h.sess.SelectCourseForNewChat(); err != nil {
		Fail(w, err)
		return
	}
	h.view(w, http.StatusOK)
}

// Train starts a training job for the selected course and returns at once.
// Progress is published through the session view.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if !h.decode(w, r, &req) {
		return
	}
	courseID := h.sess.View().SelectedCourse
	if courseID == "" {
		Error(w, http.StatusConflict, "no course selected for training")
		return
	}
	if pr, ok := h.sess.TrainingProgress(courseID); ok && !pr.State.Terminal() {
		Error(w, http.StatusConflict, "training already running for course")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(h.base, cancel)

	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		defer stop()
		defer cancel()

		res, err := h.sess.TrainSelectedCourse(ctx, req.Content)
		if err != nil {
			h.logger.Warn("Training job ended without completing", "course_id", courseID, "error", err)
			return
		}
		h.logger.Info("Training job complete", "course_id", res.CourseID, "attempts", res.Attempts)
	}()

	JSON(w, http.StatusAccepted, training.Progress{CourseID: courseID, State: training.StateSubmitted})
}

// TrainingProgress returns the last known state of a course's job.
func (h *Handler) TrainingProgress(w http.ResponseWriter, r *http.Request) {
	pr, ok := h.sess.TrainingProgress(chi.URLParam(r, "courseID"))
	if !ok {
		Error(w, http.StatusNotFound, "no training job for course")
		return
	}
	JSON(w, http.StatusOK, pr)
}

// CancelTraining stops a running job.
func (h *Handler) CancelTraining(w http.ResponseWriter, r *http.Request) {
	if !h.sess.CancelTraining(chi.URLParam(r, "courseID")) {
		Error(w, http.StatusNotFound, "no training job running for course")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
