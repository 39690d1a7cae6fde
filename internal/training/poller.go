// Package training drives a course-model training job to completion by
// polling its status.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

var (
	// ErrTimedOut is returned when the attempt or wall-time budget runs out
	// before the job completes.
	ErrTimedOut = errors.New("training timed out")
	// ErrTrainingFailed is returned when the server reports a failed job.
	ErrTrainingFailed = errors.New("training failed")
	// ErrUnknownStatus is returned for a status the poller does not know.
	// Unknown statuses end the job instead of being retried.
	ErrUnknownStatus = errors.New("unknown training status")
	// ErrInvalidJob is returned when a job is missing its identifiers.
	ErrInvalidJob = errors.New("invalid training job")
)

// State is the lifecycle position of a job.
type State string

const (
	StateIdle      State = "idle"
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateComplete  State = "complete"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateTimedOut, StateFailed, StateCanceled:
		return true
	}
	return false
}

// API is the part of the REST client a job needs.
type API interface {
	ImproveModel(ctx context.Context, schoolID, userID, courseID, content string) error
	TrainingStatus(ctx context.Context, schoolID, userID, courseID string) (domain.TrainingStatus, error)
}

// Job identifies one training request.
type Job struct {
	SchoolID string
	UserID   string
	CourseID string
	Content  string
}

// Progress is reported on every state change and after every poll.
type Progress struct {
	CourseID string                `json:"courseId"`
	State    State                 `json:"state"`
	Attempts int                   `json:"attempts"`
	Status   domain.TrainingStatus `json:"status,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Result describes how a job ended.
type Result struct {
	domain.TrainingResult
	State    State
	Attempts int
	Elapsed  time.Duration
}

// Poller submits jobs and polls them at a fixed interval. The zero value
// polls every 3s with no budget; set MaxAttempts or MaxWait to bound it.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	MaxWait     time.Duration
	Logger      *slog.Logger
	// OnProgress, if set, is called synchronously from Run.
	OnProgress func(Progress)
}

// DefaultInterval is the wait before each status check.
const DefaultInterval = 3 * time.Second

func (p *Poller) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Poller) report(pr Progress) {
	if p.OnProgress != nil {
		p.OnProgress(pr)
	}
}

// Run submits job and blocks until it completes, fails, times out or ctx
// is canceled. The returned Result is meaningful even when err is non-nil.
func (p *Poller) Run(ctx context.Context, api API, job Job) (Result, error) {
	start := time.Now()
	res := Result{State: StateIdle}
	res.CourseID = job.CourseID

	finish := func(state State, status domain.TrainingStatus, err error) (Result, error) {
		res.State = state
		res.Status = status
		res.Elapsed = time.Since(start)
		pr := Progress{CourseID: job.CourseID, State: state, Attempts: res.Attempts, Status: status}
		if err != nil {
			pr.Error = err.Error()
		}
		p.report(pr)

		log := p.logger().With("course_id", job.CourseID, "attempts", res.Attempts, "elapsed", res.Elapsed)
		if err != nil {
			log.Info("training job ended", "state", state, "error", err)
		} else {
			log.Info("training job complete")
		}
		return res, err
	}

	if job.CourseID == "" || job.SchoolID == "" || job.UserID == "" {
		return finish(StateFailed, "", fmt.Errorf("%w: school, user and course are required", ErrInvalidJob))
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.report(Progress{CourseID: job.CourseID, State: StateSubmitted})
	if err := api.ImproveModel(ctx, job.SchoolID, job.UserID, job.CourseID, job.Content); err != nil {
		if ctx.Err() != nil {
			return finish(StateCanceled, "", fmt.Errorf("submit training: %w", ctx.Err()))
		}
		return finish(StateFailed, "", err)
	}

	pctx := ctx
	if p.MaxWait > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeoutCause(ctx, p.MaxWait, ErrTimedOut)
		defer cancel()
	}

	// stopped maps a done poll context to the matching terminal state.
	stopped := func() (Result, error) {
		if errors.Is(context.Cause(pctx), ErrTimedOut) && ctx.Err() == nil {
			return finish(StateTimedOut, domain.TrainingPending,
				fmt.Errorf("%w: no completion after %s", ErrTimedOut, p.MaxWait))
		}
		return finish(StateCanceled, "", fmt.Errorf("training canceled: %w", ctx.Err()))
	}

	p.report(Progress{CourseID: job.CourseID, State: StatePolling})
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if p.MaxAttempts > 0 && res.Attempts >= p.MaxAttempts {
			return finish(StateTimedOut, domain.TrainingPending,
				fmt.Errorf("%w: no completion after %d attempts", ErrTimedOut, res.Attempts))
		}

		if pctx.Err() != nil {
			return stopped()
		}
		select {
		case <-pctx.Done():
			return stopped()
		case <-timer.C:
		}

		res.Attempts++
		status, err := api.TrainingStatus(pctx, job.SchoolID, job.UserID, job.CourseID)
		if err != nil {
			if pctx.Err() != nil {
				return stopped()
			}
			return finish(StateFailed, "", err)
		}
		p.logger().Debug("training status", "course_id", job.CourseID, "attempt", res.Attempts, "status", status)

		switch status {
		case domain.TrainingComplete:
			return finish(StateComplete, status, nil)
		case domain.TrainingPending:
			p.report(Progress{CourseID: job.CourseID, State: StatePolling, Attempts: res.Attempts, Status: status})
			timer.Reset(interval)
		case domain.TrainingFailed, domain.TrainingError:
			return finish(StateFailed, status, fmt.Errorf("%w: server reported %q", ErrTrainingFailed, status))
		default:
			return finish(StateFailed, status, fmt.Errorf("%w: %q", ErrUnknownStatus, status))
		}
	}
}
