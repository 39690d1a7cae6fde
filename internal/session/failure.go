package session

import (
	"errors"
	"fmt"

	"github.com/ashureev/coursegpt-sync/internal/courseapi"
	"github.com/ashureev/coursegpt-sync/internal/store"
	"github.com/ashureev/coursegpt-sync/internal/training"
)

// FailureKind classifies a recorded failure.
type FailureKind string

const (
	FailureTransport      FailureKind = "transport"
	FailureServer         FailureKind = "server"
	FailureConsistency    FailureKind = "consistency"
	FailureCanceled       FailureKind = "canceled"
	FailureTimedOut       FailureKind = "timed_out"
	FailureTrainingFailed FailureKind = "training_failed"
)

var (
	// ErrInconsistent marks a violated local invariant, such as selecting a
	// chat that is not in the store.
	ErrInconsistent = errors.New("session state inconsistent")
	// ErrStale is returned when a result was discarded because a newer
	// request for the same target was already applied.
	ErrStale = errors.New("result superseded by a newer request")
	// ErrNotSignedIn is returned by operations that need a current user.
	ErrNotSignedIn = errors.New("no user signed in")
	// ErrJobRunning is returned when a course already has a training job.
	ErrJobRunning = errors.New("training already running for course")
)

// Failure is the normalized error stored on a domain and returned to
// callers. Message is suitable for display.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Op      string      `json:"op,omitempty"`
	Status  int         `json:"status,omitempty"`
	Message string      `json:"message"`
	err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.err
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}

// classify turns any error from a call or local transition into a Failure.
func classify(op string, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	f = &Failure{Op: op, Message: err.Error(), err: err}

	var apiErr *courseapi.Error
	switch {
	case errors.Is(err, training.ErrTimedOut):
		f.Kind = FailureTimedOut
	case courseapi.IsCanceled(err):
		f.Kind = FailureCanceled
	case errors.Is(err, training.ErrTrainingFailed), errors.Is(err, training.ErrUnknownStatus):
		f.Kind = FailureTrainingFailed
	case errors.Is(err, ErrInconsistent), errors.Is(err, store.ErrNotFound),
		errors.Is(err, ErrNotSignedIn), errors.Is(err, ErrJobRunning):
		f.Kind = FailureConsistency
	case errors.As(err, &apiErr):
		f.Status = apiErr.Status
		if apiErr.Kind == courseapi.KindServer {
			f.Kind = FailureServer
		} else {
			f.Kind = FailureTransport
		}
	case errors.Is(err, store.ErrEmptyID):
		f.Kind = FailureServer
	default:
		f.Kind = FailureTransport
	}
	return f
}
