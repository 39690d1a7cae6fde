package courseapi

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed call.
type Kind string

const (
	// KindTransport means no usable response was received.
	KindTransport Kind = "transport"
	// KindServer means the server answered with a non-2xx status or an
	// unreadable body.
	KindServer Kind = "server"
)

// Error is returned by every Client method that fails. Message is the
// human-readable text shown to the user: the server's {"error": ...} value
// when present, otherwise a description of the transport or status failure.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err is a call aborted by its context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a call that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func transportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: err.Error(), Err: err}
}

func statusError(op string, status int, serverMsg string) *Error {
	msg := serverMsg
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status code %d", status)
	}
	return &Error{Kind: KindServer, Op: op, Status: status, Message: msg}
}
