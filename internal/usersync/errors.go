package usersync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the user record does not exist.
	ErrNotFound = errors.New("user record not found")
	// ErrConflict indicates the id or email is already held by a record.
	ErrConflict = errors.New("user record already exists")
	// ErrMissingUserID indicates an event without an identity id.
	ErrMissingUserID = errors.New("user id is missing")
	// ErrMissingEmail indicates an event without a usable email address.
	ErrMissingEmail = errors.New("user email is missing")
	// ErrUnknownEventType indicates an event type the reconciler does not handle.
	ErrUnknownEventType = errors.New("unknown event type")
)

// ErrorKind classifies reconciliation failures.
type ErrorKind string

const (
	// KindValidation failures are permanent for the event; redelivery fails the same way.
	KindValidation ErrorKind = "validation"
	// KindConflict is a uniqueness violation that could not be folded into an update.
	KindConflict ErrorKind = "conflict"
	// KindTransient covers store and connection failures; the whole event is safe to retry.
	KindTransient ErrorKind = "transient"
)

// ReconcileError is returned by Reconciler.Reconcile. Event is retained for manual replay.
type ReconcileError struct {
	Kind  ErrorKind
	Event Event
	Err   error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("%s %s for user %q: %v", e.Kind, e.Event.Kind, e.Event.Payload.ID, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Retryable reports whether redelivering the event may succeed.
func (e *ReconcileError) Retryable() bool {
	return e.Kind == KindTransient
}

// IsRetryable reports whether err is a ReconcileError worth redelivering.
// Errors of any other type are treated as retryable.
func IsRetryable(err error) bool {
	var rerr *ReconcileError
	if errors.As(err, &rerr) {
		return rerr.Retryable()
	}
	return err != nil
}
