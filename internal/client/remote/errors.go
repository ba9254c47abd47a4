package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/iudanet/gophsync/pkg/api"
)

// ErrOffline indicates that the device is offline and no network call was made
var ErrOffline = errors.New("device is offline")

// Class is a sync-time failure category
type Class int

const (
	// ClassNone means no error
	ClassNone Class = iota
	// ClassTransient failures are retried with backoff and never quarantine an entry
	ClassTransient
	// ClassRejected is a per-item server rejection routed to conflict handling
	ClassRejected
	// ClassPermanent failures count toward the retry budget and end in quarantine
	ClassPermanent
	// ClassCanceled means the caller gave up; state must be left untouched
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassRejected:
		return "rejected"
	case ClassPermanent:
		return "permanent"
	case ClassCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// TransientNetworkError wraps failures that may succeed on retry: timeouts, connection errors, 5xx
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// PermanentFailure wraps failures that will not succeed by repeating the same request
type PermanentFailure struct {
	Err error
}

func (e *PermanentFailure) Error() string {
	return fmt.Sprintf("permanent failure: %v", e.Err)
}

func (e *PermanentFailure) Unwrap() error {
	return e.Err
}

// ServerRejected is a per-item rejection returned in a push response
type ServerRejected struct {
	Rejection api.Rejection
}

func (e *ServerRejected) Error() string {
	if e.Rejection.Reason != "" {
		return fmt.Sprintf("server rejected %s@%d: %s: %s",
			e.Rejection.ID, e.Rejection.Version, e.Rejection.Code, e.Rejection.Reason)
	}
	return fmt.Sprintf("server rejected %s@%d: %s", e.Rejection.ID, e.Rejection.Version, e.Rejection.Code)
}

// Transient marks err as transient
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientNetworkError{Err: err}
}

// Permanent marks err as permanent
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentFailure{Err: err}
}

// Classify maps an error returned by Remote to its failure class.
// Timeouts and network errors are transient; errors of unknown origin are permanent
// so that a poison entry can't be retried forever.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var transient *TransientNetworkError
	var permanent *PermanentFailure
	var rejected *ServerRejected
	var netErr net.Error

	switch {
	case errors.As(err, &rejected):
		return ClassRejected
	case errors.As(err, &permanent):
		return ClassPermanent
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.As(err, &transient):
		return ClassTransient
	case errors.As(err, &netErr):
		return ClassTransient
	default:
		return ClassPermanent
	}
}
