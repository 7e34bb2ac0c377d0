package sync

import (
	"errors"
	"fmt"

	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/remote"
)

// Kind classifies a sync or migration failure
type Kind string

const (
	// KindUnreachable means the remote store could not be reached
	KindUnreachable Kind = "Unreachable"

	// KindUnauthorized means the remote store rejected credentials or permissions
	KindUnauthorized Kind = "Unauthorized"

	// KindPartialBatchFailure means a batch commit was rejected
	KindPartialBatchFailure Kind = "PartialBatchFailure"

	// KindAlreadyRunning means the run guard was held by another run
	KindAlreadyRunning Kind = "AlreadyRunning"

	// KindMalformedLocalData means a local record set could not be parsed
	KindMalformedLocalData Kind = "MalformedLocalData"

	// KindUnknown is used for every other failure
	KindUnknown Kind = "Unknown"
)

// Error represents a structured error with its classification
type Error struct {
	Err     error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a message prefix and its classified Kind
func NewError(err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{
		Err:     err,
		Message: msg,
		Kind:    Classify(err),
	}
}

// Classify maps err onto a Kind
func Classify(err error) Kind {
	var syncErr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &syncErr) && syncErr.Kind != "" && syncErr.Kind != KindUnknown:
		return syncErr.Kind
	case errors.Is(err, guard.ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.Is(err, remote.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, remote.ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, remote.ErrBatchRejected):
		return KindPartialBatchFailure
	case errors.Is(err, cache.ErrMalformedData):
		return KindMalformedLocalData
	default:
		return KindUnknown
	}
}
