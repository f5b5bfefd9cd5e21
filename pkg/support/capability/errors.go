package capability

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrCapabilityFailure marks a generation, extraction or search call that failed.
	ErrCapabilityFailure = errors.New("capability failure")
	// ErrSchemaViolation marks extraction output that does not fit the declared schema.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrNoPendingSession is returned when resume finds no suspended run.
	ErrNoPendingSession = errors.New("no pending session")
	// ErrMissingInput is returned for an empty message.
	ErrMissingInput = errors.New("missing input")
)

// Kind is the error class reported in step failure events.
type Kind string

const (
	KindNone              Kind = ""
	KindCapabilityFailure Kind = "capability_failure"
	KindSchemaViolation   Kind = "schema_violation"
	KindTimeout           Kind = "timeout"
	KindNoPendingSession  Kind = "no_pending_session"
	KindMissingInput      Kind = "missing_input"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. Errors that match none of the known sentinels are
// capability failures when they carry ErrCapabilityFailure and internal otherwise.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrSchemaViolation):
		return KindSchemaViolation
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNoPendingSession):
		return KindNoPendingSession
	case errors.Is(err, ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, ErrCapabilityFailure):
		return KindCapabilityFailure
	default:
		return KindInternal
	}
}

// Failure wraps err as a capability failure unless it already carries a
// more specific kind.
func Failure(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCapabilityFailure) || errors.Is(err, ErrSchemaViolation) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, msg)
	}
	return errors.Wrap(&failure{cause: err}, msg)
}

type failure struct {
	cause error
}

func (f *failure) Error() string { return f.cause.Error() }

func (f *failure) Unwrap() error { return f.cause }

func (f *failure) Is(target error) bool { return target == ErrCapabilityFailure }
