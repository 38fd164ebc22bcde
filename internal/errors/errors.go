// Package errors defines the sentinel errors pidx returns, category checks
// over them and constructors that attach field context.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Digit provider errors
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidPrecision     = errors.New("invalid precision")
	ErrInvalidPosition      = errors.New("invalid digit position")
	ErrConvergenceFailed    = errors.New("series did not converge")

	// Identifier errors
	ErrInvalidLength          = errors.New("invalid identifier length")
	ErrCollisionLimitExceeded = errors.New("collision limit exceeded")
	ErrMalformedIdentifier    = errors.New("malformed identifier")

	// ErrPoolExhausted is internal to the identifier generator. It triggers the
	// synchronous fallback and is never returned to callers.
	ErrPoolExhausted = errors.New("identifier pool exhausted")

	// Query errors
	ErrInvalidQuery = errors.New("invalid query")
	ErrUnknownCurve = errors.New("unknown curve type")

	// Worker pool errors
	ErrPoolClosed  = errors.New("worker pool closed")
	ErrQueueFull   = errors.New("worker queue full")
	ErrUnitTimeout = errors.New("work unit timed out")
	ErrUnitPanic   = errors.New("work unit panicked")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Persistence errors
	ErrWriterClosed = errors.New("writer is closed")
	ErrNotFound     = errors.New("not found")
	ErrDatabase     = errors.New("database error")
)

// Is and Join re-export the standard helpers so callers need one import.
var (
	Is   = errors.Is
	Join = errors.Join
)

// IsConfiguration reports whether err stems from caller input or
// configuration. Such calls fail the same way when retried unchanged.
func IsConfiguration(err error) bool {
	return isAny(err, ErrUnsupportedAlgorithm, ErrInvalidPrecision, ErrInvalidPosition,
		ErrInvalidLength, ErrInvalidQuery, ErrUnknownCurve, ErrInvalidConfig, ErrMissingField)
}

// IsRetriable reports whether the operation may succeed when retried.
func IsRetriable(err error) bool {
	return isAny(err, ErrCollisionLimitExceeded, ErrConvergenceFailed,
		ErrQueueFull, ErrUnitTimeout, ErrUnitPanic)
}

// IsWorkerFailure reports whether err came from the worker pool rather than
// from the submitted work.
func IsWorkerFailure(err error) bool {
	return isAny(err, ErrPoolClosed, ErrQueueFull, ErrUnitTimeout, ErrUnitPanic)
}

func isAny(err error, targets ...error) bool {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted prefix.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation reports a config field that failed a check.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField reports a required config field left empty.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue reports a config value outside its accepted set.
func NewInvalidValue(field string, value any, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewInvalidQuery reports a query spec field that failed a check.
func NewInvalidQuery(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidQuery)
}
