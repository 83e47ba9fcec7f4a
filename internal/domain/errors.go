package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every specific error below wraps exactly one class, so
// callers can branch on errors.Is(err, ErrValidation) etc. without knowing
// the specific failure.
//
// Retry policy per class: concurrency errors are expected under contention
// and retried against fresh state; numerical errors get one retry with a
// widened solver bracket; validation and state errors are never retried;
// external errors abort the in-flight trade atomically.
var (
	ErrValidation  = errors.New("validation error")
	ErrState       = errors.New("state error")
	ErrNumerical   = errors.New("numerical error")
	ErrConcurrency = errors.New("concurrency error")
	ErrExternal    = errors.New("external error")
	ErrNotFound    = errors.New("not found")
)

var (
	ErrInvalidOutcome   = fmt.Errorf("%w: unknown outcome", ErrValidation)
	ErrBetOutOfRange    = fmt.Errorf("%w: bet amount out of range", ErrValidation)
	ErrExposureExceeded = fmt.Errorf("%w: market exposure limit exceeded", ErrValidation)
	ErrZeroDelta        = fmt.Errorf("%w: zero share delta", ErrValidation)

	ErrMarketNotOpen     = fmt.Errorf("%w: market not open", ErrState)
	ErrMarketNotLocked   = fmt.Errorf("%w: market not locked", ErrState)
	ErrMarketClosed      = fmt.Errorf("%w: market closed", ErrState)
	ErrNotCashable       = fmt.Errorf("%w: bet not cashable", ErrState)
	ErrAlreadySettled    = fmt.Errorf("%w: market already settled", ErrState)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrState)

	ErrNoConvergence = fmt.Errorf("%w: solver exceeded max iterations", ErrNumerical)

	ErrStaleVersion  = fmt.Errorf("%w: stale market version", ErrConcurrency)
	ErrCostDeviation = fmt.Errorf("%w: committed cost deviates from quote", ErrConcurrency)
	ErrLockHeld      = fmt.Errorf("%w: lock already held", ErrConcurrency)
)
