/*
errors.go - Error taxonomy for the movement ledger

PURPOSE:
  All error types in one place. Callers of RecordMovement/Reverse see
  exactly this taxonomy; nothing is recovered silently - stock correctness
  is safety-critical, so ambiguity is always reported, never guessed.

CATEGORIES:
  ValidationError          malformed record (zero quantity, missing reason)
  InsufficientStockError   would drive stock-on-hand negative
  ErrNotFound              unknown movement id or reference
  AlreadyReversedError     cumulative reversals exhaust the original
  ErrConcurrencyConflict   commit-time race lost; retry the whole operation
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base of every malformed-record rejection.
	ErrValidation = errors.New("movement validation failed")

	// ErrInsufficientStock is returned when an operation would take
	// stock-on-hand below zero for a guarded movement type.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound is returned for unknown movement ids and references.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFullyReversed is returned when cumulative reversals
	// already equal the original movement's magnitude.
	ErrAlreadyFullyReversed = errors.New("movement already fully reversed")

	// ErrConcurrencyConflict is returned when a commit-time race is lost.
	// The caller should retry the whole operation, not a single line.
	ErrConcurrencyConflict = errors.New("concurrent write conflict")

	// ErrDuplicateMovement is returned when a movement ID is appended twice.
	ErrDuplicateMovement = errors.New("duplicate movement id")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError pinpoints the offending line and field of an operation.
type ValidationError struct {
	Line    int // index within Operation.Lines; -1 for operation-level faults
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("invalid operation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid movement line %d: %s: %s", e.Line, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError reports the shortfall for one aggregation key.
type InsufficientStockError struct {
	Key       Key
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s at %s: available %s, requested %s",
		e.Key.Product, e.Key.Batch, e.Key.Location, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// AlreadyReversedError reports how much of the original is still
// reversible (zero when fully reversed).
type AlreadyReversedError struct {
	Original  MovementID
	Remaining decimal.Decimal
}

func (e *AlreadyReversedError) Error() string {
	return fmt.Sprintf("movement %s already fully reversed (remaining %s)", e.Original, e.Remaining)
}

func (e *AlreadyReversedError) Unwrap() error { return ErrAlreadyFullyReversed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed if resubmitted.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError reports whether the failure is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyFullyReversed) ||
		errors.Is(err, ErrDuplicateMovement)
}
