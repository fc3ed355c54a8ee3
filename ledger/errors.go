/*
errors.go - Centralized error types for the ledger and engine

PURPOSE:
  All failure kinds the engine can surface, in one place. The taxonomy:
  validation failures (bad input, machine-readable kind + field),
  not-found failures, conflict failures (a batch could not commit
  atomically), and nothing-to-retract (a correction that would change
  nothing is itself an error).

  Everything here is local and non-fatal. Nothing in this module should
  ever take the process down; the HTTP boundary maps these to statuses
  via the Is* helpers.

USAGE:
  if errors.Is(err, ledger.ErrNothingToRetract) { ... }

  var verr *ledger.ValidationError
  if errors.As(err, &verr) { verr.Kind, verr.Field ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrContractNotFound is returned when a referenced contract does not exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrFactNotFound is returned when a referenced fact does not exist or
	// was already retracted.
	ErrFactNotFound = errors.New("fact not found")

	// ErrNothingToRetract is returned when a retraction matched zero live
	// facts. A "successful" correction that changed nothing is confusing,
	// so it is rejected instead.
	ErrNothingToRetract = errors.New("nothing to retract")

	// ErrDuplicateIdempotencyKey is returned when a batch replays a key
	// that already committed. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrCorrectionRequired is returned when a batch retracts facts
	// without carrying a Correction.
	ErrCorrectionRequired = errors.New("retraction requires a correction record")

	// ErrConflict is returned when the store could not commit a batch
	// atomically, typically because a concurrent correction already
	// retracted one of the targeted facts. Corrections are never retried
	// automatically; resubmission is a human decision.
	ErrConflict = errors.New("write conflict")

	// ErrEmptyBatch is returned for a batch with no effect at all.
	ErrEmptyBatch = errors.New("empty write batch")
)

// =============================================================================
// VALIDATION ERROR - Machine-readable kind + field
// =============================================================================

// Validation kinds. Closed set so callers can switch exhaustively.
const (
	ValidationNonPositiveAmount = "non_positive_amount"
	ValidationNegativeAmount    = "negative_amount"
	ValidationMissingField      = "missing_field"
	ValidationMalformedDate     = "malformed_date"
	ValidationDuplicateSeq      = "duplicate_seq"
	ValidationUnmatchedRange    = "unmatched_adjustment_range"
	ValidationBadEnum           = "bad_enum_value"
)

type ValidationError struct {
	Kind    string // one of the Validation* constants
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
}

func invalid(kind, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrNothingToRetract) ||
		errors.Is(err, ErrCorrectionRequired) ||
		errors.Is(err, ErrEmptyBatch)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) || errors.Is(err, ErrFactNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrDuplicateIdempotencyKey)
}
