/*
errors.go - Centralized error types for the reserve engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Validation and cascade outcomes are reported as data on AdjustmentResult,
  never as Go errors; only missing references and persistence failures are
  signaled as hard failures.

ERROR CATEGORIES:
  1. Not-found errors - Claim, coverage or policy reference missing
  2. Persistence errors - A ledger writer step failed, batch rolls back
  3. Overlay errors - Coverage-specific validation hooks

USAGE:
  Callers should classify with the helpers:

    if reserve.IsNotFound(err) { ... 404 ... }
    if reserve.IsPersistence(err) { ... 500 ... }

SEE ALSO:
  - writer.go: Wraps store failures in PersistenceError
  - claims/service.go: Maps these onto batch outcomes
*/
package reserve

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrClaimNotFound is returned when the referenced claim does not exist.
	// It aborts the whole request before any validation runs.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrCoverageNotFound is returned when a request names a coverage that is
	// not attached to the claim.
	ErrCoverageNotFound = errors.New("coverage not found")

	// ErrPolicyNotFound is returned when the policy reference cannot be
	// resolved for sum-insured or currency lookups.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrPersistence is returned when a ledger writer step cannot be made
	// durable. The enclosing batch transaction is rolled back.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PersistenceError identifies which commit step failed for which coverage.
type PersistenceError struct {
	Claim    ClaimRef
	Coverage CoverageKey
	Step     string // "movement", "coverage-movement", "entries", "reserve"
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("commit failed for %s coverage %s at step %q: %v",
		e.Claim, e.Coverage, e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// OverlayError is a rejection raised by a coverage-specific validation hook.
// It is a client-level outcome, surfaced as a per-coverage rejection message.
type OverlayError struct {
	Overlay string
	Message string
}

func (e *OverlayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Overlay, e.Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrCoverageNotFound) ||
		errors.Is(err, ErrPolicyNotFound)
}

// IsPersistence returns true if the error is a failed ledger writer step.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
