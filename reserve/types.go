/*
Package reserve provides the core claims reserve adjustment engine.

PURPOSE:
  This package contains the domain types and algorithms for adjusting the
  monetary reserve held against individual coverages of an insurance claim.
  Balances are always derived from the movement and payment ledgers, proposed
  adjustments pass a short-circuiting rule chain, and claims whose coverages
  share a combined limit are resolved by a priority-ordered reallocation pass
  before anything is committed.

KEY CONCEPTS IN THIS FILE (types.go):
  - ClaimRef/CoverageKey: Type-safe identifiers for claims and coverages
  - CoverageReserve: The per-coverage reserve row (sum insured, balances)
  - AdjustmentRequest/AdjustmentResult: One batch entry in and out
  - ValidationState: Explicit state of a coverage within a batch
  - MovementRecord/CoverageMovementRecord/AccountingEntry: Append-only ledger rows

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for every monetary figure
  2. Immutability: Movement and accounting rows are append-only
  3. Derived balances: CurrentBalance is a cache of the Aggregator's output,
     never an independent source of truth
  4. Explicit state: ValidationState replaces ad-hoc string flags

SEE ALSO:
  - balance.go: Balance aggregation from the two read models
  - validator.go: The adjustment rule chain
  - cascade.go: Priority reallocation under a shared ceiling
  - writer.go: Atomic movement + double-entry persistence
*/
package reserve

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ClaimRef identifies a claim by branch office, policy line and claim number.
type ClaimRef struct {
	Branch int
	Line   int
	Number int
}

func (r ClaimRef) String() string {
	return fmt.Sprintf("%d-%d-%d", r.Branch, r.Line, r.Number)
}

// CoverageKey identifies one coverage of a claim: the accounting line it is
// booked under plus the coverage code within that line.
type CoverageKey struct {
	AccountingLine int
	Code           string
}

func (k CoverageKey) String() string {
	return fmt.Sprintf("%d/%s", k.AccountingLine, k.Code)
}

// =============================================================================
// CLAIM - Read model supplied by the claims directory
// =============================================================================

type ClaimStatus string

const (
	StatusOpen     ClaimStatus = "open"
	StatusClosed   ClaimStatus = "closed"
	StatusRejected ClaimStatus = "rejected" // terminal closed-rejected status
)

// Claim carries the claim-level attributes the engine needs. It is a read
// model: the engine never creates or mutates claims.
type Claim struct {
	Ref        ClaimRef
	Status     ClaimStatus
	Policy     string // policy reference
	PolicyLine int    // product line of the policy
	ClaimType  string // classification from the code tables
	Currency   string
	Occurred   time.Time
}

// Terminal reports whether the claim is in the closed-rejected status,
// which restricts adjustments to non-negative balances.
func (c *Claim) Terminal() bool {
	return c.Status == StatusRejected
}

// =============================================================================
// COVERAGE RESERVE - One row per (claim, accounting line, coverage code)
// =============================================================================

// CoverageReserve is the stored reserve position of one coverage.
//
// INVARIANTS:
//   - AdjustedAmount only changes by the signed delta of an approved
//     adjustment, applied by the ledger writer.
//   - CurrentBalance always equals the Aggregator's output for this coverage
//     at the time it was last refreshed.
//   - Never deleted while the claim is open.
type CoverageReserve struct {
	Claim    ClaimRef
	Coverage CoverageKey
	Policy   string

	SumInsured        decimal.Decimal
	InitialReserve    decimal.Decimal
	AdjustedAmount    decimal.Decimal // cumulative signed adjustments
	LiquidationAmount decimal.Decimal
	RejectionAmount   decimal.Decimal
	CurrentBalance    decimal.Decimal // cached Aggregator output

	// Priority is the shared-ceiling rank (lower = more important).
	// nil means the coverage is not subject to shared-ceiling logic.
	Priority *int

	// ValidateAgainstSumInsured enables the indemnification cap rule.
	ValidateAgainstSumInsured bool

	// SharedLimitProduct marks coverages whose product enforces a combined
	// limit across the claim.
	SharedLimitProduct bool

	EffectiveDate time.Time
}

// =============================================================================
// ADJUSTMENT REQUEST / RESULT - Transient, one batch only
// =============================================================================

// AdjustmentRequest is a caller's proposed new balance for one coverage.
// NewBalance is a pointer so that an absent amount can be distinguished from
// an explicit zero; a zero balance additionally requires ConfirmZero.
type AdjustmentRequest struct {
	Coverage    CoverageKey
	NewBalance  *decimal.Decimal
	ConfirmZero bool
}

// AdjustmentResult is the resolved outcome for one coverage of a batch.
type AdjustmentResult struct {
	Coverage   CoverageKey
	Accepted   bool
	Delta      decimal.Decimal
	NewBalance decimal.Decimal
	State      ValidationState
	Message    string
	MovementID int64 // movement number assigned on commit, 0 if not committed
}

// =============================================================================
// VALIDATION STATE - Explicit batch state per coverage
// =============================================================================

// ValidationState is the state of a coverage within one adjustment batch.
// PENDING and FLAGGED are transient; APPROVED is terminal for the batch,
// REDUCED marks coverages that gave up capacity to a higher-priority sibling.
type ValidationState string

const (
	StatePending  ValidationState = "pending"  // no request for this coverage yet
	StateFlagged  ValidationState = "flagged"  // has a request and a priority rank
	StateApproved ValidationState = "approved" // resolved, ready to commit
	StateReduced  ValidationState = "reduced"  // balance yielded to a sibling
)

// =============================================================================
// MOVEMENT TYPES
// =============================================================================

// MovementType is the numeric code classifying a ledger movement.
type MovementType int

const (
	MovementAdjustment  MovementType = 3 // reserve adjustment on an open claim
	MovementLiquidation MovementType = 5 // adjustment on a closed claim
	MovementRejection   MovementType = 7 // adjustment on a rejected claim

	// Excluded from balance aggregation: these codes net to zero by pairing
	// with the rows they undo.
	MovementReversal     MovementType = 9
	MovementCancellation MovementType = 10
	MovementCorrection   MovementType = 11
)

// MovementTypeFor maps a claim status to the movement type the ledger writer
// records for an adjustment on that claim.
func MovementTypeFor(status ClaimStatus) MovementType {
	switch status {
	case StatusClosed:
		return MovementLiquidation
	case StatusRejected:
		return MovementRejection
	default:
		return MovementAdjustment
	}
}

// =============================================================================
// LEDGER ROWS - Append-only, created exclusively by the ledger writer
// =============================================================================

// MovementRecord is the claim-scoped ledger row for one adjustment.
type MovementRecord struct {
	Claim          ClaimRef
	MovementNumber int64
	Type           MovementType
	Amount         decimal.Decimal // signed delta
	Currency       string
	Date           time.Time
	CreatedBy      string
}

// CoverageMovementRecord is the coverage-scoped counterpart of a
// MovementRecord. Both share the same movement number.
type CoverageMovementRecord struct {
	Claim          ClaimRef
	Coverage       CoverageKey
	MovementNumber int64
	Type           MovementType
	Amount         decimal.Decimal // signed delta
	Currency       string
	Date           time.Time
	CreatedBy      string
}

// EntrySide is the double-entry side of an accounting row.
type EntrySide string

const (
	SideDebit  EntrySide = "debit"
	SideCredit EntrySide = "credit"
)

// AccountingEntry is one debit or credit row produced for a movement.
// All entries of one commit share an entry number.
type AccountingEntry struct {
	Claim          ClaimRef
	Coverage       CoverageKey
	EntryNumber    int64
	MovementNumber int64
	Account        string
	Side           EntrySide
	Amount         decimal.Decimal // always non-negative
	Currency       string
	Date           time.Time
}

// AccountingComponent is one row of the chart-of-accounts mapping for a
// movement type. Polarity +1 means the component is debited when the delta
// is positive; -1 means it is credited when the delta is positive.
type AccountingComponent struct {
	Account  string
	Polarity int
}

// =============================================================================
// PAYMENT READ MODEL
// =============================================================================

// PaymentRecord is one row of the payment ledger read model. The aggregator
// nets payments against movements when deriving a coverage balance.
type PaymentRecord struct {
	Claim            ClaimRef
	Coverage         CoverageKey
	DisbursementType int
	PaymentType      int
	Amount           decimal.Decimal
	Date             time.Time
}
