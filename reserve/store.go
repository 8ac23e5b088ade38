/*
store.go - Persistence interfaces for reserves and ledgers

PURPOSE:
  Defines the interface between the engine and the database. Movement and
  accounting rows are append-only; coverage reserve rows are the only mutable
  table, and only the ledger writer updates them.

APPEND-ONLY CONTRACT:
  AppendMovement / AppendCoverageMovement / AppendEntries are the only write
  operations on the ledgers. There is no update or delete: corrections are
  recorded as reversal movements, which the aggregator excludes together with
  the rows they undo.

ATOMIC BATCHES:
  TxStore.WithTx ensures a whole adjustment batch commits or rolls back as
  one unit. Movement numbering and ceiling bookkeeping are only consistent if
  partial commits are impossible.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - reserve/store: In-memory store for tests and dev
*/
package reserve

import "context"

// =============================================================================
// STORE - Reserve rows plus the two ledger read models
// =============================================================================

// Store handles persistence of coverage reserves, movements, payments and
// accounting entries.
type Store interface {
	// Reserves returns all coverage reserve rows for a claim.
	Reserves(ctx context.Context, ref ClaimRef) ([]CoverageReserve, error)

	// Reserve returns one coverage reserve row, or ErrCoverageNotFound.
	Reserve(ctx context.Context, ref ClaimRef, cov CoverageKey) (*CoverageReserve, error)

	// UpdateReserve persists the adjusted amount, cached balance and
	// effective date of a reserve row. Only the ledger writer calls this.
	UpdateReserve(ctx context.Context, r CoverageReserve) error

	// Movements returns the claim-scoped movement rows, oldest first.
	Movements(ctx context.Context, ref ClaimRef) ([]MovementRecord, error)

	// CoverageMovements returns the movement rows of one coverage, oldest first.
	CoverageMovements(ctx context.Context, ref ClaimRef, cov CoverageKey) ([]CoverageMovementRecord, error)

	// Payments returns the payment ledger rows of one coverage.
	Payments(ctx context.Context, ref ClaimRef, cov CoverageKey) ([]PaymentRecord, error)

	// AppendMovement adds a claim-scoped movement row. Append-only.
	AppendMovement(ctx context.Context, m MovementRecord) error

	// AppendCoverageMovement adds a coverage-scoped movement row. Append-only.
	AppendCoverageMovement(ctx context.Context, m CoverageMovementRecord) error

	// AppendEntries adds the accounting rows of one commit atomically.
	AppendEntries(ctx context.Context, entries []AccountingEntry) error

	// NextMovementNumber returns max(movements, coverage movements)+1 for the
	// claim, or 1 when neither table has rows.
	NextMovementNumber(ctx context.Context, ref ClaimRef) (int64, error)

	// NextEntryNumber returns the next accounting-entry number for the claim.
	NextEntryNumber(ctx context.Context, ref ClaimRef) (int64, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic batch commits
// =============================================================================

// TxStore wraps Store with transaction support. A whole adjustment batch is
// committed inside one WithTx call; if fn returns an error every write is
// rolled back.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
