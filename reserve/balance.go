/*
balance.go - Balance aggregation from the movement and payment ledgers

PURPOSE:
  Computes a coverage's current balance from its two read models. This is the
  central calculation that answers "how much reserve is held right now?"

KEY INSIGHT:
  Balance is always derived, never stored authoritatively. The cached
  CurrentBalance on a reserve row is refreshed from this aggregator; any
  validation or commit re-reads it first to avoid acting on stale figures.

CALCULATION:
  movementSum: all coverage movement amounts whose type is not in the
               exclusion set (reversals, cancellations, internal corrections)
               and whose date is on or before today.
  paymentSum:  all payment amounts within the configured disbursement-type
               range, excluding the configured payment-type codes.

  balance = movementSum - |paymentSum|

  Empty ledgers contribute zero; an empty coverage is a zero balance, never
  an error.

SEE ALSO:
  - validator.go: Consumes the fresh balance for every rule decision
  - writer.go: Refreshes the cached balance after a commit
*/
package reserve

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE CONFIG - Code sets driving the two ledger sums
// =============================================================================

// BalanceConfig holds the code-table constants that scope the aggregation.
type BalanceConfig struct {
	// ExcludedMovementTypes are never counted toward the movement sum.
	ExcludedMovementTypes map[MovementType]bool

	// DisbursementTypeMin/Max bound the payment rows that count.
	DisbursementTypeMin int
	DisbursementTypeMax int

	// ExcludedPaymentTypes are payment-type codes removed from the payment sum.
	ExcludedPaymentTypes map[int]bool
}

// DefaultBalanceConfig returns the production code sets.
func DefaultBalanceConfig() BalanceConfig {
	return BalanceConfig{
		ExcludedMovementTypes: map[MovementType]bool{
			MovementReversal:     true,
			MovementCancellation: true,
			MovementCorrection:   true,
		},
		DisbursementTypeMin: 200,
		DisbursementTypeMax: 299,
		ExcludedPaymentTypes: map[int]bool{
			14: true, // deductible recovery
			15: true, // salvage recovery
		},
	}
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes coverage balances. It is side-effect-free: repeated
// calls with unchanged ledgers return identical results.
type Aggregator struct {
	Store  Store
	Config BalanceConfig

	// Now is the clock used for the "on or before today" movement cutoff.
	// Defaults to time.Now when nil.
	Now func() time.Time
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{Store: store, Config: DefaultBalanceConfig()}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// ComputeBalance derives the current balance of one coverage.
func (a *Aggregator) ComputeBalance(ctx context.Context, ref ClaimRef, cov CoverageKey) (decimal.Decimal, error) {
	movementSum, err := a.movementSum(ctx, ref, cov)
	if err != nil {
		return decimal.Zero, err
	}
	paymentSum, err := a.PaymentSum(ctx, ref, cov)
	if err != nil {
		return decimal.Zero, err
	}
	return movementSum.Sub(paymentSum.Abs()), nil
}

func (a *Aggregator) movementSum(ctx context.Context, ref ClaimRef, cov CoverageKey) (decimal.Decimal, error) {
	movements, err := a.Store.CoverageMovements(ctx, ref, cov)
	if err != nil {
		return decimal.Zero, err
	}

	// Cutoff is end of today: a movement dated today still counts.
	cutoff := a.now()

	sum := decimal.Zero
	for _, m := range movements {
		if a.Config.ExcludedMovementTypes[m.Type] {
			continue
		}
		if m.Date.After(cutoff) {
			continue
		}
		sum = sum.Add(m.Amount)
	}
	return sum, nil
}

// PaymentSum totals the payment rows that count toward the balance. The
// shared-ceiling computation reuses it for "total payments made".
func (a *Aggregator) PaymentSum(ctx context.Context, ref ClaimRef, cov CoverageKey) (decimal.Decimal, error) {
	payments, err := a.Store.Payments(ctx, ref, cov)
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, p := range payments {
		if p.DisbursementType < a.Config.DisbursementTypeMin || p.DisbursementType > a.Config.DisbursementTypeMax {
			continue
		}
		if a.Config.ExcludedPaymentTypes[p.PaymentType] {
			continue
		}
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

// Refresh recomputes and caches the balance on a reserve row in memory.
// The caller decides whether and when to persist the row.
func (a *Aggregator) Refresh(ctx context.Context, r *CoverageReserve) error {
	balance, err := a.ComputeBalance(ctx, r.Claim, r.Coverage)
	if err != nil {
		return err
	}
	r.CurrentBalance = balance
	return nil
}
