/*
validator.go - Business rules for a proposed new balance

PURPOSE:
  Applies the adjustment rule chain to one coverage. Rules run in order and
  short-circuit on the first failure; the outcome is returned as data, never
  as a Go error, so one rejected coverage does not abort its siblings.

RULE CHAIN:
  1. Requested balance must be present
  2. Rejected claims only accept non-negative balances
  3. Zero balance requires an explicit confirmation flag
  4. Requested balance must differ from the current balance
  5. Sum insured must be positive
  6. Indemnification cap (sum insured x factor) for flagged coverages
  7. Coverage-specific overlays (pluggable hooks)

  On acceptance the outcome carries delta = requested - current; the delta,
  not the requested balance, is what the ledger writer records.

SEE ALSO:
  - overlay.go: The pluggable step-7 hooks
  - cascade.go: Resolves accepted deltas under a shared ceiling
*/
package reserve

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTCOME - Per-coverage validation result, returned as data
// =============================================================================

// Outcome is the resolved validation result for one coverage.
type Outcome struct {
	Accepted bool
	Delta    decimal.Decimal // requested - current, only when accepted
	Reason   string          // human-readable rejection reason
}

func rejected(format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// FACTOR SOURCE - Code-table lookup for the indemnification cap
// =============================================================================

// FactorSource resolves the max-indemnification factor for a policy line.
// Implementations live with the code-table collaborators; a nil source means
// factor 1 everywhere.
type FactorSource interface {
	MaxIndemnizationFactor(line int) int
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator applies the adjustment rule chain. currentBalance must be a
// fresh Aggregator output for the same coverage.
type Validator struct {
	Factors  FactorSource
	Overlays []Overlay
}

// Validate runs the rule chain for one coverage of a batch.
func (v *Validator) Validate(ctx context.Context, claim *Claim, res *CoverageReserve, req AdjustmentRequest, currentBalance decimal.Decimal) Outcome {
	// 1. An absent amount is different from an explicit zero.
	if req.NewBalance == nil {
		return rejected("amount required")
	}
	requested := *req.NewBalance

	// 2. A rejected claim can only be adjusted upward from zero.
	if claim.Terminal() && requested.IsNegative() {
		return rejected("negative amounts not permitted on a rejected claim")
	}

	// 3. Zeroing a reserve is destructive enough to need confirmation.
	// Recoverable: the caller re-submits with ConfirmZero set.
	if requested.IsZero() && !req.ConfirmZero {
		return rejected("zero amount needs confirmation")
	}

	// 4. A no-op adjustment is a caller mistake.
	if requested.Equal(currentBalance) {
		return rejected("adjustment must differ from current balance (requested %s, current %s)",
			requested.String(), currentBalance.String())
	}

	// 5.
	if !res.SumInsured.IsPositive() {
		return rejected("sum insured is zero for coverage %s", res.Coverage)
	}

	// 6. Indemnification cap. Skipped on terminal claims: rejected claims
	// settle below the cap by construction of rule 2.
	if res.ValidateAgainstSumInsured && !claim.Terminal() {
		cap := res.SumInsured.Mul(decimal.NewFromInt(int64(v.factor(claim.PolicyLine))))
		if requested.GreaterThan(cap) {
			return rejected("requested balance %s exceeds indemnification cap %s",
				requested.String(), cap.String())
		}
	}

	// 7. Coverage-specific overlays. Each either passes or rejects with its
	// own message; none of them mutates the requested amount.
	for _, o := range v.Overlays {
		if !o.Applies(claim, res) {
			continue
		}
		if err := o.Check(ctx, claim, res, requested); err != nil {
			return rejected("%s", err.Error())
		}
	}

	return Outcome{Accepted: true, Delta: requested.Sub(currentBalance)}
}

func (v *Validator) factor(line int) int {
	if v.Factors == nil {
		return 1
	}
	f := v.Factors.MaxIndemnizationFactor(line)
	if f <= 0 {
		return 1
	}
	return f
}
