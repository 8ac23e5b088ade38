/*
writer.go - Atomic persistence of an approved adjustment

PURPOSE:
  Makes one approved coverage adjustment durable: a claim-scoped movement
  row, its coverage-scoped counterpart, the double-entry accounting rows, and
  the updated reserve position. All rows of one commit share one movement
  number; all accounting rows share one entry number.

ATOMICITY:
  Commit is meant to run inside the caller's TxStore.WithTx boundary. A
  failure at any step returns a PersistenceError and the enclosing batch
  transaction rolls back, so movement rows are never visible without their
  accounting entries.

SEE ALSO:
  - store.go: The append-only ledger contract
  - claims/service.go: Wraps a whole batch of commits in one transaction
*/
package reserve

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLLABORATOR SOURCES
// =============================================================================

// ComponentSource resolves the chart-of-accounts mapping for a movement:
// which accounts participate and with which polarity.
type ComponentSource interface {
	AccountingComponents(policyLine, accountingLine int, coverage string, mt MovementType, claimType string) ([]AccountingComponent, error)
}

// CurrencySource resolves the currency movements are recorded in.
type CurrencySource interface {
	CurrencyForClaim(ctx context.Context, c *Claim) (string, error)
}

// IdentitySource names the actor stamped on movement records.
type IdentitySource interface {
	CurrentUser(ctx context.Context) string
}

// =============================================================================
// WRITER
// =============================================================================

// Writer persists approved adjustments. It holds no store of its own: the
// caller passes the transactional Store view so a batch of commits shares
// one unit of work.
type Writer struct {
	Components ComponentSource
	Currency   CurrencySource
	Identity   IdentitySource

	// Now defaults to time.Now when nil.
	Now func() time.Time
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Commit appends the movement, coverage movement and accounting rows for one
// approved delta and updates the reserve row. It returns the movement number
// assigned to the commit. A zero delta is a no-op.
func (w *Writer) Commit(ctx context.Context, s Store, claim *Claim, res *CoverageReserve, delta decimal.Decimal) (int64, error) {
	if delta.IsZero() {
		return 0, nil
	}

	fail := func(step string, err error) (int64, error) {
		return 0, &PersistenceError{Claim: claim.Ref, Coverage: res.Coverage, Step: step, Err: err}
	}

	// 1. Next movement number for the claim.
	movementNumber, err := s.NextMovementNumber(ctx, claim.Ref)
	if err != nil {
		return fail("movement-number", err)
	}

	// 2. Movement type follows the claim status.
	movementType := MovementTypeFor(claim.Status)

	currency, err := w.Currency.CurrencyForClaim(ctx, claim)
	if err != nil {
		return fail("currency", err)
	}
	now := w.now()
	actor := w.Identity.CurrentUser(ctx)

	// 3. The claim-scoped row and its coverage-scoped counterpart.
	if err := s.AppendMovement(ctx, MovementRecord{
		Claim:          claim.Ref,
		MovementNumber: movementNumber,
		Type:           movementType,
		Amount:         delta,
		Currency:       currency,
		Date:           now,
		CreatedBy:      actor,
	}); err != nil {
		return fail("movement", err)
	}

	if err := s.AppendCoverageMovement(ctx, CoverageMovementRecord{
		Claim:          claim.Ref,
		Coverage:       res.Coverage,
		MovementNumber: movementNumber,
		Type:           movementType,
		Amount:         delta,
		Currency:       currency,
		Date:           now,
		CreatedBy:      actor,
	}); err != nil {
		return fail("coverage-movement", err)
	}

	// 4. Double-entry rows: one per component, all sharing one entry number.
	components, err := w.Components.AccountingComponents(
		claim.PolicyLine, res.Coverage.AccountingLine, res.Coverage.Code, movementType, claim.ClaimType)
	if err != nil {
		return fail("components", err)
	}

	entryNumber, err := s.NextEntryNumber(ctx, claim.Ref)
	if err != nil {
		return fail("entry-number", err)
	}

	entries := make([]AccountingEntry, 0, len(components))
	for _, comp := range components {
		entries = append(entries, AccountingEntry{
			Claim:          claim.Ref,
			Coverage:       res.Coverage,
			EntryNumber:    entryNumber,
			MovementNumber: movementNumber,
			Account:        comp.Account,
			Side:           sideFor(comp.Polarity, delta),
			Amount:         delta.Abs(),
			Currency:       currency,
			Date:           now,
		})
	}
	if err := s.AppendEntries(ctx, entries); err != nil {
		return fail("entries", err)
	}

	// 5. Reserve position: cumulative adjustment, refreshed balance cache
	// and effective date.
	res.AdjustedAmount = res.AdjustedAmount.Add(delta)
	res.CurrentBalance = res.CurrentBalance.Add(delta)
	res.EffectiveDate = now
	if err := s.UpdateReserve(ctx, *res); err != nil {
		return fail("reserve", err)
	}

	return movementNumber, nil
}

// sideFor resolves the double-entry side of a component: its configured
// polarity relative to the sign of the delta.
func sideFor(polarity int, delta decimal.Decimal) EntrySide {
	debit := polarity > 0
	if delta.IsNegative() {
		debit = !debit
	}
	if debit {
		return SideDebit
	}
	return SideCredit
}
