/*
cascade.go - Priority-ordered reallocation under a shared ceiling

PURPOSE:
  Resolves a batch of accepted adjustment deltas for coverages that share a
  combined limit. When combined demand exceeds the ceiling, capacity is
  redistributed across priority ranks: lower-rank (more important) requests
  are satisfied first, and coverages without a request of their own yield
  balance to cover the shortfall.

ALGORITHM (single pass, ascending rank):
  - A coverage without a resolved delta stays PENDING.
  - Negative or zero deltas never consume shared capacity.
  - A positive delta within the remaining ceiling is approved outright.
  - A delta exceeding the remaining ceiling triggers two scans over the
    unclaimed siblings:
      harvest: earlier ranks, most important first
      release: later ranks, least important first, bounded to ranks 2..5
    Each scanned coverage is reduced toward zero, marked REDUCED, and its
    own delta recomputed as (new balance) - (previous balance). The
    requester's delta is capped at remaining ceiling + whatever was freed;
    if capped, it is still APPROVED but carries a capacity warning.

INVARIANTS:
  - Sum of applied deltas never exceeds the ceiling.
  - A REDUCED coverage never ends below zero.
  - No backtracking: APPROVED and REDUCED are final within the batch.

  Worst case O(n^2) in the number of priority-bearing coverages, which the
  rank bound keeps small.
*/
package reserve

import (
	"sort"

	"github.com/shopspring/decimal"
)

// maxReleaseRank bounds the release scan. Ranks above it never yield
// balance to a sibling.
// TODO: confirm with the domain owner whether 5 is a real product limit.
const maxReleaseRank = 5

// =============================================================================
// CASCADE ENTRY - Working state of one coverage within the pass
// =============================================================================

// CascadeEntry carries one priority-bearing coverage through the pass.
// Balance and Delta are inputs; State, Applied, NewBalance and Message are
// populated by Cascade.
type CascadeEntry struct {
	Coverage CoverageKey
	Priority int

	// Balance is the coverage's current balance at batch start.
	Balance decimal.Decimal

	// Delta is the validated adjustment delta; nil when the coverage has no
	// request in this batch.
	Delta *decimal.Decimal

	State      ValidationState
	Applied    decimal.Decimal
	NewBalance decimal.Decimal
	Message    string
}

// =============================================================================
// SHARED CEILING
// =============================================================================

// SharedCeiling derives the combined limit available to a claim's
// shared-limit coverages: the policy's total sum insured less payments
// already made and the pending exposure they do not cover.
func SharedCeiling(totalSumInsured, totalPayments, pendingReserve decimal.Decimal) decimal.Decimal {
	consumed := totalPayments.Add(pendingReserve.Sub(totalPayments).Abs())
	return totalSumInsured.Sub(consumed)
}

// =============================================================================
// CASCADE
// =============================================================================

// Cascade resolves the batch in place. Entries are processed in ascending
// priority order regardless of slice order.
func Cascade(entries []*CascadeEntry, ceiling decimal.Decimal) {
	ordered := make([]*CascadeEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, e := range ordered {
		if e.State == "" {
			e.State = StatePending
			e.NewBalance = e.Balance
		}
	}

	remaining := ceiling

	for i, c := range ordered {
		if c.Delta == nil || c.State == StateReduced {
			// No request, or the coverage already yielded its balance to an
			// earlier sibling. Either way its outcome is settled.
			continue
		}

		c.State = StateFlagged
		delta := *c.Delta

		// Negative and zero deltas release or hold capacity, never consume it.
		if !delta.IsPositive() {
			c.approve(delta)
			continue
		}

		if delta.LessThanOrEqual(remaining) {
			c.approve(delta)
			remaining = remaining.Sub(delta)
			continue
		}

		shortfall := delta.Sub(remaining)
		freed := decimal.Zero

		// Harvest phase: earlier ranks hold balance nobody claimed this
		// batch; take from the most important first.
		for j := 0; j < i && shortfall.IsPositive(); j++ {
			freed, shortfall = yield(ordered[j], freed, shortfall)
		}

		// Release phase: later ranks in reverse priority order, bounded to
		// ranks 2..maxReleaseRank.
		for j := len(ordered) - 1; j > i && shortfall.IsPositive(); j-- {
			r := ordered[j]
			if r.Priority < 2 || r.Priority > maxReleaseRank || r.Priority == c.Priority {
				continue
			}
			freed, shortfall = yield(r, freed, shortfall)
		}

		applied := decimal.Min(delta, remaining.Add(freed))
		remaining = decimal.Zero

		c.approve(applied)
		if applied.LessThan(delta) {
			c.Message = "adjustment exceeded shared sum insured; requested " +
				delta.String() + ", applied " + applied.String()
		}
	}
}

func (c *CascadeEntry) approve(applied decimal.Decimal) {
	c.State = StateApproved
	c.Applied = applied
	c.NewBalance = c.Balance.Add(applied)
}

// yield reduces an unclaimed coverage's balance toward zero to cover a
// shortfall. The reduction becomes the coverage's own (negative) delta and
// marks it REDUCED; resolved coverages and empty balances are skipped.
func yield(e *CascadeEntry, freed, shortfall decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if e.Delta != nil || e.State != StatePending || !e.Balance.IsPositive() {
		return freed, shortfall
	}

	take := decimal.Min(e.Balance, shortfall)
	e.State = StateReduced
	e.NewBalance = e.Balance.Sub(take)
	e.Applied = e.NewBalance.Sub(e.Balance)
	e.Message = "balance reduced by " + take.String() + " to free shared capacity"

	return freed.Add(take), shortfall.Sub(take)
}
