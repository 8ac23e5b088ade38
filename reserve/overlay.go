/*
overlay.go - Coverage-specific validation hooks

PURPOSE:
  Step 7 of the rule chain is a set of independently pluggable overlays,
  each triggered by its own coverage condition. An overlay either passes or
  rejects with its own message; it never silently mutates the requested
  amount.

BUILT-IN OVERLAYS:
  ProratedDayCap:      Days-prorated cap for a designated accounting-line/
                       coverage-code pair
  CombinedCeilingCheck: Precheck against the shared limit for shared-limit
                       products (the cascade is the authoritative resolver;
                       this rejects requests no cascade could satisfy)
  CauseOfDeathGate:    Life-line claims need a recorded cause of death before
                       their reserves move
*/
package reserve

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Overlay is a pluggable coverage-specific rule. Applies decides whether the
// overlay triggers for a coverage; Check accepts or rejects the requested
// balance.
type Overlay interface {
	Applies(c *Claim, r *CoverageReserve) bool
	Check(ctx context.Context, c *Claim, r *CoverageReserve, requested decimal.Decimal) error
}

// =============================================================================
// PRORATED DAY CAP
// =============================================================================

// ProratedDayCap caps the requested balance of one designated coverage at a
// per-day amount times the days elapsed since the claim occurred, up to
// MaxDays. The daily amount and day bound come from the domain owner's
// configuration, not from this package.
type ProratedDayCap struct {
	Coverage CoverageKey
	DailyCap decimal.Decimal
	MaxDays  int

	// Now defaults to time.Now when nil.
	Now func() time.Time
}

func (p *ProratedDayCap) Applies(_ *Claim, r *CoverageReserve) bool {
	return r.Coverage == p.Coverage
}

func (p *ProratedDayCap) Check(_ context.Context, c *Claim, _ *CoverageReserve, requested decimal.Decimal) error {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	days := int(now.Sub(c.Occurred).Hours() / 24)
	if days < 0 {
		days = 0
	}
	if p.MaxDays > 0 && days > p.MaxDays {
		days = p.MaxDays
	}
	cap := p.DailyCap.Mul(decimal.NewFromInt(int64(days)))
	if requested.GreaterThan(cap) {
		return &OverlayError{
			Overlay: "prorated day cap",
			Message: "requested balance " + requested.String() + " exceeds prorated cap " + cap.String(),
		}
	}
	return nil
}

// =============================================================================
// COMBINED CEILING PRECHECK
// =============================================================================

// CombinedCeilingCheck rejects a request whose own delta already exceeds the
// entire shared ceiling. The cascade can redistribute capacity between
// coverages, but it can never create more than the ceiling itself.
type CombinedCeilingCheck struct {
	// Ceiling resolves the shared limit for the claim at validation time.
	Ceiling func(ctx context.Context, c *Claim) (decimal.Decimal, error)
}

func (cc *CombinedCeilingCheck) Applies(_ *Claim, r *CoverageReserve) bool {
	return r.SharedLimitProduct
}

func (cc *CombinedCeilingCheck) Check(ctx context.Context, c *Claim, r *CoverageReserve, requested decimal.Decimal) error {
	ceiling, err := cc.Ceiling(ctx, c)
	if err != nil {
		return err
	}
	delta := requested.Sub(r.CurrentBalance)
	if delta.GreaterThan(ceiling) {
		return &OverlayError{
			Overlay: "combined ceiling",
			Message: "requested increase " + delta.String() + " exceeds shared sum insured " + ceiling.String(),
		}
	}
	return nil
}

// =============================================================================
// CAUSE OF DEATH GATE
// =============================================================================

// CauseOfDeathGate blocks reserve movements on life-line claims until a
// cause of death has been recorded with the claim.
type CauseOfDeathGate struct {
	LifeLine int

	// HasCause reports whether the claim has a recorded cause of death.
	HasCause func(ctx context.Context, c *Claim) (bool, error)
}

func (g *CauseOfDeathGate) Applies(c *Claim, _ *CoverageReserve) bool {
	return c.Ref.Line == g.LifeLine
}

func (g *CauseOfDeathGate) Check(ctx context.Context, c *Claim, _ *CoverageReserve, _ decimal.Decimal) error {
	ok, err := g.HasCause(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return &OverlayError{
			Overlay: "cause of death",
			Message: "claim has no recorded cause of death",
		}
	}
	return nil
}
