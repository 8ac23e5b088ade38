// Package claims implements the claim-level adjustment service on top of the
// reserve engine. It owns the external collaborator contracts: claim and
// policy lookup, code tables, currency resolution and actor identity.
package claims

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jaimotivus/claims-reserve/reserve"
)

// =============================================================================
// DIRECTORY - Claim, coverage and policy lookup
// =============================================================================

// Directory resolves claims and their master data. The engine treats it as an
// external system of record.
type Directory interface {
	// Claim returns the claim, or reserve.ErrClaimNotFound.
	Claim(ctx context.Context, ref reserve.ClaimRef) (*reserve.Claim, error)

	// Coverages returns the coverage reserve rows attached to the claim.
	Coverages(ctx context.Context, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error)

	// PolicySumInsured returns the sum insured of one coverage under the
	// policy as of a date, or reserve.ErrPolicyNotFound.
	PolicySumInsured(ctx context.Context, policy string, cov reserve.CoverageKey, asOf time.Time) (decimal.Decimal, error)
}

// =============================================================================
// CODE TABLES
// =============================================================================

// CodeTables bundles the code-table lookups the engine consumes. It extends
// the writer's ComponentSource with the descriptive lookups of the outer
// surfaces.
type CodeTables interface {
	reserve.ComponentSource

	MaxIndemnizationFactor(line int) int
	MovementTypeDescription(code reserve.MovementType) string
	ClaimType(policyLine, accountingLine int, coverage string) string
}

// =============================================================================
// STATIC IMPLEMENTATIONS
// =============================================================================

// StaticTables is a fixture-backed CodeTables for tests and the dev server.
type StaticTables struct {
	Factors      map[int]int // policy line -> max indemnification factor
	Descriptions map[reserve.MovementType]string
	ClaimTypes   map[int]string // policy line -> claim type code
	Components   []reserve.AccountingComponent
}

// DefaultTables returns tables with the standard reserve/expense component
// pair and factor 1 everywhere.
func DefaultTables() *StaticTables {
	return &StaticTables{
		Descriptions: map[reserve.MovementType]string{
			reserve.MovementAdjustment:   "reserve adjustment",
			reserve.MovementLiquidation:  "liquidation",
			reserve.MovementRejection:    "rejection",
			reserve.MovementReversal:     "reversal",
			reserve.MovementCancellation: "cancellation",
			reserve.MovementCorrection:   "internal correction",
		},
		Components: []reserve.AccountingComponent{
			{Account: "claims-reserve", Polarity: +1},
			{Account: "claims-expense", Polarity: -1},
		},
	}
}

func (t *StaticTables) MaxIndemnizationFactor(line int) int {
	if f, ok := t.Factors[line]; ok {
		return f
	}
	return 1
}

func (t *StaticTables) MovementTypeDescription(code reserve.MovementType) string {
	if d, ok := t.Descriptions[code]; ok {
		return d
	}
	return "unknown movement type"
}

func (t *StaticTables) ClaimType(policyLine, _ int, _ string) string {
	if c, ok := t.ClaimTypes[policyLine]; ok {
		return c
	}
	return "standard"
}

func (t *StaticTables) AccountingComponents(_, _ int, _ string, _ reserve.MovementType, _ string) ([]reserve.AccountingComponent, error) {
	return t.Components, nil
}

// MemoryDirectory is a fixture-backed Directory. Coverage rows are served
// from the same store the engine writes to; claims and policy sums live in
// maps.
type MemoryDirectory struct {
	Store      reserve.Store
	Claims     map[reserve.ClaimRef]*reserve.Claim
	PolicySums map[string]map[reserve.CoverageKey]decimal.Decimal
}

func NewMemoryDirectory(store reserve.Store) *MemoryDirectory {
	return &MemoryDirectory{
		Store:      store,
		Claims:     make(map[reserve.ClaimRef]*reserve.Claim),
		PolicySums: make(map[string]map[reserve.CoverageKey]decimal.Decimal),
	}
}

func (d *MemoryDirectory) AddClaim(c *reserve.Claim) {
	d.Claims[c.Ref] = c
}

func (d *MemoryDirectory) SetPolicySum(policy string, cov reserve.CoverageKey, sum decimal.Decimal) {
	if d.PolicySums[policy] == nil {
		d.PolicySums[policy] = make(map[reserve.CoverageKey]decimal.Decimal)
	}
	d.PolicySums[policy][cov] = sum
}

func (d *MemoryDirectory) Claim(_ context.Context, ref reserve.ClaimRef) (*reserve.Claim, error) {
	c, ok := d.Claims[ref]
	if !ok {
		return nil, reserve.ErrClaimNotFound
	}
	return c, nil
}

func (d *MemoryDirectory) Coverages(ctx context.Context, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error) {
	return d.Store.Reserves(ctx, ref)
}

func (d *MemoryDirectory) PolicySumInsured(_ context.Context, policy string, cov reserve.CoverageKey, _ time.Time) (decimal.Decimal, error) {
	sums, ok := d.PolicySums[policy]
	if !ok {
		return decimal.Zero, reserve.ErrPolicyNotFound
	}
	sum, ok := sums[cov]
	if !ok {
		return decimal.Zero, reserve.ErrPolicyNotFound
	}
	return sum, nil
}

// =============================================================================
// CURRENCY AND IDENTITY
// =============================================================================

// PolicyCurrency resolves the movement currency from the claim's policy,
// falling back to a default when the claim carries none.
type PolicyCurrency struct {
	Default string
}

func (p *PolicyCurrency) CurrencyForClaim(_ context.Context, c *reserve.Claim) (string, error) {
	if c.Currency != "" {
		return c.Currency, nil
	}
	if p.Default != "" {
		return p.Default, nil
	}
	return "USD", nil
}

type actorKey struct{}

// WithActor stamps the current actor on the context. Handlers set it from
// the session; movement records read it back through ContextIdentity.
func WithActor(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ContextIdentity reads the actor from the context, defaulting to "system"
// for unattended callers.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) string {
	if user, ok := ctx.Value(actorKey{}).(string); ok && user != "" {
		return user
	}
	return "system"
}
