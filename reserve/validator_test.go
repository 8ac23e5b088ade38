package reserve_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaimotivus/claims-reserve/reserve"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixedFactors map[int]int

func (f fixedFactors) MaxIndemnizationFactor(line int) int { return f[line] }

func openClaim() *reserve.Claim {
	return &reserve.Claim{
		Ref:        testClaim,
		Status:     reserve.StatusOpen,
		Policy:     "POL-1",
		PolicyLine: 14,
		Currency:   "MXN",
		Occurred:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func rejectedClaim() *reserve.Claim {
	c := openClaim()
	c.Status = reserve.StatusRejected
	return c
}

func testReserve() *reserve.CoverageReserve {
	return &reserve.CoverageReserve{
		Claim:                     testClaim,
		Coverage:                  testCoverage,
		SumInsured:                decimal.NewFromInt(10000),
		CurrentBalance:            decimal.NewFromInt(1000),
		ValidateAgainstSumInsured: true,
	}
}

func amountReq(amount int64) reserve.AdjustmentRequest {
	d := decimal.NewFromInt(amount)
	return reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &d}
}

func validate(t *testing.T, claim *reserve.Claim, res *reserve.CoverageReserve, req reserve.AdjustmentRequest) reserve.Outcome {
	t.Helper()
	v := &reserve.Validator{Factors: fixedFactors{14: 1}}
	return v.Validate(context.Background(), claim, res, req, res.CurrentBalance)
}

// =============================================================================
// RULE CHAIN TESTS
// =============================================================================

func TestValidator_MissingAmount_Rejected(t *testing.T) {
	// GIVEN: A request with no amount at all
	// WHEN: Validating
	// THEN: Rejected; an absent amount is not an explicit zero

	outcome := validate(t, openClaim(), testReserve(),
		reserve.AdjustmentRequest{Coverage: testCoverage})

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "amount required")
}

func TestValidator_NegativeOnRejectedClaim_Rejected(t *testing.T) {
	// GIVEN: A claim in the closed-rejected status
	// WHEN: Requesting a negative balance
	// THEN: Rejected

	outcome := validate(t, rejectedClaim(), testReserve(), amountReq(-100))

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "rejected claim")
}

func TestValidator_PositiveOnRejectedClaim_Accepted(t *testing.T) {
	// GIVEN: A claim in the closed-rejected status
	// WHEN: Requesting a positive balance under the sum insured
	// THEN: Accepted; terminal status only blocks negative amounts

	outcome := validate(t, rejectedClaim(), testReserve(), amountReq(2000))

	assert.True(t, outcome.Accepted)
	assert.True(t, decimal.NewFromInt(1000).Equal(outcome.Delta))
}

func TestValidator_ZeroWithoutConfirmation_Rejected(t *testing.T) {
	// GIVEN: A request zeroing the reserve without the confirmation flag
	// WHEN: Validating
	// THEN: Rejected with a recoverable reason

	outcome := validate(t, openClaim(), testReserve(), amountReq(0))

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "confirmation")
}

func TestValidator_ZeroWithConfirmation_Accepted(t *testing.T) {
	// GIVEN: The same zero request re-submitted with ConfirmZero set
	// WHEN: Validating
	// THEN: Accepted with delta -currentBalance

	req := amountReq(0)
	req.ConfirmZero = true

	outcome := validate(t, openClaim(), testReserve(), req)

	require.True(t, outcome.Accepted, outcome.Reason)
	assert.True(t, decimal.NewFromInt(-1000).Equal(outcome.Delta))
}

func TestValidator_EqualToCurrentBalance_Rejected(t *testing.T) {
	// GIVEN: A request for exactly the current balance
	// WHEN: Validating
	// THEN: Rejected as a no-op

	outcome := validate(t, openClaim(), testReserve(), amountReq(1000))

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "must differ")
}

func TestValidator_ZeroSumInsured_Rejected(t *testing.T) {
	// GIVEN: A coverage whose sum insured was never set
	// WHEN: Validating any amount
	// THEN: Rejected; the cap rule cannot run on a zero sum insured

	res := testReserve()
	res.SumInsured = decimal.Zero

	outcome := validate(t, openClaim(), res, amountReq(500))

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "sum insured is zero")
}

func TestValidator_IndemnificationCap(t *testing.T) {
	// GIVEN: Sum insured 10000 with factor 2 on the policy line
	// WHEN: Requesting 20000 and 20001
	// THEN: 20000 passes the cap, 20001 does not

	v := &reserve.Validator{Factors: fixedFactors{14: 2}}
	ctx := context.Background()
	res := testReserve()

	atCap := decimal.NewFromInt(20000)
	outcome := v.Validate(ctx, openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &atCap}, res.CurrentBalance)
	assert.True(t, outcome.Accepted, outcome.Reason)

	overCap := decimal.NewFromInt(20001)
	outcome = v.Validate(ctx, openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &overCap}, res.CurrentBalance)
	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "indemnification cap")
}

func TestValidator_CapSkippedWhenNotFlagged(t *testing.T) {
	// GIVEN: A coverage without the sum-insured validation flag
	// WHEN: Requesting far above the sum insured
	// THEN: Accepted; the cap rule only binds flagged coverages

	res := testReserve()
	res.ValidateAgainstSumInsured = false

	outcome := validate(t, openClaim(), res, amountReq(999999))

	assert.True(t, outcome.Accepted, outcome.Reason)
}

func TestValidator_AcceptedDeltaIsRequestedMinusCurrent(t *testing.T) {
	// GIVEN: Current balance 1000
	// WHEN: Requesting 600
	// THEN: Accepted with delta -400; the writer records deltas, not balances

	outcome := validate(t, openClaim(), testReserve(), amountReq(600))

	require.True(t, outcome.Accepted, outcome.Reason)
	assert.True(t, decimal.NewFromInt(-400).Equal(outcome.Delta))
}

// =============================================================================
// OVERLAY TESTS
// =============================================================================

func TestValidator_ProratedDayCapOverlay(t *testing.T) {
	// GIVEN: A daily cap of 100 over 10 elapsed days (cap 1000)
	// WHEN: Requesting 900 then 1100
	// THEN: 900 passes, 1100 is rejected with the overlay's message

	now := func() time.Time {
		return time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC)
	}
	v := &reserve.Validator{
		Factors: fixedFactors{14: 1},
		Overlays: []reserve.Overlay{
			&reserve.ProratedDayCap{
				Coverage: testCoverage,
				DailyCap: decimal.NewFromInt(100),
				MaxDays:  365,
				Now:      now,
			},
		},
	}
	ctx := context.Background()
	res := testReserve()

	under := decimal.NewFromInt(900)
	outcome := v.Validate(ctx, openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &under}, res.CurrentBalance)
	assert.True(t, outcome.Accepted, outcome.Reason)

	over := decimal.NewFromInt(1100)
	outcome = v.Validate(ctx, openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &over}, res.CurrentBalance)
	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "prorated cap")
}

func TestValidator_CombinedCeilingOverlay(t *testing.T) {
	// GIVEN: A shared-limit coverage and a ceiling of 500
	// WHEN: Requesting an increase of 600
	// THEN: Rejected before the cascade ever runs

	v := &reserve.Validator{
		Factors: fixedFactors{14: 1},
		Overlays: []reserve.Overlay{
			&reserve.CombinedCeilingCheck{
				Ceiling: func(context.Context, *reserve.Claim) (decimal.Decimal, error) {
					return decimal.NewFromInt(500), nil
				},
			},
		},
	}
	ctx := context.Background()
	res := testReserve()
	res.SharedLimitProduct = true

	requested := decimal.NewFromInt(1600) // delta 600 over balance 1000
	outcome := v.Validate(ctx, openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &requested}, res.CurrentBalance)

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "shared sum insured")
}

func TestValidator_CauseOfDeathGate(t *testing.T) {
	// GIVEN: A life-line claim with no recorded cause of death
	// WHEN: Requesting any adjustment
	// THEN: Rejected until the cause is recorded

	gate := &reserve.CauseOfDeathGate{
		LifeLine: 14,
		HasCause: func(context.Context, *reserve.Claim) (bool, error) {
			return false, nil
		},
	}
	v := &reserve.Validator{Factors: fixedFactors{14: 1}, Overlays: []reserve.Overlay{gate}}

	res := testReserve()
	requested := decimal.NewFromInt(2000)
	outcome := v.Validate(context.Background(), openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &requested}, res.CurrentBalance)

	assert.False(t, outcome.Accepted)
	assert.Contains(t, outcome.Reason, "cause of death")
}

func TestValidator_OverlaySkippedWhenNotApplicable(t *testing.T) {
	// GIVEN: A day-cap overlay bound to a different coverage
	// WHEN: Validating this coverage
	// THEN: The overlay never triggers

	v := &reserve.Validator{
		Factors: fixedFactors{14: 1},
		Overlays: []reserve.Overlay{
			&reserve.ProratedDayCap{
				Coverage: reserve.CoverageKey{AccountingLine: 99, Code: "OTHER"},
				DailyCap: decimal.NewFromInt(1),
			},
		},
	}
	res := testReserve()
	requested := decimal.NewFromInt(5000)
	outcome := v.Validate(context.Background(), openClaim(), res, reserve.AdjustmentRequest{Coverage: testCoverage, NewBalance: &requested}, res.CurrentBalance)

	assert.True(t, outcome.Accepted, outcome.Reason)
}
