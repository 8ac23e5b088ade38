package claims_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaimotivus/claims-reserve/claims"
	"github.com/jaimotivus/claims-reserve/reserve"
	"github.com/jaimotivus/claims-reserve/reserve/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testRef  = reserve.ClaimRef{Branch: 9, Line: 14, Number: 42}
	covBasic = reserve.CoverageKey{AccountingLine: 14, Code: "BASIC"}
	covFun   = reserve.CoverageKey{AccountingLine: 14, Code: "FUNERAL"}
)

type fixture struct {
	store     *store.TxMemory
	directory *claims.MemoryDirectory
	service   *claims.Service
}

// newTestService seeds one open claim with two shared-limit coverages:
// BASIC (rank 1, balance 400, policy sum 1000) and FUNERAL (rank 2,
// balance 500, policy sum 500). With no payments the shared ceiling is
// 1500 - 900 = 600.
func newTestService(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewTxMemory()
	directory := claims.NewMemoryDirectory(mem)
	tables := claims.DefaultTables()
	tables.Factors = map[int]int{14: 2}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := claims.NewService(mem, directory, tables, claims.Options{Log: log})
	svc.Aggregator.Now = func() time.Time {
		return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	}

	directory.AddClaim(&reserve.Claim{
		Ref:        testRef,
		Status:     reserve.StatusOpen,
		Policy:     "POL-1",
		PolicyLine: 14,
		Currency:   "MXN",
		Occurred:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	})

	rank := func(p int) *int { return &p }
	seed := []struct {
		cov      reserve.CoverageKey
		balance  int64
		sum      int64
		priority *int
	}{
		{covBasic, 400, 1000, rank(1)},
		{covFun, 500, 500, rank(2)},
	}

	jan := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	for i, s := range seed {
		mem.SeedReserve(reserve.CoverageReserve{
			Claim:                     testRef,
			Coverage:                  s.cov,
			Policy:                    "POL-1",
			SumInsured:                decimal.NewFromInt(s.sum),
			InitialReserve:            decimal.NewFromInt(s.balance),
			CurrentBalance:            decimal.NewFromInt(s.balance),
			Priority:                  s.priority,
			ValidateAgainstSumInsured: true,
			SharedLimitProduct:        true,
			EffectiveDate:             jan,
		})
		// The opening reserve is itself a ledger movement; balances are
		// derived, never seeded directly.
		mem.SeedCoverageMovement(reserve.CoverageMovementRecord{
			Claim:          testRef,
			Coverage:       s.cov,
			MovementNumber: int64(i + 1),
			Type:           reserve.MovementAdjustment,
			Amount:         decimal.NewFromInt(s.balance),
			Currency:       "MXN",
			Date:           jan,
			CreatedBy:      "system",
		})
		directory.SetPolicySum("POL-1", s.cov, decimal.NewFromInt(s.sum))
	}

	return &fixture{store: mem, directory: directory, service: svc}
}

func request(cov reserve.CoverageKey, amount int64) reserve.AdjustmentRequest {
	d := decimal.NewFromInt(amount)
	return reserve.AdjustmentRequest{Coverage: cov, NewBalance: &d}
}

func resultFor(t *testing.T, batch *claims.BatchResult, cov reserve.CoverageKey) reserve.AdjustmentResult {
	t.Helper()
	for _, r := range batch.Results {
		if r.Coverage == cov {
			return r
		}
	}
	t.Fatalf("no result for coverage %s", cov)
	return reserve.AdjustmentResult{}
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestService_Adjust_WithinCeiling(t *testing.T) {
	// GIVEN: BASIC at 400 with shared ceiling 600
	// WHEN: Requesting a new balance of 900 (delta +500)
	// THEN: Approved in full; FUNERAL stays untouched

	f := newTestService(t)
	ctx := context.Background()

	batch, err := f.service.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		request(covBasic, 900),
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)

	res := resultFor(t, batch, covBasic)
	assert.True(t, res.Accepted)
	assert.Equal(t, reserve.StateApproved, res.State)
	assert.True(t, decimal.NewFromInt(500).Equal(res.Delta))
	assert.True(t, decimal.NewFromInt(900).Equal(res.NewBalance))
	assert.Equal(t, int64(3), res.MovementID, "two seeded movements precede the batch")

	stored, err := f.store.Reserve(ctx, testRef, covBasic)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(stored.AdjustedAmount))

	untouched, err := f.store.Reserve(ctx, testRef, covFun)
	require.NoError(t, err)
	assert.True(t, untouched.AdjustedAmount.IsZero())
}

func TestService_Adjust_CascadeReducesSibling(t *testing.T) {
	// GIVEN: Ceiling 600 and a BASIC request of delta +700
	// WHEN: Adjusting
	// THEN: FUNERAL yields 100 (500 -> 400, REDUCED) and BASIC is approved
	//       in full; both commits land in the same batch

	f := newTestService(t)
	ctx := context.Background()

	batch, err := f.service.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		request(covBasic, 1100), // delta +700 over balance 400
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	basic := resultFor(t, batch, covBasic)
	assert.Equal(t, reserve.StateApproved, basic.State)
	assert.True(t, decimal.NewFromInt(700).Equal(basic.Delta))
	assert.True(t, decimal.NewFromInt(1100).Equal(basic.NewBalance))

	funeral := resultFor(t, batch, covFun)
	assert.Equal(t, reserve.StateReduced, funeral.State)
	assert.True(t, decimal.NewFromInt(-100).Equal(funeral.Delta))
	assert.True(t, decimal.NewFromInt(400).Equal(funeral.NewBalance))
	assert.Contains(t, funeral.Message, "free shared capacity")

	// The reduction is a real ledger movement, not a silent update.
	movements, err := f.store.CoverageMovements(ctx, testRef, covFun)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.True(t, decimal.NewFromInt(-100).Equal(movements[1].Amount))
}

func TestService_Adjust_CappedWhenNothingLeftToYield(t *testing.T) {
	// GIVEN: A request whose delta exceeds the ceiling plus every
	//        yieldable balance
	// WHEN: Adjusting
	// THEN: Approved at the capped amount with a capacity warning

	f := newTestService(t)
	ctx := context.Background()

	batch, err := f.service.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		request(covBasic, 1600), // delta +1200 against ceiling 600 + 500 yieldable
	})
	require.NoError(t, err)

	basic := resultFor(t, batch, covBasic)
	assert.Equal(t, reserve.StateApproved, basic.State)
	assert.True(t, decimal.NewFromInt(1100).Equal(basic.Delta),
		"expected capped delta 1100, got %s", basic.Delta)
	assert.Contains(t, basic.Message, "exceeded shared sum insured")

	funeral := resultFor(t, batch, covFun)
	assert.Equal(t, reserve.StateReduced, funeral.State)
	assert.True(t, funeral.NewBalance.IsZero(), "FUNERAL fully consumed, got %s", funeral.NewBalance)
}

func TestService_Adjust_RejectionDoesNotAbortSiblings(t *testing.T) {
	// GIVEN: A batch with one invalid request (missing amount) and one valid
	// WHEN: Adjusting
	// THEN: The invalid coverage is rejected with a reason, the valid one commits

	f := newTestService(t)
	ctx := context.Background()

	batch, err := f.service.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		{Coverage: covFun}, // no amount
		request(covBasic, 900),
	})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	funeral := resultFor(t, batch, covFun)
	assert.False(t, funeral.Accepted)
	assert.Contains(t, funeral.Message, "amount required")
	assert.True(t, decimal.NewFromInt(500).Equal(funeral.NewBalance), "rejection reports the unchanged balance")

	basic := resultFor(t, batch, covBasic)
	assert.True(t, basic.Accepted)
}

func TestService_Adjust_UnknownCoverageAbortsBatch(t *testing.T) {
	// GIVEN: A batch naming a coverage that is not on the claim
	// WHEN: Adjusting
	// THEN: The whole batch fails before any validation runs

	f := newTestService(t)

	_, err := f.service.Adjust(context.Background(), testRef, []reserve.AdjustmentRequest{
		request(covBasic, 900),
		request(reserve.CoverageKey{AccountingLine: 99, Code: "GHOST"}, 100),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, reserve.ErrCoverageNotFound)

	stored, _ := f.store.Reserve(context.Background(), testRef, covBasic)
	assert.True(t, stored.AdjustedAmount.IsZero(), "nothing may commit on an aborted batch")
}

func TestService_Adjust_UnknownClaim(t *testing.T) {
	// GIVEN: A claim reference the directory does not know
	// WHEN: Adjusting
	// THEN: ErrClaimNotFound

	f := newTestService(t)

	_, err := f.service.Adjust(context.Background(), reserve.ClaimRef{Branch: 1, Line: 1, Number: 1}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, reserve.ErrClaimNotFound)
	assert.True(t, reserve.IsNotFound(err))
}

func TestService_Adjust_BalancesAreReRead(t *testing.T) {
	// GIVEN: A reserve row whose cached balance is stale (ledger says 400)
	// WHEN: Requesting the ledger-derived balance as the new amount
	// THEN: Rejected as a no-op; the cached column is never trusted

	f := newTestService(t)
	ctx := context.Background()

	// Poison the cached column.
	stored, err := f.store.Reserve(ctx, testRef, covBasic)
	require.NoError(t, err)
	stored.CurrentBalance = decimal.NewFromInt(9999)
	require.NoError(t, f.store.UpdateReserve(ctx, *stored))

	batch, err := f.service.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		request(covBasic, 400),
	})
	require.NoError(t, err)

	res := resultFor(t, batch, covBasic)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Message, "must differ")
}

func TestService_Adjust_ActorStampedOnMovements(t *testing.T) {
	// GIVEN: A context carrying the adjusting user
	// WHEN: Committing a batch
	// THEN: The movement rows carry that user

	f := newTestService(t)
	ctx := claims.WithActor(context.Background(), "maria.g")

	_, err := f.service.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		request(covBasic, 900),
	})
	require.NoError(t, err)

	movements, err := f.store.Movements(ctx, testRef)
	require.NoError(t, err)
	require.NotEmpty(t, movements)
	assert.Equal(t, "maria.g", movements[len(movements)-1].CreatedBy)
}

// =============================================================================
// ATOMICITY
// =============================================================================

// entryFailStore fails on the accounting-entry step, after the movement rows
// have already been appended inside the transaction.
type entryFailStore struct {
	reserve.Store
}

func (s entryFailStore) AppendEntries(context.Context, []reserve.AccountingEntry) error {
	return errors.New("disk full")
}

// entryFailTx injects the failing view inside the transaction boundary.
type entryFailTx struct {
	*store.TxMemory
}

func (tx entryFailTx) WithTx(ctx context.Context, fn func(reserve.Store) error) error {
	return tx.TxMemory.WithTx(ctx, func(s reserve.Store) error {
		return fn(entryFailStore{Store: s})
	})
}

func TestService_Adjust_PersistenceFailureRollsBackBatch(t *testing.T) {
	// GIVEN: A store that fails mid-commit, after the movement rows
	// WHEN: Adjusting
	// THEN: The error surfaces as a persistence error and no partial rows
	//       survive: movement count and reserve position are unchanged

	f := newTestService(t)
	ctx := context.Background()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	tables := claims.DefaultTables()
	tables.Factors = map[int]int{14: 2}

	svc := claims.NewService(entryFailTx{TxMemory: f.store}, f.directory, tables, claims.Options{Log: log})
	svc.Aggregator.Now = f.service.Aggregator.Now

	_, err := svc.Adjust(ctx, testRef, []reserve.AdjustmentRequest{
		request(covBasic, 900),
	})

	require.Error(t, err)
	assert.True(t, reserve.IsPersistence(err))

	movements, _ := f.store.Movements(ctx, testRef)
	assert.Empty(t, movements, "rolled-back movement rows must not survive")

	stored, _ := f.store.Reserve(ctx, testRef, covBasic)
	assert.True(t, stored.AdjustedAmount.IsZero())
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

func TestService_CoverageBalances_RecomputesFromLedgers(t *testing.T) {
	// GIVEN: Seeded opening movements of 400 and 500
	// WHEN: Reading coverage balances
	// THEN: Balances come from the ledgers, not the cached column

	f := newTestService(t)

	coverages, err := f.service.CoverageBalances(context.Background(), testRef)
	require.NoError(t, err)
	require.Len(t, coverages, 2)

	byKey := map[reserve.CoverageKey]decimal.Decimal{}
	for _, c := range coverages {
		byKey[c.Coverage] = c.CurrentBalance
	}
	assert.True(t, decimal.NewFromInt(400).Equal(byKey[covBasic]))
	assert.True(t, decimal.NewFromInt(500).Equal(byKey[covFun]))
}

func TestService_Movements_UnknownClaim(t *testing.T) {
	f := newTestService(t)

	_, err := f.service.Movements(context.Background(), reserve.ClaimRef{Branch: 1, Line: 1, Number: 1})
	assert.ErrorIs(t, err, reserve.ErrClaimNotFound)
}
