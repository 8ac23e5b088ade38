package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaimotivus/claims-reserve/reserve"
	"github.com/jaimotivus/claims-reserve/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testClaim    = reserve.ClaimRef{Branch: 9, Line: 14, Number: 42}
	testCoverage = reserve.CoverageKey{AccountingLine: 14, Code: "BASIC"}
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testReserveRow() reserve.CoverageReserve {
	priority := 1
	return reserve.CoverageReserve{
		Claim:                     testClaim,
		Coverage:                  testCoverage,
		Policy:                    "POL-1",
		SumInsured:                decimal.RequireFromString("10000.50"),
		InitialReserve:            decimal.NewFromInt(4000),
		AdjustedAmount:            decimal.Zero,
		LiquidationAmount:         decimal.Zero,
		RejectionAmount:           decimal.Zero,
		CurrentBalance:            decimal.NewFromInt(4000),
		Priority:                  &priority,
		ValidateAgainstSumInsured: true,
		SharedLimitProduct:        true,
		EffectiveDate:             time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// RESERVE ROWS
// =============================================================================

func TestSQLiteStore_ReserveRoundTrip(t *testing.T) {
	// GIVEN: A coverage reserve with a fractional sum insured and a priority
	// WHEN: Inserting and reading it back
	// THEN: Every field survives, including the decimal fraction

	store := newTestStore(t)
	ctx := context.Background()

	original := testReserveRow()
	require.NoError(t, store.InsertReserve(ctx, original))

	loaded, err := store.Reserve(ctx, testClaim, testCoverage)
	require.NoError(t, err)

	assert.Equal(t, original.Policy, loaded.Policy)
	assert.True(t, original.SumInsured.Equal(loaded.SumInsured), "expected %s, got %s", original.SumInsured, loaded.SumInsured)
	assert.True(t, original.CurrentBalance.Equal(loaded.CurrentBalance))
	require.NotNil(t, loaded.Priority)
	assert.Equal(t, 1, *loaded.Priority)
	assert.True(t, loaded.ValidateAgainstSumInsured)
	assert.True(t, loaded.SharedLimitProduct)
	assert.True(t, original.EffectiveDate.Equal(loaded.EffectiveDate))
}

func TestSQLiteStore_NilPrioritySurvives(t *testing.T) {
	// GIVEN: A coverage without a priority rank
	// WHEN: Round-tripping
	// THEN: Priority stays nil, not zero

	store := newTestStore(t)
	ctx := context.Background()

	row := testReserveRow()
	row.Priority = nil
	require.NoError(t, store.InsertReserve(ctx, row))

	loaded, err := store.Reserve(ctx, testClaim, testCoverage)
	require.NoError(t, err)
	assert.Nil(t, loaded.Priority)
}

func TestSQLiteStore_UpdateReserve(t *testing.T) {
	// GIVEN: A stored reserve
	// WHEN: Updating its adjusted amount and balance
	// THEN: The mutable columns change and the rest stay put

	store := newTestStore(t)
	ctx := context.Background()

	row := testReserveRow()
	require.NoError(t, store.InsertReserve(ctx, row))

	row.AdjustedAmount = decimal.NewFromInt(500)
	row.CurrentBalance = decimal.NewFromInt(4500)
	row.EffectiveDate = time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateReserve(ctx, row))

	loaded, err := store.Reserve(ctx, testClaim, testCoverage)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(loaded.AdjustedAmount))
	assert.True(t, decimal.NewFromInt(4500).Equal(loaded.CurrentBalance))
	assert.True(t, decimal.RequireFromString("10000.50").Equal(loaded.SumInsured))
}

func TestSQLiteStore_UpdateMissingReserve(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Updating a reserve that was never inserted
	// THEN: ErrCoverageNotFound

	store := newTestStore(t)

	err := store.UpdateReserve(context.Background(), testReserveRow())
	assert.ErrorIs(t, err, reserve.ErrCoverageNotFound)
}

func TestSQLiteStore_MissingReserve(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Reserve(context.Background(), testClaim, testCoverage)
	assert.ErrorIs(t, err, reserve.ErrCoverageNotFound)
}

// =============================================================================
// LEDGER ROWS
// =============================================================================

func TestSQLiteStore_MovementNumbering_SpansBothLedgers(t *testing.T) {
	// GIVEN: A movement in the claim ledger and a higher number in the
	//        coverage ledger
	// WHEN: Allocating the next movement number
	// THEN: It is one past the maximum across both tables

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendMovement(ctx, reserve.MovementRecord{
		Claim:          testClaim,
		MovementNumber: 1,
		Type:           reserve.MovementAdjustment,
		Amount:         decimal.NewFromInt(100),
		Currency:       "MXN",
		Date:           now,
		CreatedBy:      "system",
	}))
	require.NoError(t, store.AppendCoverageMovement(ctx, reserve.CoverageMovementRecord{
		Claim:          testClaim,
		Coverage:       testCoverage,
		MovementNumber: 7,
		Type:           reserve.MovementAdjustment,
		Amount:         decimal.NewFromInt(100),
		Currency:       "MXN",
		Date:           now,
		CreatedBy:      "system",
	}))

	next, err := store.NextMovementNumber(ctx, testClaim)
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)
}

func TestSQLiteStore_MovementNumbering_PerClaim(t *testing.T) {
	// GIVEN: Movements on one claim
	// WHEN: Allocating a number for a different claim
	// THEN: Numbering starts at 1; claims never share sequences

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMovement(ctx, reserve.MovementRecord{
		Claim:          testClaim,
		MovementNumber: 5,
		Type:           reserve.MovementAdjustment,
		Amount:         decimal.NewFromInt(100),
		Currency:       "MXN",
		Date:           time.Now(),
		CreatedBy:      "system",
	}))

	other := reserve.ClaimRef{Branch: 1, Line: 2, Number: 3}
	next, err := store.NextMovementNumber(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestSQLiteStore_PaymentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payment := reserve.PaymentRecord{
		Claim:            testClaim,
		Coverage:         testCoverage,
		DisbursementType: 210,
		PaymentType:      1,
		Amount:           decimal.RequireFromString("-312.75"),
		Date:             time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertPayment(ctx, payment))

	loaded, err := store.Payments(ctx, testClaim, testCoverage)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 210, loaded[0].DisbursementType)
	assert.Equal(t, 1, loaded[0].PaymentType)
	assert.True(t, payment.Amount.Equal(loaded[0].Amount))
}

func TestSQLiteStore_EntriesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	entries := []reserve.AccountingEntry{
		{
			Claim:          testClaim,
			Coverage:       testCoverage,
			EntryNumber:    1,
			MovementNumber: 1,
			Account:        "claims-reserve",
			Side:           reserve.SideDebit,
			Amount:         decimal.NewFromInt(500),
			Currency:       "MXN",
			Date:           now,
		},
		{
			Claim:          testClaim,
			Coverage:       testCoverage,
			EntryNumber:    1,
			MovementNumber: 1,
			Account:        "claims-expense",
			Side:           reserve.SideCredit,
			Amount:         decimal.NewFromInt(500),
			Currency:       "MXN",
			Date:           now,
		},
	}
	require.NoError(t, store.AppendEntries(ctx, entries))

	loaded, err := store.Entries(ctx, testClaim)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, reserve.SideDebit, loaded[0].Side)
	assert.Equal(t, reserve.SideCredit, loaded[1].Side)
	assert.Equal(t, loaded[0].EntryNumber, loaded[1].EntryNumber)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLiteStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that appends a movement and then fails
	// WHEN: WithTx returns the error
	// THEN: The movement is not visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx reserve.Store) error {
		if err := tx.AppendMovement(ctx, reserve.MovementRecord{
			Claim:          testClaim,
			MovementNumber: 1,
			Type:           reserve.MovementAdjustment,
			Amount:         decimal.NewFromInt(100),
			Currency:       "MXN",
			Date:           time.Now(),
			CreatedBy:      "system",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	movements, err := store.Movements(ctx, testClaim)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestSQLiteStore_WithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	// GIVEN: A movement appended inside an open transaction
	// WHEN: Allocating the next movement number inside the same transaction
	// THEN: The uncommitted row counts; numbering inside a batch is gapless

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx reserve.Store) error {
		first, err := tx.NextMovementNumber(ctx, testClaim)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), first)

		if err := tx.AppendMovement(ctx, reserve.MovementRecord{
			Claim:          testClaim,
			MovementNumber: first,
			Type:           reserve.MovementAdjustment,
			Amount:         decimal.NewFromInt(100),
			Currency:       "MXN",
			Date:           time.Now(),
			CreatedBy:      "system",
		}); err != nil {
			return err
		}

		second, err := tx.NextMovementNumber(ctx, testClaim)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2), second)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx reserve.Store) error {
		return tx.AppendMovement(ctx, reserve.MovementRecord{
			Claim:          testClaim,
			MovementNumber: 1,
			Type:           reserve.MovementAdjustment,
			Amount:         decimal.NewFromInt(100),
			Currency:       "MXN",
			Date:           time.Now(),
			CreatedBy:      "system",
		})
	})
	require.NoError(t, err)

	movements, err := store.Movements(ctx, testClaim)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}
