/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements reserve.Store and reserve.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  Movements, coverage movements, payments and accounting entries have no
  UPDATE or DELETE statements. Corrections are recorded as reversal
  movements that the aggregator excludes. Coverage reserves are the only
  mutable table, and only the ledger writer updates them.

KEY TABLES:
  coverage_reserves:   One row per (claim, accounting line, coverage code)
  movements:           Claim-scoped movement ledger
  coverage_movements:  Coverage-scoped movement ledger
  accounting_entries:  Double-entry rows of each commit
  payments:            Payment ledger read model

CONCURRENCY:
  Opened with WAL (Write-Ahead Logging) for better concurrency. Within one
  adjustment batch, reads are routed through the open transaction so that
  movement numbering sees uncommitted writes.

DECIMALS:
  Monetary columns are stored as TEXT in decimal string form; scanning goes
  through decimal.NewFromString so no precision is lost in transit.

USAGE:
  store, err := sqlite.New("./data/reserves.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - reserve/store.go: Interface definitions
  - reserve/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/jaimotivus/claims-reserve/reserve"
)

// Store implements reserve.Store and reserve.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ reserve.Store   = (*Store)(nil)
	_ reserve.TxStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Coverage reserves (the only mutable table)
	CREATE TABLE IF NOT EXISTS coverage_reserves (
		branch INTEGER NOT NULL,
		line INTEGER NOT NULL,
		claim_number INTEGER NOT NULL,
		accounting_line INTEGER NOT NULL,
		coverage_code TEXT NOT NULL,
		policy TEXT NOT NULL,
		sum_insured TEXT NOT NULL,
		initial_reserve TEXT NOT NULL,
		adjusted_amount TEXT NOT NULL,
		liquidation_amount TEXT NOT NULL,
		rejection_amount TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		priority INTEGER,
		validate_sum_insured INTEGER NOT NULL DEFAULT 0,
		shared_limit INTEGER NOT NULL DEFAULT 0,
		effective_date TEXT NOT NULL,
		PRIMARY KEY (branch, line, claim_number, accounting_line, coverage_code)
	);

	-- Claim-scoped movement ledger (append-only)
	CREATE TABLE IF NOT EXISTS movements (
		branch INTEGER NOT NULL,
		line INTEGER NOT NULL,
		claim_number INTEGER NOT NULL,
		movement_number INTEGER NOT NULL,
		movement_type INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		movement_date TEXT NOT NULL,
		created_by TEXT NOT NULL,
		PRIMARY KEY (branch, line, claim_number, movement_number)
	);

	-- Coverage-scoped movement ledger (append-only)
	CREATE TABLE IF NOT EXISTS coverage_movements (
		branch INTEGER NOT NULL,
		line INTEGER NOT NULL,
		claim_number INTEGER NOT NULL,
		accounting_line INTEGER NOT NULL,
		coverage_code TEXT NOT NULL,
		movement_number INTEGER NOT NULL,
		movement_type INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		movement_date TEXT NOT NULL,
		created_by TEXT NOT NULL,
		PRIMARY KEY (branch, line, claim_number, accounting_line, coverage_code, movement_number)
	);

	CREATE INDEX IF NOT EXISTS idx_coverage_movements_claim
		ON coverage_movements(branch, line, claim_number);

	-- Double-entry rows (append-only)
	CREATE TABLE IF NOT EXISTS accounting_entries (
		branch INTEGER NOT NULL,
		line INTEGER NOT NULL,
		claim_number INTEGER NOT NULL,
		accounting_line INTEGER NOT NULL,
		coverage_code TEXT NOT NULL,
		entry_number INTEGER NOT NULL,
		movement_number INTEGER NOT NULL,
		account TEXT NOT NULL,
		side TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		entry_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_claim
		ON accounting_entries(branch, line, claim_number);

	-- Payment ledger read model (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		branch INTEGER NOT NULL,
		line INTEGER NOT NULL,
		claim_number INTEGER NOT NULL,
		accounting_line INTEGER NOT NULL,
		coverage_code TEXT NOT NULL,
		disbursement_type INTEGER NOT NULL,
		payment_type INTEGER NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_coverage
		ON payments(branch, line, claim_number, accounting_line, coverage_code);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so every statement can
// run inside or outside a batch transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE INTERFACE (reserve.Store)
// =============================================================================

func (s *Store) Reserves(ctx context.Context, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error) {
	return reserves(ctx, s.db, ref)
}

func (s *Store) Reserve(ctx context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) (*reserve.CoverageReserve, error) {
	return reserveRow(ctx, s.db, ref, cov)
}

func (s *Store) UpdateReserve(ctx context.Context, r reserve.CoverageReserve) error {
	return updateReserve(ctx, s.db, r)
}

func (s *Store) Movements(ctx context.Context, ref reserve.ClaimRef) ([]reserve.MovementRecord, error) {
	return movements(ctx, s.db, ref)
}

func (s *Store) CoverageMovements(ctx context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.CoverageMovementRecord, error) {
	return coverageMovements(ctx, s.db, ref, cov)
}

func (s *Store) Payments(ctx context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.PaymentRecord, error) {
	return payments(ctx, s.db, ref, cov)
}

func (s *Store) AppendMovement(ctx context.Context, m reserve.MovementRecord) error {
	return appendMovement(ctx, s.db, m)
}

func (s *Store) AppendCoverageMovement(ctx context.Context, m reserve.CoverageMovementRecord) error {
	return appendCoverageMovement(ctx, s.db, m)
}

func (s *Store) AppendEntries(ctx context.Context, entries []reserve.AccountingEntry) error {
	return appendEntries(ctx, s.db, entries)
}

func (s *Store) NextMovementNumber(ctx context.Context, ref reserve.ClaimRef) (int64, error) {
	return nextMovementNumber(ctx, s.db, ref)
}

func (s *Store) NextEntryNumber(ctx context.Context, ref reserve.ClaimRef) (int64, error) {
	return nextEntryNumber(ctx, s.db, ref)
}

// =============================================================================
// TRANSACTIONAL STORE (reserve.TxStore)
// =============================================================================

// WithTx executes a function within a database transaction. Reads inside the
// function see the transaction's own uncommitted writes, which movement
// numbering depends on.
func (s *Store) WithTx(ctx context.Context, fn func(store reserve.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Reserves(ctx context.Context, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error) {
	return reserves(ctx, ts.tx, ref)
}

func (ts *txStore) Reserve(ctx context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) (*reserve.CoverageReserve, error) {
	return reserveRow(ctx, ts.tx, ref, cov)
}

func (ts *txStore) UpdateReserve(ctx context.Context, r reserve.CoverageReserve) error {
	return updateReserve(ctx, ts.tx, r)
}

func (ts *txStore) Movements(ctx context.Context, ref reserve.ClaimRef) ([]reserve.MovementRecord, error) {
	return movements(ctx, ts.tx, ref)
}

func (ts *txStore) CoverageMovements(ctx context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.CoverageMovementRecord, error) {
	return coverageMovements(ctx, ts.tx, ref, cov)
}

func (ts *txStore) Payments(ctx context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.PaymentRecord, error) {
	return payments(ctx, ts.tx, ref, cov)
}

func (ts *txStore) AppendMovement(ctx context.Context, m reserve.MovementRecord) error {
	return appendMovement(ctx, ts.tx, m)
}

func (ts *txStore) AppendCoverageMovement(ctx context.Context, m reserve.CoverageMovementRecord) error {
	return appendCoverageMovement(ctx, ts.tx, m)
}

func (ts *txStore) AppendEntries(ctx context.Context, entries []reserve.AccountingEntry) error {
	return appendEntries(ctx, ts.tx, entries)
}

func (ts *txStore) NextMovementNumber(ctx context.Context, ref reserve.ClaimRef) (int64, error) {
	return nextMovementNumber(ctx, ts.tx, ref)
}

func (ts *txStore) NextEntryNumber(ctx context.Context, ref reserve.ClaimRef) (int64, error) {
	return nextEntryNumber(ctx, ts.tx, ref)
}

// =============================================================================
// SEEDING - Reserve and payment fixtures
// =============================================================================

// InsertReserve creates a coverage reserve row; used when a coverage is
// first attached to a claim and by the dev seed.
func (s *Store) InsertReserve(ctx context.Context, r reserve.CoverageReserve) error {
	query := `
		INSERT INTO coverage_reserves
		(branch, line, claim_number, accounting_line, coverage_code, policy,
		 sum_insured, initial_reserve, adjusted_amount, liquidation_amount,
		 rejection_amount, current_balance, priority, validate_sum_insured,
		 shared_limit, effective_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.Claim.Branch, r.Claim.Line, r.Claim.Number,
		r.Coverage.AccountingLine, r.Coverage.Code, r.Policy,
		r.SumInsured.String(), r.InitialReserve.String(), r.AdjustedAmount.String(),
		r.LiquidationAmount.String(), r.RejectionAmount.String(), r.CurrentBalance.String(),
		nullInt(r.Priority), boolInt(r.ValidateAgainstSumInsured), boolInt(r.SharedLimitProduct),
		r.EffectiveDate.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reserve: %w", err)
	}
	return nil
}

// InsertPayment appends a payment ledger row.
func (s *Store) InsertPayment(ctx context.Context, p reserve.PaymentRecord) error {
	query := `
		INSERT INTO payments
		(branch, line, claim_number, accounting_line, coverage_code,
		 disbursement_type, payment_type, amount, payment_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.Claim.Branch, p.Claim.Line, p.Claim.Number,
		p.Coverage.AccountingLine, p.Coverage.Code,
		p.DisbursementType, p.PaymentType, p.Amount.String(),
		p.Date.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// Entries returns the accounting rows of a claim, oldest first.
func (s *Store) Entries(ctx context.Context, ref reserve.ClaimRef) ([]reserve.AccountingEntry, error) {
	query := `
		SELECT accounting_line, coverage_code, entry_number, movement_number,
		       account, side, amount, currency, entry_date
		FROM accounting_entries
		WHERE branch = ? AND line = ? AND claim_number = ?
		ORDER BY entry_number ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ref.Branch, ref.Line, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []reserve.AccountingEntry
	for rows.Next() {
		e := reserve.AccountingEntry{Claim: ref}
		var amount, date string
		if err := rows.Scan(&e.Coverage.AccountingLine, &e.Coverage.Code,
			&e.EntryNumber, &e.MovementNumber, &e.Account, &e.Side,
			&amount, &e.Currency, &date); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Amount = parseDecimal(amount)
		e.Date = parseTime(date)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SHARED STATEMENTS
// =============================================================================

const reserveColumns = `
	accounting_line, coverage_code, policy, sum_insured, initial_reserve,
	adjusted_amount, liquidation_amount, rejection_amount, current_balance,
	priority, validate_sum_insured, shared_limit, effective_date
`

func reserves(ctx context.Context, q querier, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error) {
	query := `SELECT ` + reserveColumns + `
		FROM coverage_reserves
		WHERE branch = ? AND line = ? AND claim_number = ?
		ORDER BY accounting_line ASC, coverage_code ASC
	`
	rows, err := q.QueryContext(ctx, query, ref.Branch, ref.Line, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to query reserves: %w", err)
	}
	defer rows.Close()

	var result []reserve.CoverageReserve
	for rows.Next() {
		r, err := scanReserve(rows, ref)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func reserveRow(ctx context.Context, q querier, ref reserve.ClaimRef, cov reserve.CoverageKey) (*reserve.CoverageReserve, error) {
	query := `SELECT ` + reserveColumns + `
		FROM coverage_reserves
		WHERE branch = ? AND line = ? AND claim_number = ?
		  AND accounting_line = ? AND coverage_code = ?
	`
	rows, err := q.QueryContext(ctx, query, ref.Branch, ref.Line, ref.Number,
		cov.AccountingLine, cov.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to query reserve: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, reserve.ErrCoverageNotFound
	}
	r, err := scanReserve(rows, ref)
	if err != nil {
		return nil, err
	}
	return &r, rows.Err()
}

func scanReserve(rows *sql.Rows, ref reserve.ClaimRef) (reserve.CoverageReserve, error) {
	var (
		r                                    reserve.CoverageReserve
		sumInsured, initialReserve, adjusted string
		liquidation, rejection, balance      string
		priority                             sql.NullInt64
		validateSumInsured, sharedLimit      int
		effectiveDate                        string
	)

	err := rows.Scan(
		&r.Coverage.AccountingLine, &r.Coverage.Code, &r.Policy,
		&sumInsured, &initialReserve, &adjusted,
		&liquidation, &rejection, &balance,
		&priority, &validateSumInsured, &sharedLimit, &effectiveDate,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan reserve: %w", err)
	}

	r.Claim = ref
	r.SumInsured = parseDecimal(sumInsured)
	r.InitialReserve = parseDecimal(initialReserve)
	r.AdjustedAmount = parseDecimal(adjusted)
	r.LiquidationAmount = parseDecimal(liquidation)
	r.RejectionAmount = parseDecimal(rejection)
	r.CurrentBalance = parseDecimal(balance)
	if priority.Valid {
		p := int(priority.Int64)
		r.Priority = &p
	}
	r.ValidateAgainstSumInsured = validateSumInsured != 0
	r.SharedLimitProduct = sharedLimit != 0
	r.EffectiveDate = parseTime(effectiveDate)
	return r, nil
}

func updateReserve(ctx context.Context, q querier, r reserve.CoverageReserve) error {
	query := `
		UPDATE coverage_reserves
		SET adjusted_amount = ?, current_balance = ?, effective_date = ?
		WHERE branch = ? AND line = ? AND claim_number = ?
		  AND accounting_line = ? AND coverage_code = ?
	`
	result, err := q.ExecContext(ctx, query,
		r.AdjustedAmount.String(), r.CurrentBalance.String(),
		r.EffectiveDate.Format(time.RFC3339),
		r.Claim.Branch, r.Claim.Line, r.Claim.Number,
		r.Coverage.AccountingLine, r.Coverage.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to update reserve: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reserve.ErrCoverageNotFound
	}
	return nil
}

func movements(ctx context.Context, q querier, ref reserve.ClaimRef) ([]reserve.MovementRecord, error) {
	query := `
		SELECT movement_number, movement_type, amount, currency, movement_date, created_by
		FROM movements
		WHERE branch = ? AND line = ? AND claim_number = ?
		ORDER BY movement_number ASC
	`
	rows, err := q.QueryContext(ctx, query, ref.Branch, ref.Line, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var result []reserve.MovementRecord
	for rows.Next() {
		m := reserve.MovementRecord{Claim: ref}
		var amount, date string
		if err := rows.Scan(&m.MovementNumber, &m.Type, &amount, &m.Currency, &date, &m.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.Amount = parseDecimal(amount)
		m.Date = parseTime(date)
		result = append(result, m)
	}
	return result, rows.Err()
}

func coverageMovements(ctx context.Context, q querier, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.CoverageMovementRecord, error) {
	query := `
		SELECT movement_number, movement_type, amount, currency, movement_date, created_by
		FROM coverage_movements
		WHERE branch = ? AND line = ? AND claim_number = ?
		  AND accounting_line = ? AND coverage_code = ?
		ORDER BY movement_number ASC
	`
	rows, err := q.QueryContext(ctx, query, ref.Branch, ref.Line, ref.Number,
		cov.AccountingLine, cov.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage movements: %w", err)
	}
	defer rows.Close()

	var result []reserve.CoverageMovementRecord
	for rows.Next() {
		m := reserve.CoverageMovementRecord{Claim: ref, Coverage: cov}
		var amount, date string
		if err := rows.Scan(&m.MovementNumber, &m.Type, &amount, &m.Currency, &date, &m.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan coverage movement: %w", err)
		}
		m.Amount = parseDecimal(amount)
		m.Date = parseTime(date)
		result = append(result, m)
	}
	return result, rows.Err()
}

func payments(ctx context.Context, q querier, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.PaymentRecord, error) {
	query := `
		SELECT disbursement_type, payment_type, amount, payment_date
		FROM payments
		WHERE branch = ? AND line = ? AND claim_number = ?
		  AND accounting_line = ? AND coverage_code = ?
		ORDER BY payment_date ASC, rowid ASC
	`
	rows, err := q.QueryContext(ctx, query, ref.Branch, ref.Line, ref.Number,
		cov.AccountingLine, cov.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []reserve.PaymentRecord
	for rows.Next() {
		p := reserve.PaymentRecord{Claim: ref, Coverage: cov}
		var amount, date string
		if err := rows.Scan(&p.DisbursementType, &p.PaymentType, &amount, &date); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = parseDecimal(amount)
		p.Date = parseTime(date)
		result = append(result, p)
	}
	return result, rows.Err()
}

func appendMovement(ctx context.Context, q querier, m reserve.MovementRecord) error {
	query := `
		INSERT INTO movements
		(branch, line, claim_number, movement_number, movement_type, amount,
		 currency, movement_date, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		m.Claim.Branch, m.Claim.Line, m.Claim.Number,
		m.MovementNumber, int(m.Type), m.Amount.String(),
		m.Currency, m.Date.Format(time.RFC3339), m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func appendCoverageMovement(ctx context.Context, q querier, m reserve.CoverageMovementRecord) error {
	query := `
		INSERT INTO coverage_movements
		(branch, line, claim_number, accounting_line, coverage_code,
		 movement_number, movement_type, amount, currency, movement_date, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		m.Claim.Branch, m.Claim.Line, m.Claim.Number,
		m.Coverage.AccountingLine, m.Coverage.Code,
		m.MovementNumber, int(m.Type), m.Amount.String(),
		m.Currency, m.Date.Format(time.RFC3339), m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to append coverage movement: %w", err)
	}
	return nil
}

func appendEntries(ctx context.Context, q querier, entries []reserve.AccountingEntry) error {
	query := `
		INSERT INTO accounting_entries
		(branch, line, claim_number, accounting_line, coverage_code,
		 entry_number, movement_number, account, side, amount, currency, entry_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		_, err := q.ExecContext(ctx, query,
			e.Claim.Branch, e.Claim.Line, e.Claim.Number,
			e.Coverage.AccountingLine, e.Coverage.Code,
			e.EntryNumber, e.MovementNumber, e.Account, string(e.Side),
			e.Amount.String(), e.Currency, e.Date.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to append entry: %w", err)
		}
	}
	return nil
}

func nextMovementNumber(ctx context.Context, q querier, ref reserve.ClaimRef) (int64, error) {
	query := `
		SELECT COALESCE(MAX(n), 0) + 1 FROM (
			SELECT MAX(movement_number) AS n FROM movements
			WHERE branch = ? AND line = ? AND claim_number = ?
			UNION ALL
			SELECT MAX(movement_number) AS n FROM coverage_movements
			WHERE branch = ? AND line = ? AND claim_number = ?
		)
	`
	var next int64
	err := q.QueryRowContext(ctx, query,
		ref.Branch, ref.Line, ref.Number,
		ref.Branch, ref.Line, ref.Number,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate movement number: %w", err)
	}
	return next, nil
}

func nextEntryNumber(ctx context.Context, q querier, ref reserve.ClaimRef) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(entry_number), 0) + 1 FROM accounting_entries
		WHERE branch = ? AND line = ? AND claim_number = ?
	`, ref.Branch, ref.Line, ref.Number).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate entry number: %w", err)
	}
	return next, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
