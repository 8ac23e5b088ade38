/*
service.go - One adjustment batch, end to end

PURPOSE:
  Orchestrates a batch of reserve adjustments for one claim: fresh balances,
  per-coverage validation, priority reallocation for shared-limit coverages,
  and a single transactional commit of everything that was approved or
  reduced.

CONCURRENCY:
  Two batches for the same claim must not interleave: balance reads and
  movement-number allocation are not safe under concurrent writers. Access is
  serialized with a per-claim mutex; batches for different claims run in
  parallel. Retries are the caller's responsibility and re-read balances.

OUTCOME REPORTING:
  Validation rejections and capacity warnings are data on the per-coverage
  results. Only missing references and persistence failures are returned as
  errors; a persistence failure rolls back the whole batch.
*/
package claims

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jaimotivus/claims-reserve/reserve"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service resolves and commits adjustment batches.
type Service struct {
	Store     reserve.TxStore
	Directory Directory
	Tables    CodeTables

	Aggregator *reserve.Aggregator
	Validator  *reserve.Validator
	Writer     *reserve.Writer

	Log *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Currency reserve.CurrencySource
	Identity reserve.IdentitySource
	Overlays []reserve.Overlay
	Log      *logrus.Logger
}

// NewService wires the engine components around a store and directory.
func NewService(store reserve.TxStore, dir Directory, tables CodeTables, opts Options) *Service {
	if opts.Currency == nil {
		opts.Currency = &PolicyCurrency{}
	}
	if opts.Identity == nil {
		opts.Identity = ContextIdentity{}
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}

	return &Service{
		Store:      store,
		Directory:  dir,
		Tables:     tables,
		Aggregator: reserve.NewAggregator(store),
		Validator:  &reserve.Validator{Factors: tables, Overlays: opts.Overlays},
		Writer: &reserve.Writer{
			Components: tables,
			Currency:   opts.Currency,
			Identity:   opts.Identity,
		},
		Log:   opts.Log,
		locks: make(map[string]*sync.Mutex),
	}
}

// BatchResult is the outcome of one adjustment batch: one entry per coverage
// that was submitted or reduced.
type BatchResult struct {
	BatchID string
	Claim   reserve.ClaimRef
	Results []reserve.AdjustmentResult
}

// claimLock returns the mutex serializing batches for one claim.
func (s *Service) claimLock(ref reserve.ClaimRef) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[ref.String()]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ref.String()] = lock
	}
	return lock
}

// =============================================================================
// ADJUST - The batch operation
// =============================================================================

// Adjust resolves and commits a batch of adjustment requests for one claim.
func (s *Service) Adjust(ctx context.Context, ref reserve.ClaimRef, requests []reserve.AdjustmentRequest) (*BatchResult, error) {
	lock := s.claimLock(ref)
	lock.Lock()
	defer lock.Unlock()

	claim, err := s.Directory.Claim(ctx, ref)
	if err != nil {
		return nil, err
	}
	coverages, err := s.Directory.Coverages(ctx, ref)
	if err != nil {
		return nil, err
	}

	byKey := make(map[reserve.CoverageKey]*reserve.CoverageReserve, len(coverages))
	for i := range coverages {
		byKey[coverages[i].Coverage] = &coverages[i]
	}

	// A request naming a coverage that is not on the claim aborts the whole
	// batch before any validation runs.
	reqByKey := make(map[reserve.CoverageKey]reserve.AdjustmentRequest, len(requests))
	for _, req := range requests {
		if _, ok := byKey[req.Coverage]; !ok {
			return nil, reserve.ErrCoverageNotFound
		}
		reqByKey[req.Coverage] = req
	}

	// Balances are always re-read, never trusted from the cached column.
	for i := range coverages {
		if err := s.Aggregator.Refresh(ctx, &coverages[i]); err != nil {
			return nil, err
		}
	}

	batch := &BatchResult{BatchID: uuid.NewString(), Claim: ref}

	// Per-coverage validation. Outcomes are data; a rejection never aborts
	// sibling coverages.
	outcomes := make(map[reserve.CoverageKey]reserve.Outcome, len(requests))
	for _, req := range requests {
		res := byKey[req.Coverage]
		outcome := s.Validator.Validate(ctx, claim, res, req, res.CurrentBalance)
		outcomes[req.Coverage] = outcome
		if !outcome.Accepted {
			batch.Results = append(batch.Results, reserve.AdjustmentResult{
				Coverage:   req.Coverage,
				Accepted:   false,
				NewBalance: res.CurrentBalance,
				Message:    outcome.Reason,
			})
		}
	}

	// Shared-limit coverages with a priority rank go through the cascade;
	// everything else commits its validated delta directly.
	entries, entryByKey := cascadeEntries(coverages, outcomes)
	if len(entries) > 0 {
		ceiling, err := s.sharedCeiling(ctx, claim, coverages)
		if err != nil {
			return nil, err
		}
		reserve.Cascade(entries, ceiling)
	}

	commits := s.collectCommits(coverages, outcomes, entryByKey)

	if err := s.commitBatch(ctx, claim, byKey, commits, batch); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"claim":    ref.String(),
		"batch":    batch.BatchID,
		"requests": len(requests),
		"results":  len(batch.Results),
	}).Info("adjustment batch resolved")

	return batch, nil
}

// pendingCommit is one approved or reduced delta awaiting the transactional
// commit.
type pendingCommit struct {
	coverage reserve.CoverageKey
	delta    decimal.Decimal
	state    reserve.ValidationState
	message  string
}

// cascadeEntries builds the working set for the reallocation pass: every
// shared-limit coverage with a priority rank, whether or not it has a
// request in this batch.
func cascadeEntries(coverages []reserve.CoverageReserve, outcomes map[reserve.CoverageKey]reserve.Outcome) ([]*reserve.CascadeEntry, map[reserve.CoverageKey]*reserve.CascadeEntry) {
	var entries []*reserve.CascadeEntry
	byKey := make(map[reserve.CoverageKey]*reserve.CascadeEntry)

	for i := range coverages {
		c := &coverages[i]
		if !c.SharedLimitProduct || c.Priority == nil {
			continue
		}
		entry := &reserve.CascadeEntry{
			Coverage: c.Coverage,
			Priority: *c.Priority,
			Balance:  c.CurrentBalance,
		}
		if outcome, ok := outcomes[c.Coverage]; ok && outcome.Accepted {
			delta := outcome.Delta
			entry.Delta = &delta
		}
		entries = append(entries, entry)
		byKey[c.Coverage] = entry
	}
	return entries, byKey
}

// collectCommits merges direct approvals with cascade outcomes into the
// commit list.
func (s *Service) collectCommits(coverages []reserve.CoverageReserve, outcomes map[reserve.CoverageKey]reserve.Outcome, entryByKey map[reserve.CoverageKey]*reserve.CascadeEntry) []pendingCommit {
	var commits []pendingCommit

	for i := range coverages {
		key := coverages[i].Coverage

		if entry, ok := entryByKey[key]; ok {
			switch entry.State {
			case reserve.StateApproved:
				commits = append(commits, pendingCommit{
					coverage: key,
					delta:    entry.Applied,
					state:    reserve.StateApproved,
					message:  entry.Message,
				})
			case reserve.StateReduced:
				commits = append(commits, pendingCommit{
					coverage: key,
					delta:    entry.Applied,
					state:    reserve.StateReduced,
					message:  entry.Message,
				})
			}
			continue
		}

		if outcome, ok := outcomes[key]; ok && outcome.Accepted {
			commits = append(commits, pendingCommit{
				coverage: key,
				delta:    outcome.Delta,
				state:    reserve.StateApproved,
			})
		}
	}
	return commits
}

// commitBatch persists every approved and reduced delta inside one
// transaction and appends the per-coverage results.
func (s *Service) commitBatch(ctx context.Context, claim *reserve.Claim, byKey map[reserve.CoverageKey]*reserve.CoverageReserve, commits []pendingCommit, batch *BatchResult) error {
	if len(commits) == 0 {
		return nil
	}

	results := make([]reserve.AdjustmentResult, 0, len(commits))

	err := s.Store.WithTx(ctx, func(tx reserve.Store) error {
		for _, c := range commits {
			res := byKey[c.coverage]
			movementID, err := s.Writer.Commit(ctx, tx, claim, res, c.delta)
			if err != nil {
				return err
			}
			results = append(results, reserve.AdjustmentResult{
				Coverage:   c.coverage,
				Accepted:   true,
				Delta:      c.delta,
				NewBalance: res.CurrentBalance,
				State:      c.state,
				Message:    c.message,
				MovementID: movementID,
			})
		}
		return nil
	})
	if err != nil {
		s.Log.WithFields(logrus.Fields{
			"claim": claim.Ref.String(),
			"batch": batch.BatchID,
		}).WithError(err).Error("batch commit rolled back")
		return err
	}

	batch.Results = append(batch.Results, results...)
	return nil
}

// sharedCeiling computes the combined limit for the claim's shared-limit
// coverages: policy sum insured net of payments and uncovered pending
// reserve, per the shared-ceiling formula.
func (s *Service) sharedCeiling(ctx context.Context, claim *reserve.Claim, coverages []reserve.CoverageReserve) (decimal.Decimal, error) {
	totalSumInsured := decimal.Zero
	totalPayments := decimal.Zero
	pendingReserve := decimal.Zero
	asOf := time.Now()

	for i := range coverages {
		c := &coverages[i]

		// Pending reserve spans every coverage of the claim, not just the
		// shared-limit subset.
		pendingReserve = pendingReserve.Add(c.CurrentBalance)

		payments, err := s.Aggregator.PaymentSum(ctx, c.Claim, c.Coverage)
		if err != nil {
			return decimal.Zero, err
		}
		totalPayments = totalPayments.Add(payments.Abs())

		if !c.SharedLimitProduct {
			continue
		}
		sum, err := s.Directory.PolicySumInsured(ctx, c.Policy, c.Coverage, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		totalSumInsured = totalSumInsured.Add(sum)
	}

	return reserve.SharedCeiling(totalSumInsured, totalPayments, pendingReserve), nil
}

// CoverageBalances returns the claim's reserves with balances freshly
// recomputed from the ledgers.
func (s *Service) CoverageBalances(ctx context.Context, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error) {
	if _, err := s.Directory.Claim(ctx, ref); err != nil {
		return nil, err
	}
	coverages, err := s.Directory.Coverages(ctx, ref)
	if err != nil {
		return nil, err
	}
	for i := range coverages {
		if err := s.Aggregator.Refresh(ctx, &coverages[i]); err != nil {
			return nil, err
		}
	}
	return coverages, nil
}

// Movements returns the claim's movement history, oldest first.
func (s *Service) Movements(ctx context.Context, ref reserve.ClaimRef) ([]reserve.MovementRecord, error) {
	if _, err := s.Directory.Claim(ctx, ref); err != nil {
		return nil, err
	}
	return s.Store.Movements(ctx, ref)
}
