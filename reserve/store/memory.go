// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/jaimotivus/claims-reserve/reserve"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu                sync.RWMutex
	reserves          map[reserveKey]reserve.CoverageReserve
	movements         map[reserve.ClaimRef][]reserve.MovementRecord
	coverageMovements map[reserveKey][]reserve.CoverageMovementRecord
	payments          map[reserveKey][]reserve.PaymentRecord
	entries           map[reserve.ClaimRef][]reserve.AccountingEntry
}

type reserveKey struct {
	Claim    reserve.ClaimRef
	Coverage reserve.CoverageKey
}

var (
	_ reserve.Store   = (*Memory)(nil)
	_ reserve.TxStore = (*TxMemory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		reserves:          make(map[reserveKey]reserve.CoverageReserve),
		movements:         make(map[reserve.ClaimRef][]reserve.MovementRecord),
		coverageMovements: make(map[reserveKey][]reserve.CoverageMovementRecord),
		payments:          make(map[reserveKey][]reserve.PaymentRecord),
		entries:           make(map[reserve.ClaimRef][]reserve.AccountingEntry),
	}
}

// =============================================================================
// SEEDING - Test and dev fixtures only
// =============================================================================

// SeedReserve installs a coverage reserve row.
func (m *Memory) SeedReserve(r reserve.CoverageReserve) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserves[reserveKey{Claim: r.Claim, Coverage: r.Coverage}] = r
}

// SeedPayment installs a payment ledger row.
func (m *Memory) SeedPayment(p reserve.PaymentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reserveKey{Claim: p.Claim, Coverage: p.Coverage}
	m.payments[k] = append(m.payments[k], p)
}

// SeedCoverageMovement installs a historical coverage movement row.
func (m *Memory) SeedCoverageMovement(cm reserve.CoverageMovementRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reserveKey{Claim: cm.Claim, Coverage: cm.Coverage}
	m.coverageMovements[k] = append(m.coverageMovements[k], cm)
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (m *Memory) Reserves(_ context.Context, ref reserve.ClaimRef) ([]reserve.CoverageReserve, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []reserve.CoverageReserve
	for k, r := range m.reserves {
		if k.Claim == ref {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) Reserve(_ context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) (*reserve.CoverageReserve, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reserves[reserveKey{Claim: ref, Coverage: cov}]
	if !ok {
		return nil, reserve.ErrCoverageNotFound
	}
	return &r, nil
}

func (m *Memory) UpdateReserve(_ context.Context, r reserve.CoverageReserve) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := reserveKey{Claim: r.Claim, Coverage: r.Coverage}
	if _, ok := m.reserves[k]; !ok {
		return reserve.ErrCoverageNotFound
	}
	m.reserves[k] = r
	return nil
}

func (m *Memory) Movements(_ context.Context, ref reserve.ClaimRef) ([]reserve.MovementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]reserve.MovementRecord, len(m.movements[ref]))
	copy(result, m.movements[ref])
	return result, nil
}

func (m *Memory) CoverageMovements(_ context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.CoverageMovementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := reserveKey{Claim: ref, Coverage: cov}
	result := make([]reserve.CoverageMovementRecord, len(m.coverageMovements[k]))
	copy(result, m.coverageMovements[k])
	return result, nil
}

func (m *Memory) Payments(_ context.Context, ref reserve.ClaimRef, cov reserve.CoverageKey) ([]reserve.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := reserveKey{Claim: ref, Coverage: cov}
	result := make([]reserve.PaymentRecord, len(m.payments[k]))
	copy(result, m.payments[k])
	return result, nil
}

func (m *Memory) AppendMovement(_ context.Context, mv reserve.MovementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements[mv.Claim] = append(m.movements[mv.Claim], mv)
	return nil
}

func (m *Memory) AppendCoverageMovement(_ context.Context, cm reserve.CoverageMovementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reserveKey{Claim: cm.Claim, Coverage: cm.Coverage}
	m.coverageMovements[k] = append(m.coverageMovements[k], cm)
	return nil
}

func (m *Memory) AppendEntries(_ context.Context, entries []reserve.AccountingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.Claim] = append(m.entries[e.Claim], e)
	}
	return nil
}

// Entries returns the accounting rows of a claim; read side for tests and
// the API movement history.
func (m *Memory) Entries(_ context.Context, ref reserve.ClaimRef) ([]reserve.AccountingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]reserve.AccountingEntry, len(m.entries[ref]))
	copy(result, m.entries[ref])
	return result, nil
}

func (m *Memory) NextMovementNumber(_ context.Context, ref reserve.ClaimRef) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var max int64
	for _, mv := range m.movements[ref] {
		if mv.MovementNumber > max {
			max = mv.MovementNumber
		}
	}
	for k, cms := range m.coverageMovements {
		if k.Claim != ref {
			continue
		}
		for _, cm := range cms {
			if cm.MovementNumber > max {
				max = cm.MovementNumber
			}
		}
	}
	return max + 1, nil
}

func (m *Memory) NextEntryNumber(_ context.Context, ref reserve.ClaimRef) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var max int64
	for _, e := range m.entries[ref] {
		if e.EntryNumber > max {
			max = e.EntryNumber
		}
	}
	return max + 1, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot restored on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(reserve.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	reserves          map[reserveKey]reserve.CoverageReserve
	movements         map[reserve.ClaimRef][]reserve.MovementRecord
	coverageMovements map[reserveKey][]reserve.CoverageMovementRecord
	payments          map[reserveKey][]reserve.PaymentRecord
	entries           map[reserve.ClaimRef][]reserve.AccountingEntry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		reserves:          make(map[reserveKey]reserve.CoverageReserve, len(tm.reserves)),
		movements:         make(map[reserve.ClaimRef][]reserve.MovementRecord, len(tm.movements)),
		coverageMovements: make(map[reserveKey][]reserve.CoverageMovementRecord, len(tm.coverageMovements)),
		payments:          make(map[reserveKey][]reserve.PaymentRecord, len(tm.payments)),
		entries:           make(map[reserve.ClaimRef][]reserve.AccountingEntry, len(tm.entries)),
	}
	for k, v := range tm.reserves {
		s.reserves[k] = v
	}
	for k, v := range tm.movements {
		s.movements[k] = append([]reserve.MovementRecord{}, v...)
	}
	for k, v := range tm.coverageMovements {
		s.coverageMovements[k] = append([]reserve.CoverageMovementRecord{}, v...)
	}
	for k, v := range tm.payments {
		s.payments[k] = append([]reserve.PaymentRecord{}, v...)
	}
	for k, v := range tm.entries {
		s.entries[k] = append([]reserve.AccountingEntry{}, v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.reserves = s.reserves
	tm.movements = s.movements
	tm.coverageMovements = s.coverageMovements
	tm.payments = s.payments
	tm.entries = s.entries
}
