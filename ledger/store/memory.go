// Package store provides the in-memory ledger.Store implementation
// used by tests and local development. Same commit semantics as the
// SQLite store: one mutex-guarded critical section per batch, so a
// batch is observed entirely or not at all.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/murabaha-engine/ledger"
)

// =============================================================================
// MEMORY STORE - Event log in maps
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	contracts   map[ledger.ContractID]ledger.Contract
	retired     map[ledger.ContractID]bool
	entries     map[ledger.ContractID][]*entry
	idempotency map[string]bool
	seq         int64
}

type entry struct {
	fact       ledger.Fact
	retraction *ledger.Retraction
}

func NewMemory() *Memory {
	return &Memory{
		contracts:   make(map[ledger.ContractID]ledger.Contract),
		retired:     make(map[ledger.ContractID]bool),
		entries:     make(map[ledger.ContractID][]*entry),
		idempotency: make(map[string]bool),
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

func (m *Memory) PutContract(_ context.Context, c ledger.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
	delete(m.retired, c.ID)
	return nil
}

func (m *Memory) Contract(_ context.Context, id ledger.ContractID) (ledger.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok || m.retired[id] {
		return ledger.Contract{}, ledger.ErrContractNotFound
	}
	return c, nil
}

func (m *Memory) Contracts(_ context.Context) ([]ledger.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Contract, 0, len(m.contracts))
	for id, c := range m.contracts {
		if m.retired[id] {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) Facts(_ context.Context, id ledger.ContractID) ([]ledger.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Fact
	for _, e := range m.entries[id] {
		if e.retraction == nil {
			out = append(out, e.fact)
		}
	}
	return out, nil
}

func (m *Memory) History(_ context.Context, id ledger.ContractID) ([]ledger.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Change, 0, len(m.entries[id]))
	for _, e := range m.entries[id] {
		var r *ledger.Retraction
		if e.retraction != nil {
			cp := *e.retraction
			r = &cp
		}
		out = append(out, ledger.Change{Fact: e.fact, Retraction: r})
	}
	return out, nil
}

// =============================================================================
// COMMIT - One atomic batch
// =============================================================================

func (m *Memory) Commit(_ context.Context, batch ledger.WriteBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if batch.IdempotencyKey != "" && m.idempotency[batch.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}
	if err := ledger.ValidateBatch(batch, m.liveSeqsLocked(batch)); err != nil {
		return err
	}

	// Resolve every target before touching anything, so a bad batch
	// leaves no partial state behind.
	var tombstones []*entry
	for _, id := range batch.Retracts {
		e, live := m.findLocked(id)
		if e == nil {
			return ledger.ErrFactNotFound
		}
		if !live {
			// Another correction got there first.
			return ledger.ErrConflict
		}
		tombstones = append(tombstones, e)
	}
	if batch.RetractContract {
		matched := 0
		for _, e := range m.entries[batch.Contract] {
			if e.retraction == nil {
				tombstones = append(tombstones, e)
				matched++
			}
		}
		if matched == 0 {
			return ledger.ErrNothingToRetract
		}
	}
	var adjusted []*entry
	for _, adj := range batch.Adjustments {
		e, live := m.findLocked(adj.FactID)
		if e == nil || !live {
			return ledger.ErrFactNotFound
		}
		if _, ok := e.fact.Body.(ledger.Installment); !ok {
			return ledger.ErrFactNotFound
		}
		adjusted = append(adjusted, e)
	}

	// Apply.
	now := time.Now().UTC()
	for _, e := range tombstones {
		e.retraction = &ledger.Retraction{
			At:      now,
			BatchID: batch.ID,
			Author:  batch.Author,
			Reason:  batch.Correction.Reason,
			Note:    batch.Correction.Note,
		}
	}
	if batch.RetractContract {
		m.retired[batch.Contract] = true
	}
	for i, adj := range batch.Adjustments {
		inst := adjusted[i].fact.Body.(ledger.Installment)
		inst.ProfitDue = adj.NewProfitDue
		adjusted[i].fact.Body = inst
	}
	for _, f := range batch.Creates {
		if f.ID == "" {
			f.ID = ledger.FactID(uuid.NewString())
		}
		m.seq++
		f.Seq = m.seq
		f.RecordedAt = now
		m.entries[f.ContractID] = append(m.entries[f.ContractID], &entry{fact: f})
	}
	if batch.IdempotencyKey != "" {
		m.idempotency[batch.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) findLocked(id ledger.FactID) (e *entry, live bool) {
	for _, es := range m.entries {
		for _, cand := range es {
			if cand.fact.ID == id {
				return cand, cand.retraction == nil
			}
		}
	}
	return nil, false
}

// liveSeqsLocked collects the installment seqs already live on the
// contracts this batch creates installments for.
func (m *Memory) liveSeqsLocked(batch ledger.WriteBatch) map[int]bool {
	seqs := make(map[int]bool)
	for _, f := range batch.Creates {
		if _, ok := f.Body.(ledger.Installment); !ok {
			continue
		}
		for _, e := range m.entries[f.ContractID] {
			if e.retraction != nil {
				continue
			}
			if inst, ok := e.fact.Body.(ledger.Installment); ok {
				seqs[inst.Seq] = true
			}
		}
	}
	return seqs
}
