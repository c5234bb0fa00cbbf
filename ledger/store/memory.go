// Package store provides the in-memory Store implementation used by
// tests and local development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/verdant/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - Append-only, mirrors the SQLite store's semantics
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	movements []ledger.Movement
	byID      map[ledger.MovementID]int
	nextSeq   int64
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[ledger.MovementID]int), nextSeq: 1}
}

// Append persists the batch atomically: ids are checked for uniqueness
// before anything is written, then sequences are assigned in order.
func (m *Memory) Append(_ context.Context, movements []ledger.Movement) ([]ledger.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mv := range movements {
		if _, exists := m.byID[mv.ID]; exists {
			return nil, ledger.ErrDuplicateMovement
		}
	}

	out := make([]ledger.Movement, len(movements))
	for i, mv := range movements {
		mv.Sequence = m.nextSeq
		m.nextSeq++
		m.byID[mv.ID] = len(m.movements)
		m.movements = append(m.movements, mv)
		out[i] = mv
	}
	return out, nil
}

func (m *Memory) Read(_ context.Context, f ledger.Filter) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Movement
	for _, mv := range m.movements {
		if matches(mv, f) {
			result = append(result, mv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.Before(result[j].OccurredAt)
		}
		return result[i].Sequence < result[j].Sequence
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *Memory) Get(_ context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	mv := m.movements[i]
	return &mv, nil
}

func (m *Memory) ReversalsOf(ctx context.Context, id ledger.MovementID) ([]ledger.Movement, error) {
	return m.Read(ctx, ledger.Filter{ReversalOf: id})
}

func matches(mv ledger.Movement, f ledger.Filter) bool {
	if f.Product != "" && mv.Product != f.Product {
		return false
	}
	if f.Batch != "" && mv.Batch != f.Batch {
		return false
	}
	if f.Location != "" && mv.Location != f.Location {
		return false
	}
	if f.ReferenceNumber != "" && mv.ReferenceNumber != f.ReferenceNumber {
		return false
	}
	if f.ReversalOf != "" && mv.ReversalOf != f.ReversalOf {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if mv.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && mv.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && mv.OccurredAt.After(*f.To) {
		return false
	}
	if f.AfterSequence > 0 && mv.Sequence <= f.AfterSequence {
		return false
	}
	return true
}

// =============================================================================
// MEMORY CHECKPOINT STORE
// =============================================================================

type MemoryCheckpoints struct {
	mu  sync.RWMutex
	cps map[ledger.Key]ledger.Checkpoint
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{cps: make(map[ledger.Key]ledger.Checkpoint)}
}

func (m *MemoryCheckpoints) Save(_ context.Context, cp ledger.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.Key] = cp
	return nil
}

func (m *MemoryCheckpoints) Latest(_ context.Context, key ledger.Key) (*ledger.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.cps[key]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}
