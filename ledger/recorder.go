/*
recorder.go - The single write path for new movements

PURPOSE:
  Every movement enters the ledger through Recorder.Record. No component
  is permitted a backdoor that appends without validation, and nothing can
  update or delete - the Store interface has no such operations.

WRITE PATH (one operation = one external document):
  1. Validate every line against the record invariants
  2. Take exclusive per-key locks for the keys the operation touches
  3. For lines carrying a ReversalOf link, check the link against the
     log: the original must exist, must not itself be a reversal, and
     the cumulative reversed magnitude must stay within the original's
  4. For guarded movement types, check that post-write stock-on-hand
     stays non-negative; reject the WHOLE operation otherwise
  5. Assign ids, append atomically (all lines or none)

CONCURRENCY:
  The check-then-append race is closed by holding the per-key locks for
  the full validate-then-append window. Locks are acquired in sorted key
  order so two operations touching overlapping key sets cannot deadlock.
  Writers to disjoint keys do not contend; readers never take these locks.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recorder validates and appends operations. It is the only entry point
// for new movements.
type Recorder struct {
	store Store
	calc  *Calculator
	locks *keyLocks

	// Now is overridable for tests.
	Now func() time.Time
}

// NewRecorder builds a write path over the given store. The calculator is
// created without checkpoints; the stock guard always reflects the full log.
func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store: store,
		calc:  NewCalculator(store),
		locks: newKeyLocks(),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and appends one operation. On success it returns the
// ids of the new movements in line order. On any failure nothing is
// persisted.
func (r *Recorder) Record(ctx context.Context, op Operation) ([]MovementID, error) {
	now := r.Now()
	if err := r.validate(op, now); err != nil {
		return nil, err
	}

	movements := make([]Movement, len(op.Lines))
	for i, line := range op.Lines {
		movements[i] = Movement{
			ID:              MovementID(uuid.NewString()),
			Type:            line.Type,
			Product:         line.Product,
			Batch:           line.Batch,
			Location:        line.Location,
			Quantity:        line.Quantity,
			Weight:          line.Weight,
			OccurredAt:      line.OccurredAt,
			RecordedAt:      now,
			ReferenceType:   op.ReferenceType,
			ReferenceNumber: op.ReferenceNumber,
			ReversalOf:      line.ReversalOf,
			Actor:           op.Actor,
			Reason:          line.Reason,
		}
	}

	keys := touchedKeys(movements)
	r.locks.lock(keys)
	defer r.locks.unlock(keys)

	if err := r.validateReversals(ctx, movements); err != nil {
		return nil, err
	}
	if err := r.guardStock(ctx, movements); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	appended, err := r.store.Append(ctx, movements)
	if err != nil {
		return nil, fmt.Errorf("append operation %s/%s: %w", op.ReferenceType, op.ReferenceNumber, err)
	}

	ids := make([]MovementID, len(appended))
	for i, m := range appended {
		ids[i] = m.ID
	}
	return ids, nil
}

func (r *Recorder) validate(op Operation, now time.Time) error {
	if op.Actor == "" {
		return &ValidationError{Line: -1, Field: "actor", Message: "actor is required"}
	}
	if op.ReferenceType == "" || op.ReferenceNumber == "" {
		return &ValidationError{Line: -1, Field: "reference", Message: "reference type and number are required"}
	}
	if len(op.Lines) == 0 {
		return &ValidationError{Line: -1, Field: "lines", Message: "operation has no lines"}
	}
	for i, line := range op.Lines {
		if err := line.validate(i, now); err != nil {
			return err
		}
	}
	return nil
}

// validateReversals checks every line carrying a ReversalOf link against
// the log. The Reverser performs the same checks before submitting, but
// Record is the public write path and a caller can set ReversalOf on a
// line directly; a dangling or oversized link must never reach the store.
// Runs under the per-key locks so the remaining-magnitude read cannot
// race a concurrent reversal of the same original.
func (r *Recorder) validateReversals(ctx context.Context, movements []Movement) error {
	for i, m := range movements {
		if m.ReversalOf == "" {
			continue
		}
		original, err := r.store.Get(ctx, m.ReversalOf)
		if err != nil {
			return err
		}
		if original == nil {
			return &ValidationError{Line: i, Field: "reversalOf",
				Message: fmt.Sprintf("referenced movement %s does not exist", m.ReversalOf)}
		}
		if original.IsReversal() {
			return &ValidationError{Line: i, Field: "reversalOf",
				Message: "cannot reverse a reversal; reverse the original instead"}
		}
		if m.Quantity.Sign() == original.Quantity.Sign() {
			return &ValidationError{Line: i, Field: "quantity",
				Message: "reversal quantity must have the opposite sign of the original"}
		}

		reversals, err := r.store.ReversalsOf(ctx, m.ReversalOf)
		if err != nil {
			return err
		}
		remaining := original.Quantity.Abs()
		for _, rv := range reversals {
			remaining = remaining.Sub(rv.Quantity.Abs())
		}
		if m.Quantity.Abs().GreaterThan(remaining) {
			return &ValidationError{Line: i, Field: "quantity",
				Message: fmt.Sprintf("reversal magnitude exceeds the original's remaining %s", remaining)}
		}
	}
	return nil
}

// guardStock rejects the operation if, for any key, the net effect of the
// guarded lines would drive current stock-on-hand below zero. The net is
// computed per key so a transfer that both removes and restores within
// one operation is judged as a whole.
func (r *Recorder) guardStock(ctx context.Context, movements []Movement) error {
	type keyEffect struct {
		net     decimal.Decimal
		removed decimal.Decimal // magnitude requested by guarded lines
		guarded bool
	}
	effects := make(map[Key]*keyEffect)
	for _, m := range movements {
		k := m.Key()
		e := effects[k]
		if e == nil {
			e = &keyEffect{net: decimal.Zero, removed: decimal.Zero}
			effects[k] = e
		}
		e.net = e.net.Add(m.Quantity)
		if m.Type.GuardsNegative() {
			e.guarded = true
			e.removed = e.removed.Add(m.Quantity.Neg())
		}
	}

	for k, e := range effects {
		if !e.guarded {
			continue
		}
		available, err := r.calc.CurrentSOH(ctx, k)
		if err != nil {
			return err
		}
		if available.Add(e.net).IsNegative() {
			return &InsufficientStockError{Key: k, Available: available, Requested: e.removed}
		}
	}
	return nil
}

func touchedKeys(movements []Movement) []Key {
	seen := make(map[Key]bool)
	var keys []Key
	for _, m := range movements {
		k := m.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		if a.Batch != b.Batch {
			return a.Batch < b.Batch
		}
		return a.Location < b.Location
	})
	return keys
}

// =============================================================================
// PER-KEY LOCKS
// =============================================================================

// keyLocks hands out one mutex per aggregation key. Mutexes are never
// reclaimed; the key space is bounded by the catalog, not by traffic.
type keyLocks struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[Key]*sync.Mutex)}
}

func (kl *keyLocks) get(k Key) *sync.Mutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	m, ok := kl.locks[k]
	if !ok {
		m = &sync.Mutex{}
		kl.locks[k] = m
	}
	return m
}

// lock acquires the mutexes for all keys. Callers must pass keys in
// sorted order (touchedKeys does) so overlapping operations cannot
// deadlock.
func (kl *keyLocks) lock(keys []Key) {
	for _, k := range keys {
		kl.get(k).Lock()
	}
}

func (kl *keyLocks) unlock(keys []Key) {
	for i := len(keys) - 1; i >= 0; i-- {
		kl.get(keys[i]).Unlock()
	}
}
