/*
reverse.go - Compensation engine

PURPOSE:
  The only sanctioned way to correct a mistake. Reverse appends a new
  movement with the opposite sign and ReversalOf pointing at the original;
  the original is never touched. The reversal goes through the ordinary
  write path, so it is subject to the same invariants as everything else -
  reversal is not a privileged bypass.

PARTIAL COMPENSATION:
  A reversal may carry less than the original magnitude (a partial return
  of a multi-unit sale). Cumulative reversals can never exceed the
  original; the remaining reversible magnitude is recomputed from the log
  on every call.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Reverser appends compensating movements.
type Reverser struct {
	store    Store
	recorder *Recorder

	// Serializes reversals so two concurrent reversals of the same
	// original cannot both observe the full remaining magnitude.
	mu sync.Mutex
}

func NewReverser(store Store, recorder *Recorder) *Reverser {
	return &Reverser{store: store, recorder: recorder}
}

// Reverse compensates the movement with the given id. With a nil partial
// it reverses the full remaining magnitude; otherwise partial must be
// positive and no greater than what is still reversible.
func (rv *Reverser) Reverse(ctx context.Context, originalID MovementID, actor, reason string, partial *decimal.Decimal) (MovementID, error) {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	original, err := rv.store.Get(ctx, originalID)
	if err != nil {
		return "", err
	}
	if original == nil {
		return "", fmt.Errorf("movement %s: %w", originalID, ErrNotFound)
	}
	if original.IsReversal() {
		return "", &ValidationError{Line: -1, Field: "reversalOf",
			Message: "cannot reverse a reversal; reverse the original instead"}
	}

	remaining, err := rv.remaining(ctx, original)
	if err != nil {
		return "", err
	}
	if !remaining.IsPositive() {
		return "", &AlreadyReversedError{Original: originalID, Remaining: decimal.Zero}
	}

	magnitude := remaining
	if partial != nil {
		if !partial.IsPositive() {
			return "", &ValidationError{Line: -1, Field: "partialQuantity", Message: "partial quantity must be positive"}
		}
		if partial.GreaterThan(remaining) {
			return "", &ValidationError{Line: -1, Field: "partialQuantity",
				Message: fmt.Sprintf("partial quantity exceeds reversible remainder %s", remaining)}
		}
		magnitude = *partial
	}

	line := Line{
		Type:       original.Type.ReversalType(),
		Product:    original.Product,
		Batch:      original.Batch,
		Location:   original.Location,
		Quantity:   withOppositeSign(magnitude, original.Quantity),
		OccurredAt: rv.recorder.Now(),
		Reason:     reason,
		ReversalOf: original.ID,
	}
	if original.Weight != nil {
		// Scale the weight proportionally to the reversed fraction.
		fraction := magnitude.Div(original.Quantity.Abs())
		w := original.Weight.Mul(fraction).Neg()
		line.Weight = &w
	}

	ids, err := rv.recorder.Record(ctx, Operation{
		ReferenceType:   original.ReferenceType,
		ReferenceNumber: original.ReferenceNumber,
		Actor:           actor,
		Lines:           []Line{line},
	})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// remaining returns the original's magnitude minus the magnitudes of all
// prior reversals.
func (rv *Reverser) remaining(ctx context.Context, original *Movement) (decimal.Decimal, error) {
	reversals, err := rv.store.ReversalsOf(ctx, original.ID)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := original.Quantity.Abs()
	for _, r := range reversals {
		remaining = remaining.Sub(r.Quantity.Abs())
	}
	return remaining, nil
}

// withOppositeSign gives magnitude the sign opposite to reference's.
func withOppositeSign(magnitude, reference decimal.Decimal) decimal.Decimal {
	if reference.IsPositive() {
		return magnitude.Neg()
	}
	return magnitude
}
