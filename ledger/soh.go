/*
soh.go - Stock-on-hand aggregation

PURPOSE:
  The single source of truth for every quantity question. Stock-on-hand
  for a (product, batch, location) key at time T is the sum of signed
  quantities over movements with OccurredAt <= T. It is derived, never
  stored as mutable state.

HISTORICAL QUERIES:
  HistoricalSOH bounds the sum by an arbitrary asOf instead of now. This
  is what lets the system answer "what was the stock level last Tuesday" -
  it falls out of the append-only data model for free.

CHECKPOINTS:
  CurrentSOH on a fully-qualified key can use a checkpoint: a precomputed
  sum up to a sequence watermark plus the log tail after it. Checkpoints
  cover every movement with Sequence <= watermark regardless of event
  time, so backdated entries appended later land in the tail and the
  observable result always equals the full-log sum. The other direction
  is closed at the write path: future event times are rejected, so every
  logged movement already satisfies OccurredAt <= now when read.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Calculator answers stock-on-hand questions from the movement log.
type Calculator struct {
	store       Store
	checkpoints CheckpointStore // optional

	Now func() time.Time
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// NewCheckpointedCalculator builds a calculator that consults cps for
// fully-qualified keys before falling back to a full-log sum.
func NewCheckpointedCalculator(store Store, cps CheckpointStore) *Calculator {
	c := NewCalculator(store)
	c.checkpoints = cps
	return c
}

// CurrentSOH returns stock-on-hand for the key as of now. Batch and
// Location may be empty to aggregate across them.
func (c *Calculator) CurrentSOH(ctx context.Context, key Key) (decimal.Decimal, error) {
	now := c.Now()

	if c.checkpoints != nil && key.Batch != "" && key.Location != "" {
		cp, err := c.checkpoints.Latest(ctx, key)
		if err != nil {
			return decimal.Zero, err
		}
		if cp != nil {
			tail, err := c.store.Read(ctx, Filter{
				Product: key.Product, Batch: key.Batch, Location: key.Location,
				To: &now, AfterSequence: cp.Sequence,
			})
			if err != nil {
				return decimal.Zero, err
			}
			return sumQuantity(tail).Add(cp.Quantity), nil
		}
	}

	return c.HistoricalSOH(ctx, key, now)
}

// HistoricalSOH returns stock-on-hand as of an arbitrary past moment:
// the sum of signed quantities over movements with OccurredAt <= asOf.
func (c *Calculator) HistoricalSOH(ctx context.Context, key Key, asOf time.Time) (decimal.Decimal, error) {
	movements, err := c.read(ctx, key, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return sumQuantity(movements), nil
}

// WeightOnHand is the weight-based analogue for by-weight goods, summing
// the signed weights of movements that carry one.
func (c *Calculator) WeightOnHand(ctx context.Context, key Key, asOf time.Time) (decimal.Decimal, error) {
	movements, err := c.read(ctx, key, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, m := range movements {
		if m.Weight != nil {
			total = total.Add(*m.Weight)
		}
	}
	return total, nil
}

// RefreshCheckpoint recomputes and stores a checkpoint for a
// fully-qualified key, summing the entire log up to the highest sequence
// seen. Purely a read optimization; correctness never depends on it.
func (c *Calculator) RefreshCheckpoint(ctx context.Context, key Key) (*Checkpoint, error) {
	if c.checkpoints == nil {
		return nil, nil
	}
	movements, err := c.store.Read(ctx, Filter{
		Product: key.Product, Batch: key.Batch, Location: key.Location,
	})
	if err != nil {
		return nil, err
	}

	cp := Checkpoint{Key: key, Quantity: decimal.Zero, Weight: decimal.Zero, TakenAt: c.Now()}
	for _, m := range movements {
		cp.Quantity = cp.Quantity.Add(m.Quantity)
		if m.Weight != nil {
			cp.Weight = cp.Weight.Add(*m.Weight)
		}
		if m.Sequence > cp.Sequence {
			cp.Sequence = m.Sequence
		}
	}
	if err := c.checkpoints.Save(ctx, cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (c *Calculator) read(ctx context.Context, key Key, asOf time.Time) ([]Movement, error) {
	return c.store.Read(ctx, Filter{
		Product:  key.Product,
		Batch:    key.Batch,
		Location: key.Location,
		To:       &asOf,
	})
}

func sumQuantity(movements []Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Quantity)
	}
	return total
}
