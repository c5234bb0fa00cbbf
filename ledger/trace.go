/*
trace.go - Traceability service

PURPOSE:
  Read-side graph walks over the ledger. History answers "show me every
  movement for this key, in order" for audit display. Trace answers
  "where did this inventory come from and where did it go" by following
  reference numbers, reversal links, and shared batch keys.

  Cross-module identifiers (SKUs, batch numbers) stay opaque here: the
  ledger does not enforce referential integrity across module boundaries,
  it offers queryable linkage after the fact. That is the realistic
  contract when the catalog, sales and production modules deploy
  independently.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Tracer performs read-only walks over the movement log.
type Tracer struct {
	store Store
}

func NewTracer(store Store) *Tracer {
	return &Tracer{store: store}
}

// History returns the ordered movement sequence for a key, optionally
// bounded by an OccurredAt range.
func (t *Tracer) History(ctx context.Context, key Key, from, to *time.Time) ([]Movement, error) {
	return t.store.Read(ctx, Filter{
		Product:  key.Product,
		Batch:    key.Batch,
		Location: key.Location,
		From:     from,
		To:       to,
	})
}

// TraceGraph is the linked neighborhood of one reference number.
type TraceGraph struct {
	Reference string

	// Movements carrying the reference, in replay order.
	Movements []Movement

	// Reversal edges touching those movements: compensations of them,
	// and the originals they compensate.
	Reversals []Movement

	// Upstream: batch-linked increases that occurred at or before the
	// referenced consumption (the receipt or production run the stock
	// came from).
	Upstream []Movement

	// Downstream: batch-linked decreases after the referenced increase
	// (where the stock went).
	Downstream []Movement
}

// Trace builds the movement graph around a reference number. Returns
// ErrNotFound if no movement carries the reference.
func (t *Tracer) Trace(ctx context.Context, referenceNumber string) (*TraceGraph, error) {
	movements, err := t.store.Read(ctx, Filter{ReferenceNumber: referenceNumber})
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, fmt.Errorf("reference %s: %w", referenceNumber, ErrNotFound)
	}

	graph := &TraceGraph{Reference: referenceNumber, Movements: movements}
	seen := make(map[MovementID]bool)
	for _, m := range movements {
		seen[m.ID] = true
	}

	for _, m := range movements {
		// Reversal edges, both directions.
		reversals, err := t.store.ReversalsOf(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range reversals {
			if !seen[r.ID] {
				seen[r.ID] = true
				graph.Reversals = append(graph.Reversals, r)
			}
		}
		if m.IsReversal() {
			original, err := t.store.Get(ctx, m.ReversalOf)
			if err != nil {
				return nil, err
			}
			if original != nil && !seen[original.ID] {
				seen[original.ID] = true
				graph.Reversals = append(graph.Reversals, *original)
			}
		}

		// Batch lineage. Without a batch key there is no cross-document
		// linkage to follow.
		if m.Batch == "" {
			continue
		}
		linked, err := t.store.Read(ctx, Filter{Product: m.Product, Batch: m.Batch})
		if err != nil {
			return nil, err
		}
		for _, l := range linked {
			if seen[l.ID] || l.ReferenceNumber == referenceNumber {
				continue
			}
			switch {
			case m.Quantity.IsNegative() && l.Quantity.IsPositive() && !l.OccurredAt.After(m.OccurredAt):
				seen[l.ID] = true
				graph.Upstream = append(graph.Upstream, l)
			case m.Quantity.IsPositive() && l.Quantity.IsNegative() && !l.OccurredAt.Before(m.OccurredAt):
				seen[l.ID] = true
				graph.Downstream = append(graph.Downstream, l)
			}
		}
	}

	return graph, nil
}
