/*
store.go - Append-only persistence contract for movements

PURPOSE:
  Defines the interface between the ledger and its storage engine. The
  contract is storage-engine-agnostic: SQLite in this repository, but the
  same interface fits PostgreSQL or anything with atomic multi-row writes.

APPEND-ONLY CONTRACT:
  The Store interface has no Update and no Delete. That absence is the
  audit guarantee: mutation is impossible at the interface level, not
  merely forbidden by convention. Corrections are appended compensations.

ORDERING:
  Read returns movements ordered by (OccurredAt, Sequence). The store
  assigns Sequence at append time, monotonically increasing store-wide,
  so replay order is total and deterministic even when event times collide.

IMPLEMENTATIONS:
  - store/sqlite: production store (WAL mode, append-only table)
  - ledger/store: in-memory store for tests and development
*/
package ledger

import (
	"context"
	"time"
)

// Filter selects movements for Read. Zero-valued fields are ignored, so
// any combination of product, batch, location, type, reference and time
// range can be expressed.
type Filter struct {
	Product  ProductKey
	Batch    BatchKey
	Location LocationKey

	Types           []MovementType
	ReferenceNumber string
	ReversalOf      MovementID

	// Bounds on OccurredAt, inclusive.
	From *time.Time
	To   *time.Time

	// Only movements with Sequence > AfterSequence. Used by the
	// checkpoint-aware calculator to read the log tail.
	AfterSequence int64

	Limit int
}

// Store persists movements. APPEND-ONLY: no Update, no Delete. Ever.
type Store interface {
	// Append persists all movements atomically, assigning each a
	// store-wide monotonic Sequence. Either every movement in the batch
	// is durable or none is. Returns the movements with Sequence set.
	Append(ctx context.Context, movements []Movement) ([]Movement, error)

	// Read returns movements matching the filter, ordered by
	// (OccurredAt, Sequence).
	Read(ctx context.Context, f Filter) ([]Movement, error)

	// Get returns the movement with the given ID, or nil if absent.
	Get(ctx context.Context, id MovementID) (*Movement, error)

	// ReversalsOf returns all movements compensating the given ID.
	ReversalsOf(ctx context.Context, id MovementID) ([]Movement, error)
}
