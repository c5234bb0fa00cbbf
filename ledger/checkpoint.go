package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CHECKPOINT - Precomputed stock-on-hand up to a sequence watermark
// =============================================================================

// Checkpoint stores the summed quantity (and weight) of every movement
// with Sequence <= Sequence for one fully-qualified key. Event time is
// deliberately not part of the watermark: backdated movements get a
// higher sequence and therefore land in the tail, so checkpointed reads
// stay equal to the full-log sum.
type Checkpoint struct {
	Key      Key
	Sequence int64
	Quantity decimal.Decimal
	Weight   decimal.Decimal
	TakenAt  time.Time
}

// CheckpointStore persists checkpoints. Overwriting a checkpoint is
// permitted: checkpoints are derived caches, not ledger facts.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error

	// Latest returns the newest checkpoint for the key, or nil.
	Latest(ctx context.Context, key Key) (*Checkpoint, error)
}
