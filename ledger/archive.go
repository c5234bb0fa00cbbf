package ledger

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ARCHIVAL - Export without deletion
// =============================================================================

// Exporter streams old movements for cold storage. Archival never removes
// anything from the ledger; rows stay queryable for the full retention
// window and the export is a copy for external retention tooling.
type Exporter struct {
	store Store
}

func NewExporter(store Store) *Exporter {
	return &Exporter{store: store}
}

type exportRecord struct {
	ID              string           `json:"id"`
	Sequence        int64            `json:"sequence"`
	Type            string           `json:"type"`
	Product         string           `json:"product"`
	Batch           string           `json:"batch,omitempty"`
	Location        string           `json:"location"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Weight          *decimal.Decimal `json:"weight,omitempty"`
	OccurredAt      time.Time        `json:"occurredAt"`
	RecordedAt      time.Time        `json:"recordedAt"`
	ReferenceType   string           `json:"referenceType"`
	ReferenceNumber string           `json:"referenceNumber"`
	ReversalOf      string           `json:"reversalOf,omitempty"`
	Actor           string           `json:"actor"`
	Reason          string           `json:"reason,omitempty"`
}

// ExportBefore writes every movement with OccurredAt <= cutoff to w as
// JSON lines, in replay order. Returns the number of records written.
func (e *Exporter) ExportBefore(ctx context.Context, cutoff time.Time, w io.Writer) (int, error) {
	movements, err := e.store.Read(ctx, Filter{To: &cutoff})
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for i, m := range movements {
		rec := exportRecord{
			ID:              string(m.ID),
			Sequence:        m.Sequence,
			Type:            string(m.Type),
			Product:         string(m.Product),
			Batch:           string(m.Batch),
			Location:        string(m.Location),
			Quantity:        m.Quantity,
			Weight:          m.Weight,
			OccurredAt:      m.OccurredAt,
			RecordedAt:      m.RecordedAt,
			ReferenceType:   m.ReferenceType,
			ReferenceNumber: m.ReferenceNumber,
			ReversalOf:      string(m.ReversalOf),
			Actor:           m.Actor,
			Reason:          m.Reason,
		}
		if err := enc.Encode(rec); err != nil {
			return i, err
		}
	}
	return len(movements), nil
}
