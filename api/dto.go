/*
dto.go - Request/response types for the HTTP surface

PURPOSE:
  JSON structures decoupling the wire contract from the domain model.
  Validation of shape (required fields, minimum line count) happens here
  via validator struct tags; the domain invariants (signs, reasons,
  negative-stock guards) stay in the ledger package where they are
  enforced for every caller, HTTP or not.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/verdant/stock-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// MovementLineRequest is one proposed movement line.
type MovementLineRequest struct {
	MovementType string           `json:"movementType" validate:"required"`
	ProductKey   string           `json:"productKey" validate:"required"`
	BatchKey     string           `json:"batchKey,omitempty"`
	LocationKey  string           `json:"locationKey" validate:"required"`
	Quantity     decimal.Decimal  `json:"quantitySigned" validate:"required"`
	Weight       *decimal.Decimal `json:"weightSigned,omitempty"`
	OccurredAt   time.Time        `json:"occurredAt" validate:"required"`
	Reason       string           `json:"reason,omitempty"`
}

// RecordMovementRequest is one logical operation: all lines of one
// external document, applied atomically.
type RecordMovementRequest struct {
	ReferenceType   string                `json:"referenceType" validate:"required"`
	ReferenceNumber string                `json:"referenceNumber" validate:"required"`
	Actor           string                `json:"actor" validate:"required"`
	Lines           []MovementLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (r RecordMovementRequest) toOperation() ledger.Operation {
	op := ledger.Operation{
		ReferenceType:   r.ReferenceType,
		ReferenceNumber: r.ReferenceNumber,
		Actor:           r.Actor,
	}
	for _, l := range r.Lines {
		op.Lines = append(op.Lines, ledger.Line{
			Type:       ledger.MovementType(l.MovementType),
			Product:    ledger.ProductKey(l.ProductKey),
			Batch:      ledger.BatchKey(l.BatchKey),
			Location:   ledger.LocationKey(l.LocationKey),
			Quantity:   l.Quantity,
			Weight:     l.Weight,
			OccurredAt: l.OccurredAt,
			Reason:     l.Reason,
		})
	}
	return op
}

// ReverseMovementRequest compensates a previously recorded movement.
type ReverseMovementRequest struct {
	Actor           string           `json:"actor" validate:"required"`
	Reason          string           `json:"reason" validate:"required"`
	PartialQuantity *decimal.Decimal `json:"partialQuantity,omitempty"`
}

// GenerateNumberRequest asks for the next document reference number.
type GenerateNumberRequest struct {
	DocumentType string     `json:"documentType" validate:"required"`
	Date         *time.Time `json:"date,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// MovementDTO is a movement in API responses.
type MovementDTO struct {
	ID              string           `json:"id"`
	Sequence        int64            `json:"sequenceNumber"`
	MovementType    string           `json:"movementType"`
	ProductKey      string           `json:"productKey"`
	BatchKey        string           `json:"batchKey,omitempty"`
	LocationKey     string           `json:"locationKey"`
	Quantity        decimal.Decimal  `json:"quantitySigned"`
	Weight          *decimal.Decimal `json:"weightSigned,omitempty"`
	OccurredAt      time.Time        `json:"occurredAt"`
	RecordedAt      time.Time        `json:"recordedAt"`
	ReferenceType   string           `json:"referenceType"`
	ReferenceNumber string           `json:"referenceNumber"`
	ReversalOf      string           `json:"reversalOfId,omitempty"`
	Actor           string           `json:"actor"`
	Reason          string           `json:"reason,omitempty"`
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:              string(m.ID),
		Sequence:        m.Sequence,
		MovementType:    string(m.Type),
		ProductKey:      string(m.Product),
		BatchKey:        string(m.Batch),
		LocationKey:     string(m.Location),
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
}

func toMovementDTOs(movements []ledger.Movement) []MovementDTO {
	dtos := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		dtos = append(dtos, toMovementDTO(m))
	}
	return dtos
}

// RecordMovementResponse returns the ids of the appended movements in
// line order.
type RecordMovementResponse struct {
	MovementIDs []string `json:"movementIds"`
}

// StockResponse is the answer to a stock-on-hand question.
type StockResponse struct {
	ProductKey  string          `json:"productKey"`
	BatchKey    string          `json:"batchKey,omitempty"`
	LocationKey string          `json:"locationKey,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	AsOf        *time.Time      `json:"asOf,omitempty"`
}

// ReverseMovementResponse returns the id of the compensating movement.
type ReverseMovementResponse struct {
	MovementID string `json:"movementId"`
}

// TraceResponse is the reference graph for audit display.
type TraceResponse struct {
	Reference  string        `json:"reference"`
	Movements  []MovementDTO `json:"movements"`
	Reversals  []MovementDTO `json:"reversals,omitempty"`
	Upstream   []MovementDTO `json:"upstream,omitempty"`
	Downstream []MovementDTO `json:"downstream,omitempty"`
}

// GenerateNumberResponse carries a freshly issued reference number.
type GenerateNumberResponse struct {
	ReferenceNumber string `json:"referenceNumber"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
