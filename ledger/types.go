/*
types.go - Movement records and the closed movement-type enumeration

PURPOSE:
  Defines the single durable fact of the system: the Movement, a signed
  quantity change for a product/batch/location at a point in time. Every
  stock question (current, historical, traceability) is answered by
  replaying movements - there is no mutable "current stock" field anywhere.

KEY CONCEPTS IN THIS FILE:
  - Movement: An immutable ledger entry recording one quantity change
  - MovementType: Closed enumeration of the ~16 movement kinds
  - Key: The (product, batch, location) tuple stock is aggregated over
  - Operation: One external document's worth of proposed movements

DESIGN PRINCIPLES:
  1. Immutability: Movements are never modified, only compensated
  2. Precision: decimal.Decimal for quantities and weights, never float
  3. Closed types: New movement kinds require an explicit, reviewed
     addition to the enum, not a new string value
  4. Opaque keys: Product/batch/location identifiers are not resolved
     here; cross-module linkage is the Traceability Service's job

SEE ALSO:
  - store.go: Append-only persistence contract
  - recorder.go: The only write path
  - soh.go: Derived stock-on-hand
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MovementID string
type ProductKey string
type BatchKey string
type LocationKey string

// Key identifies the tuple stock-on-hand is computed for. Batch and
// Location may be empty in queries, meaning "across all batches" or
// "across all locations". Write-path guards always use fully-qualified
// keys.
type Key struct {
	Product  ProductKey
	Batch    BatchKey
	Location LocationKey
}

// =============================================================================
// MOVEMENT TYPE - Closed enumeration
// =============================================================================

type MovementType string

const (
	TypeReceipt            MovementType = "receipt"
	TypeSale               MovementType = "sale"
	TypeSaleReversal       MovementType = "sale_reversal"
	TypeTransferOut        MovementType = "transfer_out"
	TypeTransferIn         MovementType = "transfer_in"
	TypeAdjustmentIncrease MovementType = "adjustment_increase"
	TypeAdjustmentDecrease MovementType = "adjustment_decrease"
	TypeWaste              MovementType = "waste"
	TypeDestruction        MovementType = "destruction"
	TypeProductionInput    MovementType = "production_input"
	TypeProductionOutput   MovementType = "production_output"
	TypeReturnIn           MovementType = "return_in"
	TypeReturnOut          MovementType = "return_out"
	TypeInitialCount       MovementType = "initial_count"
	TypeRecountIncrease    MovementType = "recount_increase"
	TypeRecountDecrease    MovementType = "recount_decrease"
)

// typeSpec captures the per-kind discipline: the required quantity sign,
// whether a reason is mandatory, and whether the write path must refuse
// the movement if it would drive stock-on-hand below zero.
type typeSpec struct {
	sign           int // +1 increase, -1 decrease
	requiresReason bool
	guardsNegative bool
}

var typeSpecs = map[MovementType]typeSpec{
	TypeReceipt:            {sign: +1},
	TypeSale:               {sign: -1, guardsNegative: true},
	TypeSaleReversal:       {sign: +1, requiresReason: true},
	TypeTransferOut:        {sign: -1, guardsNegative: true},
	TypeTransferIn:         {sign: +1},
	TypeAdjustmentIncrease: {sign: +1, requiresReason: true},
	TypeAdjustmentDecrease: {sign: -1, requiresReason: true, guardsNegative: true},
	TypeWaste:              {sign: -1, requiresReason: true, guardsNegative: true},
	TypeDestruction:        {sign: -1, requiresReason: true, guardsNegative: true},
	TypeProductionInput:    {sign: -1, guardsNegative: true},
	TypeProductionOutput:   {sign: +1},
	TypeReturnIn:           {sign: +1},
	TypeReturnOut:          {sign: -1, guardsNegative: true},
	TypeInitialCount:       {sign: +1},
	TypeRecountIncrease:    {sign: +1, requiresReason: true},
	TypeRecountDecrease:    {sign: -1, requiresReason: true, guardsNegative: true},
}

// Known reports whether t is part of the closed enumeration.
func (t MovementType) Known() bool {
	_, ok := typeSpecs[t]
	return ok
}

// Sign returns the required sign of the quantity: +1 or -1.
func (t MovementType) Sign() int { return typeSpecs[t].sign }

// RequiresReason reports whether movements of this kind must carry a
// non-empty reason (adjustments, waste, destruction, reversals, recounts).
func (t MovementType) RequiresReason() bool { return typeSpecs[t].requiresReason }

// GuardsNegative reports whether the write path must check stock-on-hand
// before accepting a movement of this kind.
func (t MovementType) GuardsNegative() bool { return typeSpecs[t].guardsNegative }

// ReversalType returns the movement type a compensation entry for t uses.
// A reversed sale becomes a sale_reversal; everything else compensates
// with the adjustment of the opposite sign.
func (t MovementType) ReversalType() MovementType {
	if t == TypeSale {
		return TypeSaleReversal
	}
	if typeSpecs[t].sign > 0 {
		return TypeAdjustmentDecrease
	}
	return TypeAdjustmentIncrease
}

// =============================================================================
// MOVEMENT - The sole durable fact
// =============================================================================

// Movement is one immutable, signed quantity change. Once appended it is
// never updated or deleted; corrections append a compensating movement
// with ReversalOf set.
type Movement struct {
	ID       MovementID
	Sequence int64 // assigned by the store; tie-break for equal OccurredAt
	Type     MovementType

	Product  ProductKey
	Batch    BatchKey // optional; required for regulated categories
	Location LocationKey

	// Positive = increase, negative = decrease. Never zero.
	Quantity decimal.Decimal
	// Optional parallel weight for by-weight goods, same sign convention.
	Weight *decimal.Decimal

	// OccurredAt is the logical event time; RecordedAt is the write time.
	// They differ for batch-entered historical events.
	OccurredAt time.Time
	RecordedAt time.Time

	// Link to the external document that caused this movement.
	ReferenceType   string
	ReferenceNumber string

	// Set to the compensated movement's ID on reversal entries.
	ReversalOf MovementID

	Actor  string
	Reason string
}

// Key returns the fully-qualified aggregation key of the movement.
func (m Movement) Key() Key {
	return Key{Product: m.Product, Batch: m.Batch, Location: m.Location}
}

// IsReversal reports whether this movement compensates another.
func (m Movement) IsReversal() bool { return m.ReversalOf != "" }

// =============================================================================
// OPERATION - One external document's worth of movements
// =============================================================================

// Operation is the write-path input: all lines of one logical operation
// (a sale with several line items, a transfer, a production run). The
// whole operation is appended atomically or not at all.
type Operation struct {
	ReferenceType   string
	ReferenceNumber string
	Actor           string
	Lines           []Line
}

// Line is one proposed movement within an operation.
type Line struct {
	Type       MovementType
	Product    ProductKey
	Batch      BatchKey
	Location   LocationKey
	Quantity   decimal.Decimal
	Weight     *decimal.Decimal
	OccurredAt time.Time
	Reason     string
	ReversalOf MovementID
}

// validate checks the record invariants that need no store access. now
// bounds OccurredAt: the ledger records what happened, never what is
// scheduled to happen, and admitting future event times would let a
// record hide from as-of queries until its time arrives.
func (l Line) validate(index int, now time.Time) error {
	if !l.Type.Known() {
		return &ValidationError{Line: index, Field: "type", Message: "unknown movement type"}
	}
	if l.Product == "" {
		return &ValidationError{Line: index, Field: "product", Message: "product key is required"}
	}
	if l.Location == "" {
		return &ValidationError{Line: index, Field: "location", Message: "location key is required"}
	}
	if l.Quantity.IsZero() {
		return &ValidationError{Line: index, Field: "quantity", Message: "quantity must not be zero"}
	}
	if l.Type.Sign() > 0 && l.Quantity.IsNegative() || l.Type.Sign() < 0 && l.Quantity.IsPositive() {
		return &ValidationError{Line: index, Field: "quantity", Message: "quantity sign does not match movement type"}
	}
	if l.Weight != nil {
		if l.Weight.IsZero() {
			return &ValidationError{Line: index, Field: "weight", Message: "weight must not be zero when present"}
		}
		if l.Weight.Sign() != l.Quantity.Sign() {
			return &ValidationError{Line: index, Field: "weight", Message: "weight sign must match quantity sign"}
		}
	}
	if (l.Type.RequiresReason() || l.ReversalOf != "") && l.Reason == "" {
		return &ValidationError{Line: index, Field: "reason", Message: "reason is required for this movement type"}
	}
	if l.OccurredAt.IsZero() {
		return &ValidationError{Line: index, Field: "occurredAt", Message: "event time is required"}
	}
	if l.OccurredAt.After(now) {
		return &ValidationError{Line: index, Field: "occurredAt", Message: "event time cannot be in the future"}
	}
	return nil
}
