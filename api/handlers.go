/*
handlers.go - HTTP handlers for the ledger's boundary operations

ENDPOINTS:
  POST /api/movements               RecordMovement (one operation, atomic)
  GET  /api/movements               GetMovementHistory
  POST /api/movements/{id}/reverse  ReverseMovement
  GET  /api/stock                   GetCurrentStock
  GET  /api/stock/history           GetHistoricalStock (asOf)
  GET  /api/trace/{reference}       TraceReference
  POST /api/numbers                 Generate a document reference number

ERROR MAPPING:
  400  validation failures (shape or domain invariants)
  404  unknown movement id or reference
  409  insufficient stock, already fully reversed, write conflicts
  500  everything else
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/verdant/stock-ledger/ledger"
	"github.com/verdant/stock-ledger/logger"
	"github.com/verdant/stock-ledger/numbering"
)

// Handler holds the ledger components the API fronts.
type Handler struct {
	recorder *ledger.Recorder
	calc     *ledger.Calculator
	reverser *ledger.Reverser
	tracer   *ledger.Tracer
	numbers  *numbering.Generator
	log      *logger.Logger
	validate *validator.Validate
}

func NewHandler(
	recorder *ledger.Recorder,
	calc *ledger.Calculator,
	reverser *ledger.Reverser,
	tracer *ledger.Tracer,
	numbers *numbering.Generator,
	log *logger.Logger,
) *Handler {
	return &Handler{
		recorder: recorder,
		calc:     calc,
		reverser: reverser,
		tracer:   tracer,
		numbers:  numbers,
		log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// RecordMovement handles POST /api/movements.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req RecordMovementRequest
	if !h.decode(w, r, &req) {
		return
	}

	ids, err := h.recorder.Record(r.Context(), req.toOperation())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().
		Str("reference", req.ReferenceNumber).
		Int("lines", len(ids)).
		Msg("movements recorded")

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	h.writeJSON(w, http.StatusCreated, RecordMovementResponse{MovementIDs: out})
}

// ReverseMovement handles POST /api/movements/{id}/reverse.
func (h *Handler) ReverseMovement(w http.ResponseWriter, r *http.Request) {
	id := ledger.MovementID(chi.URLParam(r, "id"))

	var req ReverseMovementRequest
	if !h.decode(w, r, &req) {
		return
	}

	newID, err := h.reverser.Reverse(r.Context(), id, req.Actor, req.Reason, req.PartialQuantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().
		Str("original", string(id)).
		Str("reversal", string(newID)).
		Msg("movement reversed")

	h.writeJSON(w, http.StatusCreated, ReverseMovementResponse{MovementID: string(newID)})
}

// GenerateNumber handles POST /api/numbers.
func (h *Handler) GenerateNumber(w http.ResponseWriter, r *http.Request) {
	var req GenerateNumberRequest
	if !h.decode(w, r, &req) {
		return
	}

	date := time.Time{}
	if req.Date != nil {
		date = *req.Date
	}
	number, err := h.numbers.Next(r.Context(), req.DocumentType, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, GenerateNumberResponse{ReferenceNumber: number})
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// CurrentStock handles GET /api/stock?product=..&batch=..&location=..
func (h *Handler) CurrentStock(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}

	qty, err := h.calc.CurrentSOH(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StockResponse{
		ProductKey:  string(key.Product),
		BatchKey:    string(key.Batch),
		LocationKey: string(key.Location),
		Quantity:    qty,
	})
}

// HistoricalStock handles GET /api/stock/history?product=..&asOf=RFC3339
func (h *Handler) HistoricalStock(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}
	asOf, err := time.Parse(time.RFC3339, r.URL.Query().Get("asOf"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "asOf must be an RFC3339 timestamp"})
		return
	}

	qty, err := h.calc.HistoricalSOH(r.Context(), key, asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StockResponse{
		ProductKey:  string(key.Product),
		BatchKey:    string(key.Batch),
		LocationKey: string(key.Location),
		Quantity:    qty,
		AsOf:        &asOf,
	})
}

// MovementHistory handles GET /api/movements?product=..&from=..&to=..
func (h *Handler) MovementHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}
	from, ok := h.optionalTime(w, r, "from")
	if !ok {
		return
	}
	to, ok := h.optionalTime(w, r, "to")
	if !ok {
		return
	}

	movements, err := h.tracer.History(r.Context(), key, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// TraceReference handles GET /api/trace/{reference}.
func (h *Handler) TraceReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	graph, err := h.tracer.Trace(r.Context(), reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, TraceResponse{
		Reference:  graph.Reference,
		Movements:  toMovementDTOs(graph.Movements),
		Reversals:  toMovementDTOs(graph.Reversals),
		Upstream:   toMovementDTOs(graph.Upstream),
		Downstream: toMovementDTOs(graph.Downstream),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) keyFromQuery(w http.ResponseWriter, r *http.Request) (ledger.Key, bool) {
	q := r.URL.Query()
	key := ledger.Key{
		Product:  ledger.ProductKey(q.Get("product")),
		Batch:    ledger.BatchKey(q.Get("batch")),
		Location: ledger.LocationKey(q.Get("location")),
	}
	if key.Product == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "product query parameter is required"})
		return ledger.Key{}, false
	}
	return key, true
}

func (h *Handler) optionalTime(w http.ResponseWriter, r *http.Request, param string) (*time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: param + " must be an RFC3339 timestamp"})
		return nil, false
	}
	return &t, true
}

// decode parses and shape-validates the request body. Returns false after
// writing the error response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrAlreadyFullyReversed),
		errors.Is(err, ledger.ErrConcurrencyConflict),
		errors.Is(err, ledger.ErrDuplicateMovement):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("internal error")
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}
