/*
handlers_test.go - HTTP surface tests over the in-memory store

Exercises the full request path (router, decoding, shape validation,
error mapping) against the real ledger components. The domain logic has
its own tests; here we care about status codes and wire shapes.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdant/stock-ledger/ledger"
	"github.com/verdant/stock-ledger/ledger/store"
	"github.com/verdant/stock-ledger/logger"
	"github.com/verdant/stock-ledger/numbering"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemory()
	recorder := ledger.NewRecorder(st)
	calc := ledger.NewCalculator(st)
	reverser := ledger.NewReverser(st, recorder)
	tracer := ledger.NewTracer(st)
	numbers := numbering.NewGenerator(numbering.NewMemoryCounters())
	log := logger.New(logger.Config{Env: "test", Level: "error"})

	h := NewHandler(recorder, calc, reverser, tracer, numbers, log)
	srv := httptest.NewServer(NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func recordReceipt(t *testing.T, srv *httptest.Server, ref string, qty string) []string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/movements", map[string]any{
		"referenceType":   "receipt",
		"referenceNumber": ref,
		"actor":           "warehouse-1",
		"lines": []map[string]any{{
			"movementType":   "receipt",
			"productKey":     "SKU-100",
			"batchKey":       "B1",
			"locationKey":    "L1",
			"quantitySigned": qty,
			"occurredAt":     "2026-03-01T09:00:00Z",
		}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[RecordMovementResponse](t, resp).MovementIDs
}

// =============================================================================
// RECORD + STOCK FLOW
// =============================================================================

func TestAPI_RecordThenQueryStock(t *testing.T) {
	srv := newTestServer(t)

	recordReceipt(t, srv, "RCPT-001", "100")

	resp := postJSON(t, srv.URL+"/api/movements", map[string]any{
		"referenceType":   "sale",
		"referenceNumber": "SALE-001",
		"actor":           "register-3",
		"lines": []map[string]any{{
			"movementType":   "sale",
			"productKey":     "SKU-100",
			"batchKey":       "B1",
			"locationKey":    "L1",
			"quantitySigned": "-30",
			"occurredAt":     "2026-03-02T14:00:00Z",
		}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	stockResp, err := http.Get(srv.URL + "/api/stock?product=SKU-100&batch=B1&location=L1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, stockResp.StatusCode)
	stock := decodeBody[StockResponse](t, stockResp)
	assert.Equal(t, "70", stock.Quantity.String())
}

func TestAPI_HistoricalStock(t *testing.T) {
	srv := newTestServer(t)
	recordReceipt(t, srv, "RCPT-001", "100")

	resp, err := http.Get(srv.URL + "/api/stock/history?product=SKU-100&asOf=2026-02-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stock := decodeBody[StockResponse](t, resp)
	assert.Equal(t, "0", stock.Quantity.String(), "before the receipt there was nothing")
}

func TestAPI_MovementHistory(t *testing.T) {
	srv := newTestServer(t)
	recordReceipt(t, srv, "RCPT-001", "100")

	resp, err := http.Get(srv.URL + "/api/movements?product=SKU-100")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decodeBody[[]MovementDTO](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, "receipt", history[0].MovementType)
	assert.Greater(t, history[0].Sequence, int64(0))
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestAPI_ReverseMovement(t *testing.T) {
	srv := newTestServer(t)
	ids := recordReceipt(t, srv, "RCPT-001", "100")

	resp := postJSON(t, srv.URL+"/api/movements/"+ids[0]+"/reverse", map[string]any{
		"actor":  "manager-1",
		"reason": "received in error",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rev := decodeBody[ReverseMovementResponse](t, resp)
	assert.NotEmpty(t, rev.MovementID)

	stockResp, err := http.Get(srv.URL + "/api/stock?product=SKU-100&batch=B1&location=L1")
	require.NoError(t, err)
	stock := decodeBody[StockResponse](t, stockResp)
	assert.Equal(t, "0", stock.Quantity.String())
}

func TestAPI_ReverseUnknownMovementIs404(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/movements/no-such-id/reverse", map[string]any{
		"actor":  "manager-1",
		"reason": "oops",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DoubleFullReversalIs409(t *testing.T) {
	srv := newTestServer(t)
	ids := recordReceipt(t, srv, "RCPT-001", "100")

	body := map[string]any{"actor": "manager-1", "reason": "dup"}
	first := postJSON(t, srv.URL+"/api/movements/"+ids[0]+"/reverse", body)
	first.Body.Close()
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := postJSON(t, srv.URL+"/api/movements/"+ids[0]+"/reverse", body)
	defer second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_InsufficientStockIs409(t *testing.T) {
	srv := newTestServer(t)
	recordReceipt(t, srv, "RCPT-001", "10")

	resp := postJSON(t, srv.URL+"/api/movements", map[string]any{
		"referenceType":   "sale",
		"referenceNumber": "SALE-001",
		"actor":           "register-3",
		"lines": []map[string]any{{
			"movementType":   "sale",
			"productKey":     "SKU-100",
			"batchKey":       "B1",
			"locationKey":    "L1",
			"quantitySigned": "-30",
			"occurredAt":     "2026-03-02T14:00:00Z",
		}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, errBody.Error, "insufficient")
}

func TestAPI_DomainValidationIs400(t *testing.T) {
	srv := newTestServer(t)

	// Wrong sign for a receipt.
	resp := postJSON(t, srv.URL+"/api/movements", map[string]any{
		"referenceType":   "receipt",
		"referenceNumber": "RCPT-001",
		"actor":           "warehouse-1",
		"lines": []map[string]any{{
			"movementType":   "receipt",
			"productKey":     "SKU-100",
			"locationKey":    "L1",
			"quantitySigned": "-5",
			"occurredAt":     "2026-03-01T09:00:00Z",
		}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ShapeValidationIs400(t *testing.T) {
	srv := newTestServer(t)

	for name, body := range map[string]map[string]any{
		"missing actor": {
			"referenceType":   "receipt",
			"referenceNumber": "RCPT-001",
			"lines":           []map[string]any{},
		},
		"no lines": {
			"referenceType":   "receipt",
			"referenceNumber": "RCPT-001",
			"actor":           "warehouse-1",
			"lines":           []map[string]any{},
		},
	} {
		resp := postJSON(t, srv.URL+"/api/movements", body)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestAPI_MalformedJSONIs400(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/movements", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StockRequiresProduct(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/stock?batch=B1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// TRACE AND NUMBERS
// =============================================================================

func TestAPI_TraceReference(t *testing.T) {
	srv := newTestServer(t)
	recordReceipt(t, srv, "RCPT-001", "100")

	resp, err := http.Get(srv.URL + "/api/trace/RCPT-001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	graph := decodeBody[TraceResponse](t, resp)
	assert.Equal(t, "RCPT-001", graph.Reference)
	require.Len(t, graph.Movements, 1)

	missing, err := http.Get(srv.URL + "/api/trace/NOPE-999")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAPI_GenerateNumber(t *testing.T) {
	srv := newTestServer(t)

	for i := 1; i <= 2; i++ {
		resp := postJSON(t, srv.URL+"/api/numbers", map[string]any{
			"documentType": "sale",
			"date":         "2026-03-01T00:00:00Z",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		out := decodeBody[GenerateNumberResponse](t, resp)
		assert.Equal(t, fmt.Sprintf("SALE-20260301-%04d", i), out.ReferenceNumber)
	}
}
