package ledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/verdant/stock-ledger/ledger"
)

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_OrderedByOccurrence(t *testing.T) {
	// GIVEN: movements appended out of event order
	// WHEN: reading the history for the key
	// THEN: results come back ordered by OccurredAt

	rec, st := newRecorder()
	ctx := context.Background()

	rec.Record(ctx, receiptOp("RCPT-002", "SKU-100", "B1", "L1", 50, at(3, 9)))
	rec.Record(ctx, receiptOp("RCPT-001", "SKU-100", "B1", "L1", 100, at(1, 9)))
	rec.Record(ctx, saleOp("SALE-001", "SKU-100", "B1", "L1", 30, at(2, 14)))

	tracer := ledger.NewTracer(st)
	history, err := tracer.History(ctx, b1l1(), nil, nil)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(history))
	}
	refs := []string{history[0].ReferenceNumber, history[1].ReferenceNumber, history[2].ReferenceNumber}
	if refs[0] != "RCPT-001" || refs[1] != "SALE-001" || refs[2] != "RCPT-002" {
		t.Errorf("wrong replay order: %v", refs)
	}
}

func TestHistory_BoundedByRange(t *testing.T) {
	rec, st := newRecorder()
	ctx := context.Background()

	rec.Record(ctx, receiptOp("RCPT-001", "SKU-100", "B1", "L1", 100, at(1, 9)))
	rec.Record(ctx, saleOp("SALE-001", "SKU-100", "B1", "L1", 30, at(2, 14)))
	rec.Record(ctx, saleOp("SALE-002", "SKU-100", "B1", "L1", 10, at(4, 14)))

	from, to := at(2, 0), at(3, 0)
	tracer := ledger.NewTracer(st)
	history, err := tracer.History(ctx, b1l1(), &from, &to)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ReferenceNumber != "SALE-001" {
		t.Errorf("range filter failed: %+v", history)
	}
}

// =============================================================================
// TRACE GRAPH
// =============================================================================

func TestTrace_SaleLinksUpstreamReceiptAndReversal(t *testing.T) {
	// GIVEN: a batch received under RCPT-001, sold under SALE-001, and the
	//        sale later reversed
	// WHEN: tracing SALE-001
	// THEN: the graph carries the sale, its reversal, and the receipt as
	//       upstream batch lineage

	rec, st := newRecorder()
	ctx := context.Background()

	rec.Record(ctx, receiptOp("RCPT-001", "SKU-100", "B1", "L1", 100, at(1, 9)))
	saleIDs, _ := rec.Record(ctx, saleOp("SALE-001", "SKU-100", "B1", "L1", 30, at(2, 14)))

	rv := ledger.NewReverser(st, rec)
	if _, err := rv.Reverse(ctx, saleIDs[0], "manager-1", "return", nil); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	tracer := ledger.NewTracer(st)
	graph, err := tracer.Trace(ctx, "SALE-001")
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}

	if len(graph.Movements) != 2 {
		// the sale plus its reversal (reversals reuse the reference)
		t.Errorf("expected 2 movements under SALE-001, got %d", len(graph.Movements))
	}
	foundUpstream := false
	for _, m := range graph.Upstream {
		if m.ReferenceNumber == "RCPT-001" {
			foundUpstream = true
		}
	}
	if !foundUpstream {
		t.Error("receipt missing from upstream lineage")
	}
}

func TestTrace_ReceiptLinksDownstreamConsumers(t *testing.T) {
	rec, st := newRecorder()
	ctx := context.Background()

	rec.Record(ctx, receiptOp("RCPT-001", "SKU-100", "B1", "L1", 100, at(1, 9)))
	rec.Record(ctx, saleOp("SALE-001", "SKU-100", "B1", "L1", 30, at(2, 14)))
	rec.Record(ctx, adjustDownOp("ADJ-001", "SKU-100", "B1", "L1", 5, at(3, 10), "damage"))

	tracer := ledger.NewTracer(st)
	graph, err := tracer.Trace(ctx, "RCPT-001")
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}

	if len(graph.Downstream) != 2 {
		t.Errorf("expected 2 downstream consumers of the batch, got %d", len(graph.Downstream))
	}
}

func TestTrace_UnknownReference(t *testing.T) {
	_, st := newRecorder()
	tracer := ledger.NewTracer(st)

	_, err := tracer.Trace(context.Background(), "NOPE-999")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportBefore_WritesJSONLinesAndKeepsTheLog(t *testing.T) {
	// GIVEN: three movements, two before the cutoff
	// WHEN: exporting
	// THEN: two JSON lines are written and the store still has all three

	rec, st := newRecorder()
	ctx := context.Background()

	rec.Record(ctx, receiptOp("RCPT-001", "SKU-100", "B1", "L1", 100, at(1, 9)))
	rec.Record(ctx, saleOp("SALE-001", "SKU-100", "B1", "L1", 30, at(2, 14)))
	rec.Record(ctx, saleOp("SALE-002", "SKU-100", "B1", "L1", 10, at(9, 14)))

	var buf bytes.Buffer
	n, err := ledger.NewExporter(st).ExportBefore(ctx, at(5, 0), &buf)
	if err != nil {
		t.Fatalf("ExportBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 exported records, got %d", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", len(lines))
	}
	for _, line := range lines {
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			t.Fatalf("export line is not valid JSON: %v", err)
		}
	}

	all, err := st.Read(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("export must not remove rows; %d remain", len(all))
	}
}
