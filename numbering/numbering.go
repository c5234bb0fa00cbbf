/*
Package numbering generates the reference numbers stamped on external
documents (sales, transfers, adjustments) before their movements enter
the ledger.

FORMAT:
  TYPE-YYYYMMDD-NNNN, e.g. SALE-20260831-0007. Unique per document type
  and day, human-readable, and sortable within a day.

DURABILITY:
  The counter never lives only in process memory. Each (type, day) scope
  is a row in a CounterStore - the SQLite store in production - so a
  restart continues the sequence instead of re-issuing numbers.
*/
package numbering

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CounterStore hands out strictly increasing values per scope, durably.
// store/sqlite implements this with an atomic upsert.
type CounterStore interface {
	Increment(ctx context.Context, scope string) (int64, error)
}

// Generator produces document reference numbers.
type Generator struct {
	counters CounterStore

	Now func() time.Time
}

func NewGenerator(counters CounterStore) *Generator {
	return &Generator{counters: counters, Now: func() time.Time { return time.Now().UTC() }}
}

// Next returns the next reference number for the document type, scoped to
// the given date's day (zero date = today). Safe under concurrent callers
// and across process restarts. Document types are restricted to letters
// and digits: the hyphen is the format separator, and a type like
// "SALE-X" would make the generated number ambiguous to parse and its
// counter scope collide with other types.
func (g *Generator) Next(ctx context.Context, docType string, date time.Time) (string, error) {
	if docType == "" {
		return "", fmt.Errorf("document type is required")
	}
	if !alphanumeric(docType) {
		return "", fmt.Errorf("document type %q may only contain letters and digits", docType)
	}
	if date.IsZero() {
		date = g.Now()
	}
	day := date.UTC().Format("20060102")
	prefix := strings.ToUpper(docType)

	n, err := g.counters.Increment(ctx, prefix+"-"+day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, day, n), nil
}

func alphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
		case 'A' <= r && r <= 'Z':
		case '0' <= r && r <= '9':
		default:
			return false
		}
	}
	return true
}

// =============================================================================
// MEMORY COUNTERS - for tests
// =============================================================================

type MemoryCounters struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{values: make(map[string]int64)}
}

func (m *MemoryCounters) Increment(_ context.Context, scope string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[scope]++
	return m.values[scope], nil
}
