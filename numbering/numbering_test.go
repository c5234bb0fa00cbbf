package numbering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, time.August, 31, 10, 30, 0, 0, time.UTC)
}

func TestNext_Format(t *testing.T) {
	g := NewGenerator(NewMemoryCounters())
	g.Now = fixedClock

	n1, err := g.Next(context.Background(), "sale", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "SALE-20260831-0001", n1)

	n2, err := g.Next(context.Background(), "SALE", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "SALE-20260831-0002", n2, "type is case-insensitive")
}

func TestNext_ScopedPerTypeAndDay(t *testing.T) {
	g := NewGenerator(NewMemoryCounters())
	g.Now = fixedClock
	ctx := context.Background()

	g.Next(ctx, "sale", time.Time{})
	g.Next(ctx, "sale", time.Time{})

	rcpt, err := g.Next(ctx, "rcpt", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "RCPT-20260831-0001", rcpt, "each type counts independently")

	nextDay := fixedClock().AddDate(0, 0, 1)
	sale, err := g.Next(ctx, "sale", nextDay)
	require.NoError(t, err)
	assert.Equal(t, "SALE-20260901-0001", sale, "each day counts independently")
}

func TestNext_RequiresDocumentType(t *testing.T) {
	g := NewGenerator(NewMemoryCounters())
	_, err := g.Next(context.Background(), "", time.Time{})
	assert.Error(t, err)
}

func TestNext_ConcurrentCallersGetUniqueNumbers(t *testing.T) {
	g := NewGenerator(NewMemoryCounters())
	g.Now = fixedClock

	const n = 50
	var wg sync.WaitGroup
	numbers := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			num, err := g.Next(context.Background(), "sale", time.Time{})
			if err != nil {
				t.Error(err)
				return
			}
			numbers[i] = num
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, num := range numbers {
		assert.False(t, seen[num], "duplicate number issued: %s", num)
		seen[num] = true
	}
}

func TestNext_RejectsNonAlphanumericType(t *testing.T) {
	g := NewGenerator(NewMemoryCounters())

	for _, docType := range []string{"sale-x", "sale x", "sale_x"} {
		_, err := g.Next(context.Background(), docType, time.Time{})
		assert.Error(t, err, "type %q must be rejected, the hyphen is the format separator", docType)
	}
}
