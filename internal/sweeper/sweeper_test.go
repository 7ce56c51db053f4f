package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/cache"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
	"github.com/MagnunAVF/shortener-core/internal/shortener"
	"github.com/MagnunAVF/shortener-core/internal/store"
	tu "github.com/MagnunAVF/shortener-core/internal/testutil"
)

var now = time.Date(2025, 6, 20, 3, 0, 0, 0, time.UTC)

func expiring(id int64, code string, expiresAt time.Time) *internal.URLRecord {
	return &internal.URLRecord{
		ID: id, Code: code, LongURL: "https://example.com/" + code, ShortURL: "https://sho.rt/" + code,
		CreatedAt: expiresAt.Add(-24 * time.Hour), ExpiresAt: &expiresAt,
	}
}

func TestSweepHonoursGraceAndTombstones(t *testing.T) {
	ctx := context.Background()
	db := tu.NewTestDB(t)
	records, clicks := store.NewRecords(db), store.NewClicks(db)
	m := metrics.NewNop()
	mem := cache.NewMemory(0)
	cached := shortener.NewCachedStore(records, mem, m)

	old := expiring(1, "old0001", now.Add(-8*24*time.Hour))
	fresh := expiring(2, "new0001", now.Add(-6*24*time.Hour))
	require.NoError(t, cached.Create(ctx, old))
	require.NoError(t, cached.Create(ctx, fresh))
	_, err := clicks.InsertClicks(ctx, []internal.ClickEvent{{URLID: 1, Code: "old0001", ClickedAt: now.Add(-9 * 24 * time.Hour)}})
	require.NoError(t, err)

	s := New(cached, DefaultGrace, time.Hour, func() time.Time { return now }, m)
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = records.FindByCode(ctx, "old0001")
	assert.ErrorIs(t, err, internal.ErrNotFound)
	_, hit, err := mem.Get(ctx, "old0001")
	assert.ErrorIs(t, err, internal.ErrNotFound)
	assert.False(t, hit)
	left, err := clicks.CountForURL(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, left)

	// expired but still inside the grace period
	_, err = records.FindByCode(ctx, "new0001")
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSwept))
}

type countingPurger struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	err     error
}

func (c *countingPurger) DeleteExpiredBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.cutoffs = append(c.cutoffs, cutoff)
	return nil, c.err
}

func (c *countingPurger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunSweepsImmediatelyAndOnTicks(t *testing.T) {
	p := &countingPurger{err: errors.New("db down")}
	s := New(p, time.Hour, 10*time.Millisecond, func() time.Time { return now }, metrics.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, now.Add(-time.Hour), p.cutoffs[0])
}
