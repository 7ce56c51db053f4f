package shortener

import (
	"context"
	"sync"
	"time"

	"github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

type ClickIncrementer interface {
	IncrementClickCount(ctx context.Context, code string, at time.Time) error
}

// ClickCounter bumps click counters off the request path. Each hit runs on
// its own goroutine with a fresh context, so a finished request never
// cancels its increment.
type ClickCounter struct {
	store   ClickIncrementer
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewClickCounter(store ClickIncrementer, timeout time.Duration, m *metrics.Metrics) *ClickCounter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ClickCounter{store: store, timeout: timeout, metrics: m}
}

func (c *ClickCounter) RecordHit(code string, at time.Time) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.store.IncrementClickCount(ctx, code, at); err != nil {
			c.metrics.ClickIncrementFailures.Inc()
			logger.Default().Error("Failed to increment click count", "code", code, "err", err)
		}
	}()
}

// Wait blocks until every increment started so far has finished.
func (c *ClickCounter) Wait() {
	c.wg.Wait()
}
