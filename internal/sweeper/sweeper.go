// Package sweeper purges links that have been expired for longer than a
// grace period.
package sweeper

import (
	"context"
	"time"

	"github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

const (
	DefaultGrace    = 7 * 24 * time.Hour
	DefaultInterval = 24 * time.Hour
)

// Purger deletes records expired before cutoff and reports their codes.
// Pass the cache-fronted store so purged codes leave the cache too.
type Purger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Sweeper struct {
	store    Purger
	grace    time.Duration
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
}

func New(store Purger, grace, interval time.Duration, now func() time.Time, m *metrics.Metrics) *Sweeper {
	if grace < 0 {
		grace = DefaultGrace
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, grace: grace, interval: interval, now: now, metrics: m}
}

// Sweep runs one purge and returns how many records it removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.grace)
	codes, err := s.store.DeleteExpiredBefore(ctx, cutoff)
	n := int64(len(codes))
	s.metrics.RecordsSwept.Add(float64(n))
	if err != nil {
		return n, err
	}
	if n > 0 {
		logger.FromContext(ctx).Info("Purged expired links", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run sweeps once right away and then on every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.FromContext(ctx).Error("Expiration sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
