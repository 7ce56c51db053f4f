package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/store"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	breakdownLimit    = 10
)

type ClickReader interface {
	DailyCounts(ctx context.Context, urlID int64, since time.Time) ([]internal.DailyCount, error)
	Breakdown(ctx context.Context, urlID int64, dim store.Dimension, since time.Time, limit int) ([]internal.Bucket, error)
}

type Aggregator struct {
	clicks ClickReader
	now    func() time.Time
}

func NewAggregator(clicks ClickReader, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{clicks: clicks, now: now}
}

// ForURL reports rec's clicks over the last windowDays days: a per UTC day
// series, its total, and the top values of each breakdown axis.
func (a *Aggregator) ForURL(ctx context.Context, rec *internal.URLRecord, windowDays int) (*internal.Analytics, error) {
	switch {
	case windowDays <= 0:
		windowDays = DefaultWindowDays
	case windowDays > MaxWindowDays:
		windowDays = MaxWindowDays
	}
	since := a.now().UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)

	out := &internal.Analytics{Code: rec.Code, WindowDays: windowDays}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		days, err := a.clicks.DailyCounts(gctx, rec.ID, since)
		if err != nil {
			return err
		}
		if days == nil {
			days = []internal.DailyCount{}
		}
		for _, d := range days {
			out.TotalClicks += d.Count
		}
		out.DailyClicks = days
		return nil
	})
	axes := []struct {
		dim  store.Dimension
		dest *[]internal.Bucket
	}{
		{store.DimensionCountry, &out.Countries},
		{store.DimensionDevice, &out.Devices},
		{store.DimensionBrowser, &out.Browsers},
		{store.DimensionReferrer, &out.Referrers},
	}
	for _, axis := range axes {
		g.Go(func() error {
			buckets, err := a.clicks.Breakdown(gctx, rec.ID, axis.dim, since, breakdownLimit)
			if err != nil {
				return err
			}
			if buckets == nil {
				buckets = []internal.Bucket{}
			}
			*axis.dest = buckets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
