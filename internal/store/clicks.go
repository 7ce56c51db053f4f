package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MagnunAVF/shortener-core/internal"
	applog "github.com/MagnunAVF/shortener-core/internal/logger"
)

const insertBatchSize = 100

type Dimension string

const (
	DimensionCountry  Dimension = "country"
	DimensionDevice   Dimension = "device"
	DimensionBrowser  Dimension = "browser"
	DimensionReferrer Dimension = "referrer"
	DimensionOS       Dimension = "os"
)

var dimensionColumns = map[Dimension]string{
	DimensionCountry:  "country",
	DimensionDevice:   "device_type",
	DimensionBrowser:  "browser",
	DimensionReferrer: "referer",
	DimensionOS:       "os",
}

type Clicks struct {
	db *gorm.DB
}

func NewClicks(db *gorm.DB) *Clicks {
	return &Clicks{db: db}
}

// InsertClicks stores a batch of events and returns how many were written.
// Events are idempotent on their id, so a redelivered batch is harmless.
// Events whose link was deleted in the meantime are dropped.
func (c *Clicks) InsertClicks(ctx context.Context, events []internal.ClickEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	for i := range events {
		events[i].ClickedAt = events[i].ClickedAt.UTC()
	}

	err := c.insert(ctx, events)
	if err == nil {
		return len(events), nil
	}
	if !isForeignKeyViolation(err) {
		return 0, translate(err)
	}

	// some link went away under us, find out which events still have a parent
	written := 0
	for i := range events {
		err := c.insert(ctx, events[i:i+1])
		switch {
		case err == nil:
			written++
		case isForeignKeyViolation(err):
			applog.FromContext(ctx).Warn("Dropping click for deleted link",
				"code", events[i].Code, "url_id", events[i].URLID)
		default:
			return written, translate(err)
		}
	}
	return written, nil
}

func (c *Clicks) insert(ctx context.Context, events []internal.ClickEvent) error {
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(events, insertBatchSize).Error
}

// DailyCounts counts urlID's clicks at or after since per UTC calendar day,
// oldest day first. Days without clicks are absent.
func (c *Clicks) DailyCounts(ctx context.Context, urlID int64, since time.Time) ([]internal.DailyCount, error) {
	day := c.dayExpr()
	days := []internal.DailyCount{}
	err := c.db.WithContext(ctx).Model(&internal.ClickEvent{}).
		Select(day+" AS day, COUNT(*) AS hits").
		Where("url_id = ? AND clicked_at >= ?", urlID, since.UTC()).
		Group(day).
		Order("day ASC").
		Scan(&days).Error
	if err != nil {
		return nil, translate(err)
	}
	return days, nil
}

// dayExpr renders clicked_at as YYYY-MM-DD in UTC. SQLite keeps times as
// UTC text, so the date is its first ten characters.
func (c *Clicks) dayExpr() string {
	if c.db.Dialector.Name() == DriverPostgres {
		return "to_char(clicked_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "substr(clicked_at, 1, 10)"
}

// Breakdown counts urlID's clicks since the given time by one dimension,
// skipping unknown values. Most frequent first, ties by label, at most limit rows.
func (c *Clicks) Breakdown(ctx context.Context, urlID int64, dim Dimension, since time.Time, limit int) ([]internal.Bucket, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return nil, fmt.Errorf("unknown breakdown dimension %q", dim)
	}

	buckets := []internal.Bucket{}
	err := c.db.WithContext(ctx).Model(&internal.ClickEvent{}).
		Select(col+" AS label, COUNT(*) AS hits").
		Where("url_id = ? AND clicked_at >= ?", urlID, since.UTC()).
		Where(col + " IS NOT NULL AND " + col + " <> ''").
		Group(col).
		Order("hits DESC, label ASC").
		Limit(limit).
		Scan(&buckets).Error
	if err != nil {
		return nil, translate(err)
	}
	return buckets, nil
}

func (c *Clicks) CountForURL(ctx context.Context, urlID int64) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&internal.ClickEvent{}).Where("url_id = ?", urlID).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}
