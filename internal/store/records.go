package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MagnunAVF/shortener-core/internal"
)

// sweepChunk bounds the IN lists built while purging expired records.
const sweepChunk = 500

type Records struct {
	db *gorm.DB
}

func NewRecords(db *gorm.DB) *Records {
	return &Records{db: db}
}

func (r *Records) Create(ctx context.Context, rec *internal.URLRecord) error {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = utcPtr(rec.ExpiresAt)
	return translate(r.db.WithContext(ctx).Omit("Clicks").Create(rec).Error)
}

func (r *Records) FindByCode(ctx context.Context, code string) (*internal.URLRecord, error) {
	var rec internal.URLRecord
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *Records) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&internal.URLRecord{}).Where("code = ?", code).Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// Update writes the owner editable fields of rec. Click metadata is never
// touched here so it cannot be rolled back by a stale copy.
func (r *Records) Update(ctx context.Context, rec *internal.URLRecord) error {
	rec.ExpiresAt = utcPtr(rec.ExpiresAt)
	res := r.db.WithContext(ctx).Model(&internal.URLRecord{}).
		Where("code = ?", rec.Code).
		Updates(map[string]any{
			"long_url":   rec.LongURL,
			"expires_at": rec.ExpiresAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrNotFound
	}
	return nil
}

// Delete removes the record and its click events in one transaction.
func (r *Records) Delete(ctx context.Context, code string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec internal.URLRecord
		if err := tx.Select("id").Where("code = ?", code).Take(&rec).Error; err != nil {
			return err
		}
		if err := tx.Where("url_id = ?", rec.ID).Delete(&internal.ClickEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", rec.ID).Delete(&internal.URLRecord{}).Error
	})
	return translate(err)
}

// IncrementClickCount bumps the counter in a single statement so concurrent
// hits never lose an update.
func (r *Records) IncrementClickCount(ctx context.Context, code string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&internal.URLRecord{}).
		Where("code = ?", code).
		UpdateColumns(map[string]any{
			"click_count":      gorm.Expr("click_count + ?", 1),
			"last_accessed_at": at.UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrNotFound
	}
	return nil
}

// DeleteExpiredBefore purges records that expired before cutoff, together
// with their click events, and returns the purged codes.
func (r *Records) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []internal.URLRecord
		if err := tx.Select("id", "code").
			Where("expires_at IS NOT NULL AND expires_at < ?", cutoff.UTC()).
			Find(&expired).Error; err != nil {
			return err
		}
		for start := 0; start < len(expired); start += sweepChunk {
			end := min(start+sweepChunk, len(expired))
			ids := make([]int64, 0, end-start)
			for _, rec := range expired[start:end] {
				ids = append(ids, rec.ID)
				codes = append(codes, rec.Code)
			}
			if err := tx.Where("url_id IN ?", ids).Delete(&internal.ClickEvent{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ids).Delete(&internal.URLRecord{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return codes, nil
}

// Query returns one page of records matching owner and f, with the total
// number of matches. Ordering always ends on id so pages are stable.
func (r *Records) Query(ctx context.Context, owner string, f internal.Filter, p internal.PageRequest, now time.Time) (internal.Page, error) {
	p = p.Normalize()
	col, ok := SortColumn(p.SortBy)
	if !ok {
		return internal.Page{}, fmt.Errorf("unsupported sort field %q", p.SortBy)
	}
	dir := "DESC"
	if p.Asc {
		dir = "ASC"
	}

	base := r.db.WithContext(ctx).Model(&internal.URLRecord{}).
		Scopes(OwnedBy(owner), FilteredBy(f, now))

	page := internal.Page{Records: []internal.URLRecord{}, Page: p.Page, Size: p.Size}
	if err := base.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return internal.Page{}, translate(err)
	}
	if page.Total == 0 {
		return page, nil
	}

	err := base.Session(&gorm.Session{}).
		Order(col + " " + dir).
		Order("id ASC").
		Offset((p.Page - 1) * p.Size).
		Limit(p.Size).
		Find(&page.Records).Error
	if err != nil {
		return internal.Page{}, translate(err)
	}
	return page, nil
}

// CountByOwner reports how many of owner's links exist, and how many of
// them are still active or already expired at now.
func (r *Records) CountByOwner(ctx context.Context, owner string, now time.Time) (internal.OwnerStats, error) {
	var stats internal.OwnerStats
	base := r.db.WithContext(ctx).Model(&internal.URLRecord{}).Scopes(OwnedBy(owner))

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, translate(err)
	}
	if err := base.Session(&gorm.Session{}).
		Scopes(WithExpiration(internal.ExpirationExpired, now)).
		Count(&stats.Expired).Error; err != nil {
		return stats, translate(err)
	}
	stats.Active = stats.Total - stats.Expired
	return stats, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
