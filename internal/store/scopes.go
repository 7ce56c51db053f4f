package store

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MagnunAVF/shortener-core/internal"
)

// Each scope adds one predicate and leaves the query untouched when its
// input is absent, so any subset of them combines with AND.

func OwnedBy(owner string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if owner == "" {
			return db
		}
		return db.Where("owner_id = ?", owner)
	}
}

// MatchingText matches a case-insensitive substring of the code or long URL.
func MatchingText(text string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		term := strings.TrimSpace(text)
		if term == "" {
			return db
		}
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		return db.Where(`(LOWER(code) LIKE ? ESCAPE '\' OR LOWER(long_url) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
}

func CreatedBetween(from, to *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where("created_at >= ?", from.UTC())
		}
		if to != nil {
			db = db.Where("created_at <= ?", to.UTC())
		}
		return db
	}
}

func ClicksBetween(min, max *int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if min != nil {
			db = db.Where("click_count >= ?", *min)
		}
		if max != nil {
			db = db.Where("click_count <= ?", *max)
		}
		return db
	}
}

// WithExpiration keeps active (never expiring or not yet expired) or
// expired records as seen at now.
func WithExpiration(state internal.ExpirationState, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch state {
		case internal.ExpirationActive:
			return db.Where("(expires_at IS NULL OR expires_at >= ?)", now.UTC())
		case internal.ExpirationExpired:
			return db.Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC())
		default:
			return db
		}
	}
}

// FilteredBy applies every predicate of f.
func FilteredBy(f internal.Filter, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Scopes(
			MatchingText(f.Text),
			CreatedBetween(f.CreatedFrom, f.CreatedTo),
			ClicksBetween(f.MinClicks, f.MaxClicks),
			WithExpiration(f.Expiration, now),
		)
	}
}

var sortColumns = map[internal.SortField]string{
	internal.SortCreatedAt:      "created_at",
	internal.SortCode:           "code",
	internal.SortClickCount:     "click_count",
	internal.SortLastAccessedAt: "last_accessed_at",
	internal.SortExpiresAt:      "expires_at",
}

// SortColumn resolves a sort field to a column, or false when it is not sortable.
func SortColumn(field internal.SortField) (string, bool) {
	col, ok := sortColumns[field]
	return col, ok
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
