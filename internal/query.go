package internal

import "time"

type ExpirationState string

const (
	ExpirationAny     ExpirationState = ""
	ExpirationActive  ExpirationState = "active"
	ExpirationExpired ExpirationState = "expired"
)

// Filter narrows a link listing. Zero-valued fields do not filter.
type Filter struct {
	Text        string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	MinClicks   *int64
	MaxClicks   *int64
	Expiration  ExpirationState
}

type SortField string

const (
	SortCreatedAt      SortField = "createdAt"
	SortCode           SortField = "code"
	SortClickCount     SortField = "clickCount"
	SortLastAccessedAt SortField = "lastAccessedAt"
	SortExpiresAt      SortField = "expiresAt"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a 1-based page of results.
type PageRequest struct {
	Page   int
	Size   int
	SortBy SortField
	Asc    bool
}

// Normalize fills defaults and clamps out-of-range values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.SortBy == "" {
		p.SortBy = SortCreatedAt
	}
	return p
}

type Page struct {
	Records []URLRecord `json:"records"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	Size    int         `json:"size"`
}

type OwnerStats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
}

type DailyCount struct {
	Date  string `gorm:"column:day" json:"date"`
	Count int64  `gorm:"column:hits" json:"count"`
}

type Bucket struct {
	Label string `gorm:"column:label" json:"label"`
	Count int64  `gorm:"column:hits" json:"count"`
}

// Analytics is the aggregated view of a link's clicks inside a window.
type Analytics struct {
	Code        string       `json:"code"`
	WindowDays  int          `json:"window_days"`
	TotalClicks int64        `json:"total_clicks"` // events inside the window
	DailyClicks []DailyCount `json:"daily_clicks"`
	Countries   []Bucket     `json:"countries"`
	Devices     []Bucket     `json:"devices"`
	Browsers    []Bucket     `json:"browsers"`
	Referrers   []Bucket     `json:"referrers"`
}
