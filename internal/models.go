package internal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, parents first.
func Models() []any {
	return []any{&URLRecord{}, &ClickEvent{}}
}

// URLRecord is one short link.
type URLRecord struct {
	ID             int64        `gorm:"primaryKey;autoIncrement:false;type:bigint" json:"id,string"`
	Code           string       `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	LongURL        string       `gorm:"type:varchar(2048);not null" json:"long_url"`
	ShortURL       string       `gorm:"type:varchar(2100);not null" json:"short_url"`
	CreatedAt      time.Time    `gorm:"index;not null" json:"created_at"`
	ExpiresAt      *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	ClickCount     int64        `gorm:"not null;default:0;index" json:"click_count"`
	LastAccessedAt *time.Time   `json:"last_accessed_at,omitempty"`
	OwnerID        *string      `gorm:"type:varchar(64);index" json:"owner_id,omitempty"`
	Clicks         []ClickEvent `gorm:"foreignKey:URLID;constraint:OnDelete:CASCADE" json:"-"`
}

func (URLRecord) TableName() string { return "url_records" }

// ExpiredAt reports whether the record is past its expiration at now.
// Records without an expiration never expire.
func (r *URLRecord) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// OwnedBy reports whether owner matches the record's owner. Anonymous
// records are only matched by an empty owner.
func (r *URLRecord) OwnedBy(owner string) bool {
	if r.OwnerID == nil {
		return owner == ""
	}
	return *r.OwnerID == owner
}

// ClickEvent is one recorded redirect. Rows are never updated.
type ClickEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	URLID      int64     `gorm:"index;not null" json:"url_id,string"`
	Code       string    `gorm:"type:varchar(32);not null" json:"code"`
	ClickedAt  time.Time `gorm:"index;not null" json:"clicked_at"`
	IPAddress  string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent  string    `gorm:"type:varchar(500)" json:"user_agent"`
	Referer    *string   `gorm:"type:varchar(2048)" json:"referer,omitempty"`
	Country    *string   `gorm:"type:varchar(64)" json:"country,omitempty"`
	City       *string   `gorm:"type:varchar(128)" json:"city,omitempty"`
	DeviceType *string   `gorm:"type:varchar(32)" json:"device_type,omitempty"`
	Browser    *string   `gorm:"type:varchar(32)" json:"browser,omitempty"`
	OS         *string   `gorm:"column:os;type:varchar(32)" json:"os,omitempty"`
}

func (ClickEvent) TableName() string { return "click_events" }

func (e *ClickEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// RequestMeta is what the HTTP boundary knows about a redirect request.
type RequestMeta struct {
	RemoteAddr   string
	ForwardedFor string
	UserAgent    string
	Referer      string
	Country      string
	City         string
}
