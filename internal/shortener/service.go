// Package shortener ties code allocation, the redirect cache, click
// counting and analytics together behind one service.
package shortener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

const defaultInsertAttempts = 5

type CodeAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

type IDSource interface {
	NextID() int64
}

// ClickRecorder captures the details of one redirect without blocking it.
type ClickRecorder interface {
	RecordClick(rec *internal.URLRecord, meta internal.RequestMeta, at time.Time)
}

type Aggregator interface {
	ForURL(ctx context.Context, rec *internal.URLRecord, windowDays int) (*internal.Analytics, error)
}

type Config struct {
	Records           RecordStore
	Cache             Cache
	Codes             CodeAllocator
	IDs               IDSource
	Clicks            ClickRecorder
	Analytics         Aggregator
	Metrics           *metrics.Metrics
	BaseURL           string
	Now               func() time.Time
	BackgroundTimeout time.Duration
	// InsertAttempts bounds how often a freshly generated code may lose the
	// insert race before giving up.
	InsertAttempts int
}

type Service struct {
	records   RecordStore
	cached    *CachedStore
	codes     CodeAllocator
	ids       IDSource
	counter   *ClickCounter
	clicks    ClickRecorder
	analytics Aggregator
	metrics   *metrics.Metrics
	baseURL   string
	now       func() time.Time
	attempts  int
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	attempts := cfg.InsertAttempts
	if attempts <= 0 {
		attempts = defaultInsertAttempts
	}
	cached := NewCachedStore(cfg.Records, cfg.Cache, m)
	return &Service{
		records:   cfg.Records,
		cached:    cached,
		codes:     cfg.Codes,
		ids:       cfg.IDs,
		counter:   NewClickCounter(cfg.Records, cfg.BackgroundTimeout, m),
		clicks:    cfg.Clicks,
		analytics: cfg.Analytics,
		metrics:   m,
		baseURL:   cfg.BaseURL,
		now:       now,
		attempts:  attempts,
	}
}

// Store is the cache-fronted record store used on the redirect path.
func (s *Service) Store() *CachedStore {
	return s.cached
}

type AllocateRequest struct {
	LongURL       string `json:"url"`
	OwnerID       string `json:"-"`
	CustomCode    string `json:"custom_code,omitempty"`
	ExpiresInDays int    `json:"expiration_days,omitempty"`
}

type Allocation struct {
	Code      string     `json:"code"`
	ShortURL  string     `json:"short_url"`
	LongURL   string     `json:"long_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Allocate validates req and stores a new short link for it.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	longURL, err := ValidateURL(req.LongURL)
	if err != nil {
		return nil, err
	}
	if err := validateExpiration(req.ExpiresInDays); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &internal.URLRecord{
		LongURL:   longURL,
		CreatedAt: now,
		ExpiresAt: expiryFrom(now, req.ExpiresInDays),
	}
	if req.OwnerID != "" {
		owner := req.OwnerID
		rec.OwnerID = &owner
	}

	if req.CustomCode != "" {
		if err := ValidateCustomCode(req.CustomCode); err != nil {
			return nil, err
		}
		err := s.insert(ctx, rec, req.CustomCode)
		if errors.Is(err, internal.ErrCodeConflict) {
			return nil, fmt.Errorf("%w: %s", internal.ErrCodeTaken, req.CustomCode)
		}
		if err != nil {
			return nil, err
		}
		return s.allocated(ctx, rec), nil
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		code, err := s.codes.Allocate(ctx)
		if err != nil {
			return nil, err
		}
		err = s.insert(ctx, rec, code)
		if errors.Is(err, internal.ErrCodeConflict) {
			// someone inserted the same code between our check and our insert
			s.metrics.CodeCollisions.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.allocated(ctx, rec), nil
	}
	return nil, internal.ErrCapacityExhausted
}

func (s *Service) insert(ctx context.Context, rec *internal.URLRecord, code string) error {
	rec.ID = s.ids.NextID()
	rec.Code = code
	rec.ShortURL = s.baseURL + "/" + code
	return s.cached.Create(ctx, rec)
}

func (s *Service) allocated(ctx context.Context, rec *internal.URLRecord) *Allocation {
	s.metrics.URLsAllocated.Inc()
	logger.FromContext(ctx).Info("Short link created", "code", rec.Code)
	return &Allocation{Code: rec.Code, ShortURL: rec.ShortURL, LongURL: rec.LongURL, ExpiresAt: rec.ExpiresAt}
}

type Resolution struct {
	Code      string     `json:"code"`
	LongURL   string     `json:"long_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Resolve looks code up through the cache. Expired links resolve to
// ErrExpired even when the sweeper has not removed them yet.
func (s *Service) Resolve(ctx context.Context, code string) (*Resolution, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Resolution{Code: rec.Code, LongURL: rec.LongURL, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *Service) lookup(ctx context.Context, code string) (*internal.URLRecord, error) {
	rec, err := s.cached.FindByCode(ctx, code)
	switch {
	case errors.Is(err, internal.ErrNotFound):
		s.metrics.Redirects.WithLabelValues("not_found").Inc()
		return nil, err
	case err != nil:
		s.metrics.Redirects.WithLabelValues("error").Inc()
		return nil, err
	case rec.ExpiredAt(s.now()):
		s.metrics.Redirects.WithLabelValues("expired").Inc()
		return nil, internal.ErrExpired
	}
	s.metrics.Redirects.WithLabelValues("ok").Inc()
	return rec, nil
}

// Touch counts one access to code in the background.
func (s *Service) Touch(code string) {
	s.counter.RecordHit(code, s.now())
}

// RecordClickDetail captures analytics for one access to code in the background.
// Unknown codes are ignored.
func (s *Service) RecordClickDetail(ctx context.Context, code string, meta internal.RequestMeta) {
	rec, err := s.cached.FindByCode(ctx, code)
	if err != nil {
		logger.FromContext(ctx).Warn("Skipping click detail", "code", code, "err", err)
		return
	}
	s.clicks.RecordClick(rec, meta, s.now())
}

// Redirect resolves code and schedules its click bookkeeping. The returned
// URL is ready to be sent before either background write has finished.
func (s *Service) Redirect(ctx context.Context, code string, meta internal.RequestMeta) (string, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return "", err
	}
	at := s.now()
	s.counter.RecordHit(rec.Code, at)
	s.clicks.RecordClick(rec, meta, at)
	return rec.LongURL, nil
}

// Remove deletes owner's link and everything recorded about it.
func (s *Service) Remove(ctx context.Context, code, owner string) error {
	rec, err := s.records.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if owner == "" || !rec.OwnedBy(owner) {
		return internal.ErrNotOwner
	}
	if err := s.cached.Delete(ctx, code); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Short link removed", "code", code)
	return nil
}

type UpdateRequest struct {
	LongURL       *string `json:"url,omitempty"`
	ExpiresInDays *int    `json:"expiration_days,omitempty"`
}

// Update changes the target or expiration of owner's link. An expiration
// of zero days clears it.
func (s *Service) Update(ctx context.Context, code, owner string, req UpdateRequest) (*internal.URLRecord, error) {
	rec, err := s.records.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner == "" || !rec.OwnedBy(owner) {
		return nil, internal.ErrNotOwner
	}

	if req.LongURL != nil {
		longURL, err := ValidateURL(*req.LongURL)
		if err != nil {
			return nil, err
		}
		rec.LongURL = longURL
	}
	if req.ExpiresInDays != nil {
		if err := validateExpiration(*req.ExpiresInDays); err != nil {
			return nil, err
		}
		rec.ExpiresAt = expiryFrom(s.now().UTC(), *req.ExpiresInDays)
	}

	if err := s.cached.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Query lists owner's links. It reads the store directly so counts are exact.
func (s *Service) Query(ctx context.Context, owner string, f internal.Filter, p internal.PageRequest) (internal.Page, error) {
	if owner == "" {
		return internal.Page{}, internal.ErrNotOwner
	}
	return s.records.Query(ctx, owner, f, p, s.now())
}

// Analytics aggregates the clicks of owner's link over the last windowDays days.
func (s *Service) Analytics(ctx context.Context, code, owner string, windowDays int) (*internal.Analytics, error) {
	rec, err := s.records.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner == "" || !rec.OwnedBy(owner) {
		return nil, internal.ErrNotOwner
	}
	return s.analytics.ForURL(ctx, rec, windowDays)
}

func (s *Service) Stats(ctx context.Context, owner string) (internal.OwnerStats, error) {
	if owner == "" {
		return internal.OwnerStats{}, internal.ErrNotOwner
	}
	return s.records.CountByOwner(ctx, owner, s.now())
}

// Wait drains background click counter updates.
func (s *Service) Wait() {
	s.counter.Wait()
}

func expiryFrom(now time.Time, days int) *time.Time {
	if days <= 0 {
		return nil
	}
	exp := now.Add(time.Duration(days) * 24 * time.Hour)
	return &exp
}
