package shortener

import (
	"context"
	"errors"
	"time"

	"github.com/MagnunAVF/shortener-core/internal"
	applog "github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

// Cache is a code keyed redirect cache. Implementations must be safe for
// concurrent use and must not share records with callers. Get reports a
// tombstoned code as internal.ErrNotFound; Fill must not replace any entry.
type Cache interface {
	Get(ctx context.Context, code string) (*internal.URLRecord, bool, error)
	Put(ctx context.Context, rec *internal.URLRecord) error
	Fill(ctx context.Context, rec *internal.URLRecord) error
	Tombstone(ctx context.Context, code string) error
	Evict(ctx context.Context, code string) error
}

type RecordStore interface {
	Create(ctx context.Context, rec *internal.URLRecord) error
	FindByCode(ctx context.Context, code string) (*internal.URLRecord, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, rec *internal.URLRecord) error
	Delete(ctx context.Context, code string) error
	IncrementClickCount(ctx context.Context, code string, at time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Query(ctx context.Context, owner string, f internal.Filter, p internal.PageRequest, now time.Time) (internal.Page, error)
	CountByOwner(ctx context.Context, owner string, now time.Time) (internal.OwnerStats, error)
}

// CachedStore puts a Cache in front of a RecordStore. Reads go through the
// cache; every mutation of a record also fixes up its cache entry. Click
// counts are written to the store only, so cached counts lag behind.
// Read-through only fills empty entries and deletes leave a tombstone, so a
// miss that read the store before a delete or update cannot put the old row
// back. Cache failures are logged and counted, never returned.
type CachedStore struct {
	RecordStore
	cache   Cache
	metrics *metrics.Metrics
}

func NewCachedStore(store RecordStore, cache Cache, m *metrics.Metrics) *CachedStore {
	return &CachedStore{RecordStore: store, cache: cache, metrics: m}
}

func (s *CachedStore) FindByCode(ctx context.Context, code string) (*internal.URLRecord, error) {
	rec, ok, err := s.cache.Get(ctx, code)
	switch {
	case errors.Is(err, internal.ErrNotFound):
		s.metrics.CacheHits.Inc()
		return nil, err
	case err != nil:
		s.cacheFailed(ctx, "get", code, err)
	case ok:
		s.metrics.CacheHits.Inc()
		return rec, nil
	default:
		s.metrics.CacheMisses.Inc()
	}

	rec, err = s.RecordStore.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Fill(ctx, rec); err != nil {
		s.cacheFailed(ctx, "fill", code, err)
	}
	return rec, nil
}

func (s *CachedStore) Create(ctx context.Context, rec *internal.URLRecord) error {
	if err := s.RecordStore.Create(ctx, rec); err != nil {
		return err
	}
	s.put(ctx, rec)
	return nil
}

// Update stores rec and refreshes the cache from the store so the cached
// copy does not carry stale click metadata from the caller.
func (s *CachedStore) Update(ctx context.Context, rec *internal.URLRecord) error {
	if err := s.RecordStore.Update(ctx, rec); err != nil {
		return err
	}
	fresh, err := s.RecordStore.FindByCode(ctx, rec.Code)
	if err != nil {
		s.evict(ctx, rec.Code)
		return nil
	}
	s.put(ctx, fresh)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, code string) error {
	err := s.RecordStore.Delete(ctx, code)
	if err == nil || errors.Is(err, internal.ErrNotFound) {
		s.tombstone(ctx, code)
	}
	return err
}

func (s *CachedStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	codes, err := s.RecordStore.DeleteExpiredBefore(ctx, cutoff)
	for _, code := range codes {
		s.tombstone(ctx, code)
	}
	return codes, err
}

func (s *CachedStore) put(ctx context.Context, rec *internal.URLRecord) {
	if err := s.cache.Put(ctx, rec); err != nil {
		s.cacheFailed(ctx, "put", rec.Code, err)
	}
}

func (s *CachedStore) evict(ctx context.Context, code string) {
	if err := s.cache.Evict(ctx, code); err != nil {
		s.cacheFailed(ctx, "evict", code, err)
	}
}

func (s *CachedStore) tombstone(ctx context.Context, code string) {
	if err := s.cache.Tombstone(ctx, code); err != nil {
		s.cacheFailed(ctx, "tombstone", code, err)
	}
}

func (s *CachedStore) cacheFailed(ctx context.Context, op, code string, err error) {
	s.metrics.CacheErrors.WithLabelValues(op).Inc()
	applog.FromContext(ctx).Warn("Redirect cache failure", "op", op, "code", code, "err", err)
}
