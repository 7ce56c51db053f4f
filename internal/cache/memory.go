// Package cache holds the redirect cache backends.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/MagnunAVF/shortener-core/internal"
)

// TombstoneTTL is how long a deleted code stays negatively cached.
const TombstoneTTL = time.Minute

type tombstone struct{}

// Memory is an in-process cache. Entries are copied in and out so callers
// never share a record with the cache.
type Memory struct {
	items *gocache.Cache
}

// NewMemory returns a cache whose entries live for ttl. A ttl of zero keeps
// entries until they are evicted.
func NewMemory(ttl time.Duration) *Memory {
	exp := ttl
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	cleanup := 10 * time.Minute
	if ttl > 0 && ttl < cleanup {
		cleanup = ttl
	}
	return &Memory{items: gocache.New(exp, cleanup)}
}

func (m *Memory) Get(_ context.Context, code string) (*internal.URLRecord, bool, error) {
	v, ok := m.items.Get(code)
	if !ok {
		return nil, false, nil
	}
	rec, ok := v.(internal.URLRecord)
	if !ok {
		return nil, false, internal.ErrNotFound
	}
	return &rec, true, nil
}

func (m *Memory) Put(_ context.Context, rec *internal.URLRecord) error {
	m.items.SetDefault(rec.Code, copyRecord(rec))
	return nil
}

// Fill stores rec only when code has no entry, tombstones included.
func (m *Memory) Fill(_ context.Context, rec *internal.URLRecord) error {
	// Add fails when the key is taken, which is the outcome we want
	_ = m.items.Add(rec.Code, copyRecord(rec), gocache.DefaultExpiration)
	return nil
}

// Tombstone replaces code's entry with a short lived deleted marker.
func (m *Memory) Tombstone(_ context.Context, code string) error {
	m.items.Set(code, tombstone{}, TombstoneTTL)
	return nil
}

func (m *Memory) Evict(_ context.Context, code string) error {
	m.items.Delete(code)
	return nil
}

func (m *Memory) Len() int {
	return m.items.ItemCount()
}

func copyRecord(rec *internal.URLRecord) internal.URLRecord {
	c := *rec
	c.Clicks = nil
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		c.ExpiresAt = &t
	}
	if rec.LastAccessedAt != nil {
		t := *rec.LastAccessedAt
		c.LastAccessedAt = &t
	}
	if rec.OwnerID != nil {
		o := *rec.OwnerID
		c.OwnerID = &o
	}
	return c
}
