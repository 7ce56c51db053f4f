package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MagnunAVF/shortener-core/internal"
)

const (
	keyPrefix      = "url:"
	tombstoneValue = "-"
)

// Redis keeps records as JSON under url:<code>, shared by every api instance.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, code string) (*internal.URLRecord, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", code, err)
	}
	if string(raw) == tombstoneValue {
		return nil, false, internal.ErrNotFound
	}
	var rec internal.URLRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// a corrupt entry is as good as a miss, the caller will overwrite it
		return nil, false, fmt.Errorf("decode cached %s: %w", code, err)
	}
	return &rec, true, nil
}

func (r *Redis) Put(ctx context.Context, rec *internal.URLRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Code, err)
	}
	if err := r.client.Set(ctx, keyPrefix+rec.Code, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", rec.Code, err)
	}
	return nil
}

// Fill stores rec only when code has no entry, tombstones included.
func (r *Redis) Fill(ctx context.Context, rec *internal.URLRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.Code, err)
	}
	if err := r.client.SetNX(ctx, keyPrefix+rec.Code, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx %s: %w", rec.Code, err)
	}
	return nil
}

func (r *Redis) Tombstone(ctx context.Context, code string) error {
	if err := r.client.Set(ctx, keyPrefix+code, tombstoneValue, TombstoneTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", code, err)
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", code, err)
	}
	return nil
}
