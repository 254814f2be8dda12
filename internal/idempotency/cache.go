package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/newsletter-backend/pkg/db/types"
	pkgredis "github.com/angelmondragon/newsletter-backend/pkg/redis"
)

const defaultCacheTTL = 24 * time.Hour

// Cache is a read-through copy of completed responses. The database row stays
// the source of truth; a miss or failure falls back to the gate's transaction.
type Cache interface {
	Get(ctx context.Context, actorID uuid.UUID, key Key) (Response, bool, error)
	Put(ctx context.Context, actorID uuid.UUID, key Key, resp Response) error
}

type RedisCache struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
}

func NewRedisCache(store pkgredis.IdempotencyStore, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{store: store, ttl: ttl}
}

type cachedResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    dbtypes.HeaderPairs `json:"headers"`
	Body       []byte              `json:"body"`
}

func (c *RedisCache) Get(ctx context.Context, actorID uuid.UUID, key Key) (Response, bool, error) {
	raw, err := c.store.Get(ctx, c.store.IdempotencyKey(actorID.String(), key.String()))
	if err != nil {
		if pkgredis.IsNil(err) {
			return Response{}, false, nil
		}
		return Response{}, false, fmt.Errorf("read cached response: %w", err)
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return Response{}, false, fmt.Errorf("decode cached response: %w", err)
	}
	return Response{
		StatusCode: cached.StatusCode,
		Headers:    cached.Headers,
		Body:       cached.Body,
	}, true, nil
}

func (c *RedisCache) Put(ctx context.Context, actorID uuid.UUID, key Key, resp Response) error {
	payload, err := json.Marshal(cachedResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	})
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := c.store.Set(ctx, c.store.IdempotencyKey(actorID.String(), key.String()), string(payload), c.ttl); err != nil {
		return fmt.Errorf("write cached response: %w", err)
	}
	return nil
}
