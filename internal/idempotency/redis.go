package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "dispatcher:idempotency:"

var _ Guard = (*RedisGuard)(nil)

// RedisGuard stores receipts in Redis with SETNX and an explicit TTL, so
// deduplication holds across instances and process restarts.
type RedisGuard struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *goredis.Client, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisGuard{client: client, ttl: ttl}, nil
}

func (g *RedisGuard) ReserveOrGet(ctx context.Context, key string) (*Receipt, bool, error) {
	raw, err := g.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	var receipt Receipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, false, fmt.Errorf("failed to decode idempotency receipt: %w", err)
	}
	return &receipt, true, nil
}

func (g *RedisGuard) Commit(ctx context.Context, key string, receipt Receipt) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency receipt: %w", err)
	}

	// SETNX: the first commit for a key wins, replays keep the original.
	if err := g.client.SetNX(ctx, keyPrefix+key, payload, g.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency commit failed: %w", err)
	}
	return nil
}
