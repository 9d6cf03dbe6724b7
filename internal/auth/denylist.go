package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDenylist stores invalidated token ids in Redis.  Entries expire on
// their own once the underlying token would have expired anyway, so the set
// never needs sweeping.
type RedisDenylist struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisDenylist(rdb *redis.Client) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, prefix: "denylist:jti:"}
}

func (d *RedisDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	return d.rdb.Set(ctx, d.prefix+jti, 1, ttl).Err()
}

func (d *RedisDenylist) Has(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NoopDenylist accepts every token.  Used when Redis is unavailable at
// startup so the service still serves traffic; logout then only revokes the
// refresh token and access tokens ride out their short TTL.
type NoopDenylist struct{}

func (NoopDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error { return nil }
func (NoopDenylist) Has(ctx context.Context, jti string) (bool, error)            { return false, nil }
