package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{rdb: rdb, ttl: ttl, prefix: "dedup", logger: logger}
}

func (d *Deduper) key(k string) string {
	return fmt.Sprintf("%s:%s", d.prefix, k)
}

// AcquireOnce returns true the first time key is seen within the TTL.
// When Redis is unavailable processing is allowed: the conditional SQL
// writes behind it are what keep replays harmless.
func (d *Deduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, d.key(key), 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("redis dedup check failed, allowing processing",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		d.logger.Info("skipped duplicated event", zap.String("dedup_key", key))
	}
	return ok
}

func (d *Deduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, d.key(key)).Err(); err != nil {
		d.logger.Warn("redis dedup release failed", zap.String("dedup_key", key), zap.Error(err))
	}
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
