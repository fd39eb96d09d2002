package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper guards against duplicate processing of at-least-once MQ
// deliveries, keyed in redis with a TTL.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

// IsDuplicate marks key as seen and reports whether it already was. On a
// redis failure it fails open: the message is treated as new.
func (d *Deduper) IsDuplicate(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf("dedupe:%s", key), 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Dedupe check failed, treating message as new",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return false
	}
	return !ok
}
