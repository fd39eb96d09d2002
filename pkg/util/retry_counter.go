package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter tracks redelivery counts in redis so a poison message can
// be dropped instead of looping through the queue forever.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet increments the retry count for a key and returns the new
// count.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Incr(ctx, fmt.Sprintf("retry:%s", key)).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		r.rdb.Expire(ctx, fmt.Sprintf("retry:%s", key), r.ttl)
	}

	return count, nil
}

// Reset clears the retry count for a key.
func (r *RetryCounter) Reset(ctx context.Context, key string) {
	r.rdb.Del(ctx, fmt.Sprintf("retry:%s", key))
}
