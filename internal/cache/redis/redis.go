package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/likaia/nginxpulse-exporter/internal/cache"
)

const jobQueueKey = "exporter:export_jobs"

type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(addr, password string, db int) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Ping Redis to check the connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", addr, err)
	}

	return &RedisQueue{client: rdb}, nil
}

func (r *RedisQueue) Push(ctx context.Context, jobID string) error {
	return r.client.LPush(ctx, jobQueueKey, jobID).Err()
}

// Pop blocks up to timeout waiting for the next job id. Multiple service
// instances can share the list; BRPOP hands each id to exactly one of them.
func (r *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := r.client.BRPop(ctx, timeout, jobQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", cache.ErrEmpty
		}
		return "", err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", cache.ErrEmpty
	}
	return res[1], nil
}

func (r *RedisQueue) Close() error {
	return r.client.Close()
}
