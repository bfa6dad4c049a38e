package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/overlaydao/overlay-users/internal/state"
)

// OpenRedisStore connects to Redis, verifies connectivity, and returns the
// store plus the client for the dedupe middleware and shutdown.
func OpenRedisStore(ctx context.Context, url string) (*state.RedisStore, *redis.Client, error) {
	client, err := OpenRedisClient(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return state.NewRedis(client), client, nil
}

// OpenRedisClient configures a Redis client and verifies connectivity.
func OpenRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
