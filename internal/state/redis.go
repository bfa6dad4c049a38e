package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "overlay:state:"

// RedisStore persists contract state as individual Redis keys.
type RedisStore struct {
	client *redis.Client
}

// NewRedis builds a Redis-backed store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get fetches the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyAbsent
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Insert stores a value under a key that must not exist yet.
func (s *RedisStore) Insert(ctx context.Context, key string, value []byte) error {
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+key, value, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// Replace overwrites the value under a key that must already exist.
func (s *RedisStore) Replace(ctx context.Context, key string, value []byte) error {
	ok, err := s.client.SetXX(ctx, redisKeyPrefix+key, value, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyAbsent
	}
	return nil
}

// Remove deletes the value under a key that must already exist.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	removed, err := s.client.Del(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrKeyAbsent
	}
	return nil
}

// Apply flushes a write set through one MULTI/EXEC pipeline.
func (s *RedisStore) Apply(ctx context.Context, writes []Write) error {
	pipe := s.client.TxPipeline()
	for _, w := range writes {
		switch w.Op {
		case OpInsert, OpReplace:
			pipe.Set(ctx, redisKeyPrefix+w.Key, w.Value, 0)
		case OpRemove:
			pipe.Del(ctx, redisKeyPrefix+w.Key)
		default:
			return fmt.Errorf("apply: unknown write op %d", w.Op)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}
