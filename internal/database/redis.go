package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brunojppb/mailbolt/internal/config"
)

// Redis wraps the Redis client
type Redis struct {
	*redis.Client
}

// NewRedis creates a new Redis connection
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Redis{Client: client}, nil
}

// HealthCheck verifies the Redis connection is healthy
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.Ping(ctx).Err()
}

// PushBack appends a value to the tail of a list
func (r *Redis) PushBack(ctx context.Context, key string, value interface{}) error {
	return r.RPush(ctx, key, value).Err()
}

// MoveFront atomically moves the head of src to the tail of dst and returns
// it. ok is false when src is empty.
func (r *Redis) MoveFront(ctx context.Context, src, dst string) (value string, ok bool, err error) {
	value, err = r.LMove(ctx, src, dst, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Remove deletes one occurrence of value from a list
func (r *Redis) Remove(ctx context.Context, key string, value interface{}) error {
	return r.LRem(ctx, key, 1, value).Err()
}

// Length returns the number of items in a list
func (r *Redis) Length(ctx context.Context, key string) (int64, error) {
	return r.LLen(ctx, key).Result()
}
