package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"opsync/internal/config"
	"opsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the hot cache tier shared between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, cacheKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

func (r *RedisCache) Put(ctx context.Context, key string, value []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

func cacheKey(key string) string {
	return "opsync:cache:" + key
}
