package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the last-position cache.
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Addr       string `yaml:"addr" json:"addr"`
	DB         int    `yaml:"db" json:"db"`
	Key        string `yaml:"key" json:"key"`
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttlSeconds"`
}

// RedisPublisher stores the latest position under one key with a TTL.
type RedisPublisher struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	log.Printf("[redis] connected to %s, key %s", cfg.Addr, cfg.Key)
	return &RedisPublisher{
		rdb: rdb,
		key: cfg.Key,
		ttl: time.Duration(cfg.TTLSeconds) * time.Second,
	}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, payload []byte) error {
	if err := p.rdb.Set(ctx, p.key, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis: SET %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
