package dump

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKey    = "dumpgw:records"
	DefaultRedisMaxLen = 10000
)

// RedisSink archives payloads in a capped Redis list, newest first.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisSink connects to Redis and verifies the connection with PING.
func NewRedisSink(ctx context.Context, addr, key string, maxLen int64) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if key == "" {
		key = DefaultRedisKey
	}
	if maxLen <= 0 {
		maxLen = DefaultRedisMaxLen
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, payload []byte) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archive to %s: %w", s.key, err)
	}
	return nil
}

// Ping reports whether the archive is reachable.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error { return s.client.Close() }
