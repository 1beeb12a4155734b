package idempotency

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"handlit_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idem:"

// RedisClaimer claims keys with SET NX PX.
type RedisClaimer struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClaimer wraps an existing client.
func NewRedisClaimer(client redis.UniversalClient) *RedisClaimer {
	return &RedisClaimer{client: client, prefix: defaultRedisPrefix}
}

// NewRedisClient builds a go-redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

// Claim implements Claimer.
func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("claim %q: ttl must be positive", key)
	}
	ok, err := c.client.SetNX(ctx, c.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %q: %w", key, err)
	}
	return ok, nil
}

var _ Claimer = (*RedisClaimer)(nil)
