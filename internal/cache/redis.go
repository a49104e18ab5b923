package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis shares cached values between server replicas.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Cache = (*Redis)(nil)

// NewRedis connects using a redis:// URL and verifies the connection.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[cache.NewRedis] redis.ParseURL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[cache.NewRedis] ping")
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "[cache.Redis.Get]")
	}
	return b, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrap(c.client.Set(ctx, c.prefix+key, value, ttl).Err(), "[cache.Redis.Set]")
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	return errors.Wrap(c.client.Del(ctx, c.prefix+key).Err(), "[cache.Redis.Delete]")
}

func (c *Redis) Close() error {
	return c.client.Close()
}
