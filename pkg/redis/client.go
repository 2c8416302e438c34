package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace    = "tr"
	lockPrefix      = "lock"
	rateLimitPrefix = "rate_limit"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

type Config struct {
	URL      string
	Address  string
	Password string
	DB       int
}

// Client wraps the handful of commands used for scheduler locks and rate limiting.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg Config) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.store == nil {
		return "", errNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Del(ctx, keys...).Err()
}

// IncrWithTTL increments key and sets ttl on the first increment only.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c == nil || c.store == nil {
		return 0, errNotInitialized
	}
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if err := c.store.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// FixedWindowAllow reports whether scope is still under limit in the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := c.IncrWithTTL(ctx, c.RateLimitKey(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func buildKey(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}
