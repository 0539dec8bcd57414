package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// CacheConfig tunes the balance cache.
type CacheConfig struct {
	TTL             time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// BalanceCache is a read-through cache in front of the balance aggregations.
// Keys embed a per-owner version that every committed movement write bumps, so
// stale entries are never read again and simply expire. Redis failures fall
// back to the loader; the database stays the system of record. An owner whose
// version bump failed is marked dirty and bypasses the cache until a later bump
// succeeds.
type BalanceCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	metrics MetricsRecorder

	mu    sync.Mutex
	dirty map[string]struct{}
}

// NewBalanceCache returns nil when client is nil or the TTL disables caching.
func NewBalanceCache(client *redis.Client, cfg CacheConfig, logger *slog.Logger) *BalanceCache {
	if client == nil || cfg.TTL <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &BalanceCache{client: client, ttl: cfg.TTL, logger: logger, dirty: make(map[string]struct{})}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "balance-cache",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

func versionKey(owner string) string {
	return "ledger:ver:" + owner
}

// Fetch loads name for owner from Redis or populates it from loader. dest must
// be a pointer suitable for json.Unmarshal.
func (c *BalanceCache) Fetch(ctx context.Context, owner, name string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("balance cache: loader required")
	}
	if c == nil || c.client == nil {
		return loadInto(ctx, dest, loader)
	}
	if c.isDirty(owner) {
		if err := c.Invalidate(ctx, owner); err != nil {
			c.degraded("invalidate", err)
			return loadInto(ctx, dest, loader)
		}
	}
	key, err := c.key(ctx, owner, name)
	if err != nil {
		c.degraded("key", err)
		return loadInto(ctx, dest, loader)
	}
	payload, err := c.get(ctx, key)
	if err != nil {
		c.degraded("get", err)
		return loadInto(ctx, dest, loader)
	}
	if payload != nil {
		if err := json.Unmarshal(payload, dest); err == nil {
			c.observe("hit")
			return nil
		}
	}
	c.observe("miss")
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.set(ctx, key, raw); err != nil {
			c.degraded("set", err)
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Invalidate bumps the owner's version so later reads miss. On failure the
// owner stays dirty and reads go to the loader until a bump succeeds.
func (c *BalanceCache) Invalidate(ctx context.Context, owner string) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Incr(ctx, versionKey(owner)).Result()
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.dirty[owner] = struct{}{}
		return err
	}
	delete(c.dirty, owner)
	return nil
}

func (c *BalanceCache) isDirty(owner string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.dirty[owner]
	return ok
}

func (c *BalanceCache) key(ctx context.Context, owner, name string) (string, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		ver, err := c.client.Get(ctx, versionKey(owner)).Int64()
		if errors.Is(err, redis.Nil) {
			return int64(0), nil
		}
		return ver, err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:%s:%s:v%d", owner, name, v.(int64)), nil
}

func (c *BalanceCache) get(ctx context.Context, key string) ([]byte, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		payload, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return []byte(nil), nil
		}
		return payload, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *BalanceCache) set(ctx context.Context, key string, raw []byte) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, raw, c.ttl).Err()
	})
	return err
}

func (c *BalanceCache) degraded(op string, err error) {
	c.observe("error")
	c.logger.Warn("balance cache unavailable, reading ledger", slog.String("op", op), slog.Any("error", err))
}

func (c *BalanceCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.ObserveCacheLookup(result)
	}
}

func loadInto(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
