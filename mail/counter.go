package mail

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// ErrCounterUnavailable wraps counter backend failures.
var ErrCounterUnavailable = errors.New("mail: counter unavailable")

// Counter is the shared send counter.
type Counter interface {
	// Incr adds one and returns the new value.
	Incr(ctx context.Context) (int64, error)
	// CompareAndSwap sets the counter to next only if it still holds old.
	CompareAndSwap(ctx context.Context, old, next int64) (bool, error)
	Load(ctx context.Context) (int64, error)
	Store(ctx context.Context, v int64) error
}

// MemoryCounter is a process-local counter.
type MemoryCounter struct {
	n atomic.Int64
}

func (c *MemoryCounter) Incr(context.Context) (int64, error) { return c.n.Add(1), nil }
func (c *MemoryCounter) Load(context.Context) (int64, error) { return c.n.Load(), nil }

func (c *MemoryCounter) CompareAndSwap(_ context.Context, old, next int64) (bool, error) {
	return c.n.CompareAndSwap(old, next), nil
}

func (c *MemoryCounter) Store(_ context.Context, v int64) error {
	c.n.Store(v)
	return nil
}

// RedisCounter keeps the counter in a single Redis key so several
// processes rotate through the same pool.
type RedisCounter struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisCounter stores the counter under key.
func NewRedisCounter(client redis.UniversalClient, key string) *RedisCounter {
	if key == "" {
		key = "authcore:mail:counter"
	}
	return &RedisCounter{redis: client, key: key}
}

func (c *RedisCounter) Incr(ctx context.Context) (int64, error) {
	n, err := c.redis.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return n, nil
}

var casScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur == tonumber(ARGV[1]) then
  redis.call('SET', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

func (c *RedisCounter) CompareAndSwap(ctx context.Context, old, next int64) (bool, error) {
	n, err := casScript.Run(ctx, c.redis, []string{c.key}, old, next).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return n == 1, nil
}

func (c *RedisCounter) Load(ctx context.Context) (int64, error) {
	n, err := c.redis.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return n, nil
}

func (c *RedisCounter) Store(ctx context.Context, v int64) error {
	if err := c.redis.Set(ctx, c.key, v, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}
