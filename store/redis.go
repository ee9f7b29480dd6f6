package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMutateRetries = 8

// RedisOptions configures the Redis backends.
type RedisOptions struct {
	// Prefix namespaces every key, e.g. "authcore".
	Prefix string
	// Retention keeps expired passcode records readable for a while.
	Retention time.Duration
	// MaxRetries bounds optimistic transaction retries in Mutate.
	MaxRetries int
	Now        func() time.Time
}

func (o RedisOptions) normalize() RedisOptions {
	o.Prefix = strings.TrimSpace(o.Prefix)
	if o.Prefix == "" {
		o.Prefix = "authcore"
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMutateRetries
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RedisOTPStore stores passcode records as versioned binary blobs.
type RedisOTPStore struct {
	redis redis.UniversalClient
	opts  RedisOptions
}

// NewRedisOTPStore binds a passcode store to client.
func NewRedisOTPStore(client redis.UniversalClient, opts RedisOptions) *RedisOTPStore {
	return &RedisOTPStore{redis: client, opts: opts.normalize()}
}

func (s *RedisOTPStore) key(key string) string {
	return s.opts.Prefix + ":otp:" + key
}

// ttl outlives ExpiresAt by the retention window.
func (s *RedisOTPStore) ttl(rec OTPRecord) time.Duration {
	ttl := rec.ExpiresAt.Sub(s.opts.Now()) + s.opts.Retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisOTPStore) Put(ctx context.Context, key string, rec OTPRecord) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	encoded, err := encodeOTPRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(key), encoded, s.ttl(rec)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisOTPStore) Get(ctx context.Context, key string) (*OTPRecord, error) {
	raw, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeOTPRecord(raw)
}

// Mutate runs fn inside WATCH/MULTI/EXEC and retries when another writer
// touched the key between the read and the commit.
func (s *RedisOTPStore) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	k := s.key(key)

	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		var callbackErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var (
				current *OTPRecord
				corrupt bool
			)

			raw, err := tx.Get(ctx, k).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				current, err = decodeOTPRecord(raw)
				if err != nil {
					// unreadable: fn sees nil, the bytes are deleted unless fn writes
					current = nil
					corrupt = true
				}
			}

			drop := func() error {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, k)
					return nil
				})
				return err
			}

			action, err := fn(current)
			if err != nil {
				callbackErr = err
				if corrupt {
					_ = drop()
				}
				return err
			}

			switch action {
			case Put:
				if current == nil {
					callbackErr = ErrNotFound
					return ErrNotFound
				}
				encoded, err := encodeOTPRecord(*current)
				if err != nil {
					callbackErr = err
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, k, encoded, s.ttl(*current))
					return nil
				})
				return err
			case Delete:
				return drop()
			default:
				if corrupt {
					return drop()
				}
				return nil
			}
		}, k)

		switch {
		case err == nil:
			return nil
		case callbackErr != nil:
			return callbackErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return ErrConflict
}

func (s *RedisOTPStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RedisSessionStore stores session records under prefix:sess:<id>.
type RedisSessionStore struct {
	redis redis.UniversalClient
	opts  RedisOptions
}

// NewRedisSessionStore binds a session store to client.
func NewRedisSessionStore(client redis.UniversalClient, opts RedisOptions) *RedisSessionStore {
	return &RedisSessionStore{redis: client, opts: opts.normalize()}
}

func (s *RedisSessionStore) key(id string) string {
	return s.opts.Prefix + ":sess:" + id
}

func (s *RedisSessionStore) Create(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrInvalidKey
	}
	encoded, err := encodeSessionRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.ID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	raw, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeSessionRecord(id, raw)
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
