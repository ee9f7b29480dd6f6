package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func otpBackends(t *testing.T) map[string]OTPStore {
	t.Helper()
	_, client := newTestRedis(t)
	return map[string]OTPStore{
		"memory": NewMemoryOTPStore(MemoryOptions{}),
		"redis":  NewRedisOTPStore(client, RedisOptions{Prefix: "test"}),
	}
}

func TestOTPStorePutGetDelete(t *testing.T) {
	for name, s := range otpBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			exp := time.Now().Add(10 * time.Minute).Truncate(time.Millisecond)

			if _, err := s.Get(ctx, "user:a@example.com"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Put(ctx, "user:a@example.com", OTPRecord{HashedCode: "h1", ExpiresAt: exp}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := s.Get(ctx, "user:a@example.com")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.HashedCode != "h1" || !got.ExpiresAt.Equal(exp) || got.Attempts != 0 {
				t.Fatalf("unexpected record: %+v", got)
			}
			if !got.LastAttemptAt.IsZero() {
				t.Fatalf("expected zero last attempt, got %v", got.LastAttemptAt)
			}

			if err := s.Put(ctx, "user:a@example.com", OTPRecord{HashedCode: "h2", ExpiresAt: exp}); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			got, _ = s.Get(ctx, "user:a@example.com")
			if got.HashedCode != "h2" {
				t.Fatalf("expected overwrite, got %q", got.HashedCode)
			}

			if err := s.Delete(ctx, "user:a@example.com"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := s.Get(ctx, "user:a@example.com"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestOTPStoreMutateActions(t *testing.T) {
	for name, s := range otpBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "user:b@example.com"
			_ = s.Put(ctx, key, OTPRecord{HashedCode: "h", ExpiresAt: time.Now().Add(time.Minute)})

			err := s.Mutate(ctx, key, func(rec *OTPRecord) (Action, error) {
				if rec == nil {
					t.Fatal("expected record")
				}
				rec.Attempts++
				return Put, nil
			})
			if err != nil {
				t.Fatalf("Mutate put failed: %v", err)
			}
			got, _ := s.Get(ctx, key)
			if got.Attempts != 1 {
				t.Fatalf("expected attempts=1, got %d", got.Attempts)
			}

			if err := s.Mutate(ctx, key, func(rec *OTPRecord) (Action, error) {
				rec.Attempts = 99
				return Keep, nil
			}); err != nil {
				t.Fatalf("Mutate keep failed: %v", err)
			}
			got, _ = s.Get(ctx, key)
			if got.Attempts != 1 {
				t.Fatalf("Keep must not persist edits, got %d", got.Attempts)
			}

			boom := errors.New("boom")
			if err := s.Mutate(ctx, key, func(*OTPRecord) (Action, error) { return Delete, boom }); !errors.Is(err, boom) {
				t.Fatalf("expected callback error, got %v", err)
			}
			if _, err := s.Get(ctx, key); err != nil {
				t.Fatalf("callback error must abort the write: %v", err)
			}

			if err := s.Mutate(ctx, key, func(*OTPRecord) (Action, error) { return Delete, nil }); err != nil {
				t.Fatalf("Mutate delete failed: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			var sawNil bool
			_ = s.Mutate(ctx, key, func(rec *OTPRecord) (Action, error) {
				sawNil = rec == nil
				return Keep, nil
			})
			if !sawNil {
				t.Fatal("expected nil record for missing key")
			}
		})
	}
}

func TestOTPStoreMutateSerializesPerKey(t *testing.T) {
	for name, s := range otpBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "user:race@example.com"
			_ = s.Put(ctx, key, OTPRecord{HashedCode: "h", ExpiresAt: time.Now().Add(time.Minute)})

			const workers = 16
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				consumed int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Mutate(ctx, key, func(rec *OTPRecord) (Action, error) {
						if rec == nil {
							return Keep, nil
						}
						mu.Lock()
						consumed++
						mu.Unlock()
						return Delete, nil
					})
					if err != nil && !errors.Is(err, ErrConflict) {
						t.Errorf("Mutate failed: %v", err)
					}
				}()
			}
			wg.Wait()

			if consumed != 1 {
				t.Fatalf("expected exactly one consumer, got %d", consumed)
			}
		})
	}
}

func TestMemoryOTPStoreSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryOTPStore(MemoryOptions{Retention: time.Minute, Now: func() time.Time { return now }})
	ctx := context.Background()

	_ = s.Put(ctx, "old", OTPRecord{ExpiresAt: now.Add(-2 * time.Minute)})
	_ = s.Put(ctx, "recent", OTPRecord{ExpiresAt: now.Add(-30 * time.Second)})
	_ = s.Put(ctx, "live", OTPRecord{ExpiresAt: now.Add(time.Minute)})

	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", s.Len())
	}
	if s.locks.size() != 0 {
		t.Fatalf("expected key locks to be released, got %d", s.locks.size())
	}
}

func TestRedisOTPStoreCorruptRecordIsAbsent(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisOTPStore(client, RedisOptions{Prefix: "t"})
	ctx := context.Background()

	if err := mr.Set("t:otp:k", "garbage"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}

	err := s.Mutate(ctx, "k", func(rec *OTPRecord) (Action, error) {
		if rec != nil {
			t.Fatal("corrupt record must surface as nil")
		}
		return Delete, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if mr.Exists("t:otp:k") {
		t.Fatal("expected corrupt key to be removed")
	}
}

func TestRedisOTPStoreCorruptRecordDroppedOnKeep(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisOTPStore(client, RedisOptions{Prefix: "t"})
	ctx := context.Background()

	if err := mr.Set("t:otp:keep", "garbage"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	err := s.Mutate(ctx, "keep", func(rec *OTPRecord) (Action, error) {
		return Keep, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if mr.Exists("t:otp:keep") {
		t.Fatal("unreadable bytes must not survive a Keep")
	}

	if err := mr.Set("t:otp:fail", "garbage"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	err = s.Mutate(ctx, "fail", func(rec *OTPRecord) (Action, error) {
		return Keep, ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if mr.Exists("t:otp:fail") {
		t.Fatal("unreadable bytes must not survive a failed callback")
	}
}

func TestRedisOTPStoreTTLIncludesRetention(t *testing.T) {
	mr, client := newTestRedis(t)
	now := time.Now()
	s := NewRedisOTPStore(client, RedisOptions{Prefix: "t", Retention: time.Hour, Now: func() time.Time { return now }})

	if err := s.Put(context.Background(), "k", OTPRecord{HashedCode: "h", ExpiresAt: now.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	ttl := mr.TTL("t:otp:k")
	if ttl < 69*time.Minute || ttl > 70*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestRedisUnavailableIsWrapped(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisOTPStore(client, RedisOptions{})
	mr.Close()

	if err := s.Put(context.Background(), "k", OTPRecord{ExpiresAt: time.Now()}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
