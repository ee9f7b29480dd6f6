package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventhub/authcore/store"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, s store.OTPStore) (*Manager, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m, err := NewManager(s, BcryptHasher{Cost: bcrypt.MinCost}, Config{Namespace: "user", Now: clock.Now})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, clock
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestRequestThenVerifyIsSingleUse(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, err := m.RequestCode(ctx, "  Alice@Example.COM ")
	if err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	if issued.Email != "alice@example.com" || len(issued.Code) != 6 {
		t.Fatalf("unexpected issue: %+v", issued)
	}

	res, err := m.VerifyCode(ctx, "alice@example.com", issued.Code)
	if err != nil || res.Status != StatusVerified {
		t.Fatalf("expected verified, got %+v err=%v", res, err)
	}

	res, err = m.VerifyCode(ctx, "alice@example.com", issued.Code)
	if err != nil || res.Status != StatusNotFound {
		t.Fatalf("expected not found on reuse, got %+v err=%v", res, err)
	}
}

func TestStoredRecordHoldsOnlyHash(t *testing.T) {
	m, clock := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, _ := m.RequestCode(ctx, "a@example.com")
	rec, err := m.Peek(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if rec.HashedCode == issued.Code || rec.HashedCode == "" {
		t.Fatal("record must carry a hash, not the code")
	}
	if !rec.ExpiresAt.Equal(clock.Now().Add(10*time.Minute)) || rec.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestWrongCodeSequence(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, _ := m.RequestCode(ctx, "b@example.com")
	bad := wrongCode(issued.Code)

	for _, want := range []int{2, 1, 0} {
		res, err := m.VerifyCode(ctx, "b@example.com", bad)
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if res.Status != StatusInvalid || res.Remaining != want {
			t.Fatalf("expected invalid(%d), got %+v", want, res)
		}
	}

	res, _ := m.VerifyCode(ctx, "b@example.com", issued.Code)
	if res.Status != StatusMaxAttemptsExceeded {
		t.Fatalf("expected max attempts even with the right code, got %+v", res)
	}
	res, _ = m.VerifyCode(ctx, "b@example.com", issued.Code)
	if res.Status != StatusNotFound {
		t.Fatalf("expected record purged, got %+v", res)
	}
}

func TestWrongThenRightCode(t *testing.T) {
	m, clock := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, _ := m.RequestCode(ctx, "c@example.com")
	clock.Advance(time.Minute)
	if res, _ := m.VerifyCode(ctx, "c@example.com", wrongCode(issued.Code)); res.Status != StatusInvalid {
		t.Fatalf("expected invalid, got %+v", res)
	}
	rec, _ := m.Peek(ctx, "c@example.com")
	if rec.Attempts != 1 || !rec.LastAttemptAt.Equal(clock.Now()) {
		t.Fatalf("unexpected record after miss: %+v", rec)
	}
	if res, _ := m.VerifyCode(ctx, "c@example.com", issued.Code); res.Status != StatusVerified {
		t.Fatalf("expected verified, got %+v", res)
	}
}

func TestExpiry(t *testing.T) {
	m, clock := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, _ := m.RequestCode(ctx, "d@example.com")
	clock.Advance(10*time.Minute + time.Second)

	res, err := m.VerifyCode(ctx, "d@example.com", issued.Code)
	if err != nil || res.Status != StatusExpired {
		t.Fatalf("expected expired, got %+v err=%v", res, err)
	}
	if _, err := m.Peek(ctx, "d@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired record deleted, got %v", err)
	}
}

func TestExactlyAtExpiryIsStillValid(t *testing.T) {
	m, clock := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, _ := m.RequestCode(ctx, "e@example.com")
	clock.Advance(10 * time.Minute)

	if res, _ := m.VerifyCode(ctx, "e@example.com", issued.Code); res.Status != StatusVerified {
		t.Fatalf("expected verified at the boundary, got %+v", res)
	}
}

func TestNewRequestOverwrites(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	first, _ := m.RequestCode(ctx, "f@example.com")
	_, _ = m.VerifyCode(ctx, "f@example.com", wrongCode(first.Code))
	second, _ := m.RequestCode(ctx, "f@example.com")

	rec, _ := m.Peek(ctx, "f@example.com")
	if rec.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", rec.Attempts)
	}
	if first.Code != second.Code {
		if res, _ := m.VerifyCode(ctx, "f@example.com", first.Code); res.Status != StatusInvalid {
			t.Fatalf("old code must not verify, got %+v", res)
		}
	}
	if res, _ := m.VerifyCode(ctx, "f@example.com", second.Code); res.Status != StatusVerified {
		t.Fatalf("expected new code to verify, got %+v", res)
	}
}

func TestInvalidFormatDoesNotTouchRecord(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	_, _ = m.RequestCode(ctx, "g@example.com")
	res, err := m.VerifyCode(ctx, "g@example.com", "abc")
	if err != nil || res.Status != StatusInvalidFormat {
		t.Fatalf("expected invalid format, got %+v err=%v", res, err)
	}
	rec, _ := m.Peek(ctx, "g@example.com")
	if rec.Attempts != 0 {
		t.Fatalf("format errors must not count as attempts, got %d", rec.Attempts)
	}
}

func TestSubmittedCodeNormalization(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	ctx := context.Background()

	issued, _ := m.RequestCode(ctx, "h@example.com")
	spaced := issued.Code[:3] + " - " + issued.Code[3:] + "99"
	if res, _ := m.VerifyCode(ctx, "H@example.com ", spaced); res.Status != StatusVerified {
		t.Fatalf("expected normalized code to verify, got %+v", res)
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	s := store.NewMemoryOTPStore(store.MemoryOptions{})
	users, _ := NewManager(s, BcryptHasher{Cost: bcrypt.MinCost}, Config{Namespace: "user"})
	admins, _ := NewManager(s, BcryptHasher{Cost: bcrypt.MinCost}, Config{Namespace: "admin"})
	ctx := context.Background()

	issued, _ := users.RequestCode(ctx, "i@example.com")
	if res, _ := admins.VerifyCode(ctx, "i@example.com", issued.Code); res.Status != StatusNotFound {
		t.Fatalf("user code must not exist in admin namespace, got %+v", res)
	}
	if res, _ := users.VerifyCode(ctx, "i@example.com", issued.Code); res.Status != StatusVerified {
		t.Fatalf("expected verified, got %+v", res)
	}
}

func TestRequestRejectsBadEmail(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryOTPStore(store.MemoryOptions{}))
	for _, email := range []string{"", "   ", "not-an-email", "Bob <bob@example.com>"} {
		if _, err := m.RequestCode(context.Background(), email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", email, err)
		}
	}
}

func TestConcurrentVerifyYieldsOneSuccess(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	backends := map[string]store.OTPStore{
		"memory": store.NewMemoryOTPStore(store.MemoryOptions{}),
		"redis":  store.NewRedisOTPStore(client, store.RedisOptions{Prefix: "otp-test"}),
	}

	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			m, _ := newTestManager(t, s)
			ctx := context.Background()
			issued, _ := m.RequestCode(ctx, "race@example.com")

			const workers = 8
			results := make(chan Status, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := m.VerifyCode(ctx, "race@example.com", issued.Code)
					if err != nil {
						if errors.Is(err, store.ErrConflict) {
							return
						}
						t.Errorf("VerifyCode failed: %v", err)
						return
					}
					results <- res.Status
				}()
			}
			wg.Wait()
			close(results)

			verified := 0
			for status := range results {
				if status == StatusVerified {
					verified++
				}
			}
			if verified != 1 {
				t.Fatalf("expected exactly one success, got %d", verified)
			}
		})
	}
}
