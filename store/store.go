package store

import (
	"context"
	"time"
)

// OTPRecord is the persisted state of one outstanding passcode. The
// plaintext code is never stored.
type OTPRecord struct {
	HashedCode    string
	ExpiresAt     time.Time
	Attempts      int
	LastAttemptAt time.Time
}

// Expired reports whether the record is unusable at now.
func (r OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Action tells Mutate what to do with the record after the callback ran.
type Action int

const (
	// Keep leaves the stored record untouched.
	Keep Action = iota
	// Put writes the (possibly modified) record back.
	Put
	// Delete removes the record.
	Delete
)

// MutateFunc inspects and optionally edits rec in place. rec is nil when no
// record exists for the key. Returning an error aborts without writing.
type MutateFunc func(rec *OTPRecord) (Action, error)

// OTPStore persists passcode records keyed by an opaque string (the caller
// composes namespace and normalized email).
type OTPStore interface {
	Put(ctx context.Context, key string, rec OTPRecord) error
	Get(ctx context.Context, key string) (*OTPRecord, error)
	// Mutate runs fn with exclusive access to key. No other Put, Mutate or
	// Delete on the same key interleaves with the read-modify-write.
	Mutate(ctx context.Context, key string, fn MutateFunc) error
	Delete(ctx context.Context, key string) error
}

// SessionRecord is an end-user session referenced by an opaque cookie value.
type SessionRecord struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// SessionStore persists session records. Expiry against the configured
// lifetime is decided by the caller; ttl only bounds how long the backend
// keeps the bytes around.
type SessionStore interface {
	Create(ctx context.Context, rec SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Delete(ctx context.Context, id string) error
}
