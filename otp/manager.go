package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventhub/authcore/internal"
	"github.com/eventhub/authcore/store"
)

const (
	DefaultDigits      = 6
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 3
)

// Status is the outcome of a verification.
type Status int

const (
	StatusVerified Status = iota + 1
	StatusInvalid
	StatusExpired
	StatusNotFound
	StatusMaxAttemptsExceeded
	StatusInvalidFormat
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusInvalid:
		return "invalid"
	case StatusExpired:
		return "expired"
	case StatusNotFound:
		return "not_found"
	case StatusMaxAttemptsExceeded:
		return "max_attempts_exceeded"
	case StatusInvalidFormat:
		return "invalid_format"
	default:
		return "unknown"
	}
}

// Result reports a verification outcome. Remaining is only meaningful for
// StatusInvalid.
type Result struct {
	Status    Status
	Remaining int
}

// Issued is the plaintext handed to the caller once, for delivery.
type Issued struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Config tunes a Manager. Zero fields take the package defaults.
type Config struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	// Namespace separates independent code populations sharing one store,
	// for example end-user and administrator logins.
	Namespace string
	Now       func() time.Time
}

// Manager issues and verifies codes for one namespace.
type Manager struct {
	store  store.OTPStore
	hasher Hasher
	cfg    Config
}

// NewManager validates cfg and binds it to a store and hasher.
func NewManager(s store.OTPStore, h Hasher, cfg Config) (*Manager, error) {
	if s == nil {
		return nil, errors.New("otp: nil store")
	}
	if h == nil {
		h = BcryptHasher{}
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Digits < 4 || cfg.Digits > 10 {
		return nil, errors.New("otp: digits must be in [4,10]")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("otp: ttl must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("otp: max attempts must be >= 1")
	}

	return &Manager{store: s, hasher: h, cfg: cfg}, nil
}

func (m *Manager) key(email string) string {
	if m.cfg.Namespace == "" {
		return email
	}
	return m.cfg.Namespace + ":" + email
}

// RequestCode generates a fresh code for email and replaces any outstanding
// one. The plaintext is only ever returned here.
func (m *Manager) RequestCode(ctx context.Context, email string) (Issued, error) {
	email, err := ParseEmail(email)
	if err != nil {
		return Issued{}, err
	}

	code, err := internal.NewCode(m.cfg.Digits)
	if err != nil {
		return Issued{}, fmt.Errorf("otp: generate code: %w", err)
	}
	hashed, err := m.hasher.Hash(code)
	if err != nil {
		return Issued{}, fmt.Errorf("otp: hash code: %w", err)
	}

	expiresAt := m.cfg.Now().Add(m.cfg.TTL)
	if err := m.store.Put(ctx, m.key(email), store.OTPRecord{
		HashedCode: hashed,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return Issued{}, err
	}

	return Issued{Email: email, Code: code, ExpiresAt: expiresAt}, nil
}

// VerifyCode checks submitted against the outstanding code for email.
//
// Expired records and records that already used up their attempts are
// deleted and reported as such. The attempt that exhausts the budget still
// reports StatusInvalid with Remaining 0; the next call reports
// StatusMaxAttemptsExceeded. A match consumes the record.
func (m *Manager) VerifyCode(ctx context.Context, email, submitted string) (Result, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Result{}, ErrInvalidEmail
	}
	code, ok := NormalizeCode(submitted, m.cfg.Digits)
	if !ok {
		return Result{Status: StatusInvalidFormat}, nil
	}

	var res Result
	err := m.store.Mutate(ctx, m.key(email), func(rec *store.OTPRecord) (store.Action, error) {
		now := m.cfg.Now()

		if rec == nil {
			res = Result{Status: StatusNotFound}
			return store.Keep, nil
		}
		if rec.Expired(now) {
			res = Result{Status: StatusExpired}
			return store.Delete, nil
		}
		if rec.Attempts >= m.cfg.MaxAttempts {
			res = Result{Status: StatusMaxAttemptsExceeded}
			return store.Delete, nil
		}

		match, err := m.hasher.Compare(rec.HashedCode, code)
		if err != nil {
			return store.Keep, fmt.Errorf("otp: compare code: %w", err)
		}
		if match {
			res = Result{Status: StatusVerified}
			return store.Delete, nil
		}

		rec.Attempts++
		rec.LastAttemptAt = now
		res = Result{Status: StatusInvalid, Remaining: m.cfg.MaxAttempts - rec.Attempts}
		return store.Put, nil
	})
	if err != nil {
		return Result{}, err
	}

	return res, nil
}

// Peek returns the stored record for email without touching it.
func (m *Manager) Peek(ctx context.Context, email string) (*store.OTPRecord, error) {
	return m.store.Get(ctx, m.key(NormalizeEmail(email)))
}

// TTL reports the configured code lifetime.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}
