package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventhub/authcore/otp"
	"github.com/eventhub/authcore/store"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	Backend        string        `json:"backend"`
	RedisAvailable bool          `json:"redis_available"`
	RedisLatency   time.Duration `json:"redis_latency"`
}

// OTPStatus is the safe view of an outstanding code. It never carries the
// hash.
type OTPStatus struct {
	Email             string    `json:"email"`
	ExpiresAt         time.Time `json:"expires_at"`
	Attempts          int       `json:"attempts"`
	RemainingAttempts int       `json:"remaining_attempts"`
	Expired           bool      `json:"expired"`
}

// Health pings the Redis backend when one is in use. In-memory engines
// always report healthy.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil {
		return HealthStatus{}
	}
	if e.redis == nil {
		return HealthStatus{Backend: BackendMemory, RedisAvailable: true}
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	status := HealthStatus{
		Backend:        e.config.Store.Backend,
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
	if err != nil {
		e.logger.WithError(err).Warn("authcore: redis health check failed")
	}
	return status
}

// GetOTPStatus reports the outstanding code for email without consuming an
// attempt.
func (e *Engine) GetOTPStatus(ctx context.Context, purpose OTPPurpose, email string) (*OTPStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if purpose != PurposeUserLogin && purpose != PurposeAdminLogin {
		return nil, fmt.Errorf("%w: unknown purpose", ErrValidation)
	}
	addr, err := otp.ParseEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec, err := e.otp[purpose].Peek(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFoundOrExpired
		}
		return nil, storeErr(err)
	}
	if rec == nil {
		return nil, ErrNotFoundOrExpired
	}

	remaining := e.config.OTP.MaxAttempts - rec.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return &OTPStatus{
		Email:             addr,
		ExpiresAt:         rec.ExpiresAt,
		Attempts:          rec.Attempts,
		RemainingAttempts: remaining,
		Expired:           rec.Expired(e.now()),
	}, nil
}
