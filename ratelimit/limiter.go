package ratelimit

import (
	"errors"
	"time"
)

const (
	DefaultMaxRequests = 3
	DefaultWindow      = 2 * time.Hour
)

// Record is the per-client window state.
type Record struct {
	Attempts       int
	FirstAttemptAt time.Time
}

// Policy is the fixed-window budget.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultPolicy allows three requests per two hours.
func DefaultPolicy() Policy {
	return Policy{MaxRequests: DefaultMaxRequests, Window: DefaultWindow}
}

// Validate rejects non-positive budgets.
func (p Policy) Validate() error {
	if p.MaxRequests < 1 {
		return errors.New("ratelimit: max requests must be >= 1")
	}
	if p.Window <= 0 {
		return errors.New("ratelimit: window must be positive")
	}
	return nil
}

// Decision is the outcome of a Check. Next is the record the caller must
// hand back to the client whether or not the request was allowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Next       Record
}

// RetryAfterMinutes rounds RetryAfter up to whole minutes.
func (d Decision) RetryAfterMinutes() int {
	if d.Allowed || d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Minute - 1) / time.Minute)
}

// Check decides whether one more request fits in the window. A nil record
// or one whose window has been exceeded starts a new window; at exactly
// FirstAttemptAt+Window the old window still applies.
func (p Policy) Check(rec *Record, now time.Time) Decision {
	if rec == nil || rec.FirstAttemptAt.IsZero() || rec.Attempts <= 0 || now.Sub(rec.FirstAttemptAt) > p.Window {
		return Decision{
			Allowed: true,
			Next:    Record{Attempts: 1, FirstAttemptAt: now},
		}
	}

	if rec.Attempts >= p.MaxRequests {
		retry := rec.FirstAttemptAt.Add(p.Window).Sub(now)
		if retry <= 0 {
			retry = time.Nanosecond
		}
		return Decision{
			Allowed:    false,
			RetryAfter: retry,
			Next:       *rec,
		}
	}

	next := *rec
	next.Attempts++
	return Decision{Allowed: true, Next: next}
}
