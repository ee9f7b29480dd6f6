package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPThrottle is a token bucket per client IP. Idle buckets are evicted by
// Sweep.
type IPThrottle struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewIPThrottle allows perMinute requests per IP with the given burst.
func NewIPThrottle(perMinute float64, burst int, idle time.Duration) *IPThrottle {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &IPThrottle{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*ipBucket),
	}
}

// Allow consumes one token for ip.
func (t *IPThrottle) Allow(ip string) bool {
	if t == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}
	now := t.now()

	t.mu.Lock()
	b, ok := t.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[ip] = b
	}
	b.seen = now
	t.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Sweep evicts buckets idle for longer than the idle period.
func (t *IPThrottle) Sweep() int {
	if t == nil {
		return 0
	}
	cutoff := t.now().Add(-t.idle)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, b := range t.buckets {
		if b.seen.Before(cutoff) {
			delete(t.buckets, ip)
			removed++
		}
	}
	return removed
}
