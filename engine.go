package authcore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventhub/authcore/jwt"
	"github.com/eventhub/authcore/mail"
	"github.com/eventhub/authcore/otp"
	"github.com/eventhub/authcore/ratelimit"
	"github.com/eventhub/authcore/store"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Engine runs every authentication flow. It is safe for concurrent use.
type Engine struct {
	config     Config
	principals PrincipalStore
	sender     mail.Sender
	logger     *log.Entry
	now        func() time.Time

	otp        [2]*otp.Manager
	sessions   store.SessionStore
	ratePolicy ratelimit.Policy
	rateCodec  *ratelimit.CookieCodec
	tokens     *jwt.Manager
	rotator    *mail.Rotator
	audit      *auditQueue
	metrics    *Metrics

	redis       redis.UniversalClient
	ownedRedis  redis.UniversalClient
	miniredis   *miniredis.Miniredis
	stopJanitor func()
	janitorDone chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// Close stops background work and releases backends the engine opened
// itself. Calls after the first are no-ops.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.stopJanitor != nil {
			e.stopJanitor()
			<-e.janitorDone
		}
		if e.audit != nil {
			e.audit.Close()
		}
		e.closeBackends()
	})
}

func (e *Engine) closeBackends() {
	if e.ownedRedis != nil {
		if err := e.ownedRedis.Close(); err != nil {
			e.logger.WithError(err).Warn("authcore: failed to close redis client")
		}
	}
	if e.miniredis != nil {
		e.miniredis.Close()
	}
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// RateLimitCodec signs and reads the client-carried rate-limit record.
func (e *Engine) RateLimitCodec() *ratelimit.CookieCodec {
	return e.rateCodec
}

// Logger is the engine's component logger.
func (e *Engine) Logger() *log.Entry {
	return e.logger
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeErr maps backend failures onto the public taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFoundOrExpired
	default:
		return err
	}
}

func principalErr(err error) error {
	if err == nil || errors.Is(err, ErrPrincipalNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
