package authcore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
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

// Builder assembles an Engine. It is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	principals PrincipalStore
	sender     mail.Sender
	auditSink  AuditSink
	logger     *log.Entry
	now        func() time.Time
	lookupEnv  func(string) (string, bool)

	otpStore     store.OTPStore
	sessionStore store.SessionStore
	hasher       otp.Hasher
	mailPool     mail.Pool
	mailCounter  mail.Counter

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs codes, sessions and the mail counter with client,
// regardless of Store.Backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithPrincipalStore(ps PrincipalStore) *Builder {
	b.principals = ps
	return b
}

func (b *Builder) WithMailSender(sender mail.Sender) *Builder {
	b.sender = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(entry *log.Entry) *Builder {
	b.logger = entry
	return b
}

// WithClock replaces time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithEnvLookup replaces os.LookupEnv for reading mail credentials.
func (b *Builder) WithEnvLookup(lookup func(string) (string, bool)) *Builder {
	b.lookupEnv = lookup
	return b
}

func (b *Builder) WithOTPStore(s store.OTPStore) *Builder {
	b.otpStore = s
	return b
}

func (b *Builder) WithSessionStore(s store.SessionStore) *Builder {
	b.sessionStore = s
	return b
}

func (b *Builder) WithHasher(h otp.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithMailPool(p mail.Pool) *Builder {
	b.mailPool = p
	return b
}

func (b *Builder) WithMailCounter(c mail.Counter) *Builder {
	b.mailCounter = c
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.principals == nil {
		return nil, fmt.Errorf("%w: principal store required", ErrEngineNotReady)
	}
	if b.sender == nil {
		return nil, fmt.Errorf("%w: mail sender required", ErrEngineNotReady)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = log.NewEntry(NewLogger(cfg.Logging, nil))
	}
	logger = logger.WithField("component", "authcore")

	engine := &Engine{
		config:     cfg,
		principals: b.principals,
		sender:     b.sender,
		logger:     logger,
		now:        now,
	}

	// -------- BACKENDS --------
	client := b.redis
	if client == nil {
		switch cfg.Store.Backend {
		case BackendRedis:
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.Store.RedisAddr,
				Password: cfg.Store.RedisPassword,
				DB:       cfg.Store.RedisDB,
			})
			engine.ownedRedis = client
		case BackendMiniredis:
			mr, err := miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start miniredis: %w", err)
			}
			engine.miniredis = mr
			client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
			engine.ownedRedis = client
		}
	}

	engine.redis = client

	var sweepers []store.Sweeper
	otpStore := b.otpStore
	sessionStore := b.sessionStore
	if client != nil {
		opts := store.RedisOptions{Prefix: cfg.Store.Prefix, Retention: cfg.Store.Retention, Now: now}
		if otpStore == nil {
			otpStore = store.NewRedisOTPStore(client, opts)
		}
		if sessionStore == nil {
			sessionStore = store.NewRedisSessionStore(client, opts)
		}
	} else {
		opts := store.MemoryOptions{Retention: cfg.Store.Retention, Now: now}
		if otpStore == nil {
			mem := store.NewMemoryOTPStore(opts)
			otpStore = mem
			sweepers = append(sweepers, mem)
		}
		if sessionStore == nil {
			mem := store.NewMemorySessionStore(opts)
			sessionStore = mem
			sweepers = append(sweepers, mem)
		}
	}
	engine.sessions = sessionStore

	// -------- PASSCODES --------
	hasher := b.hasher
	if hasher == nil {
		var err error
		if hasher, err = newHasher(cfg.OTP); err != nil {
			engine.closeBackends()
			return nil, err
		}
	}
	for purpose, ns := range map[OTPPurpose]string{PurposeUserLogin: "user", PurposeAdminLogin: "admin"} {
		m, err := otp.NewManager(otpStore, hasher, otp.Config{
			Digits:      cfg.OTP.Digits,
			TTL:         cfg.OTP.TTL,
			MaxAttempts: cfg.OTP.MaxAttempts,
			Namespace:   ns,
			Now:         now,
		})
		if err != nil {
			engine.closeBackends()
			return nil, err
		}
		engine.otp[purpose] = m
	}

	// -------- RATE LIMIT --------
	engine.ratePolicy = ratelimit.Policy{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
	codec, err := ratelimit.NewCookieCodec([]byte(cfg.RateLimit.CookieSecret), cfg.RateLimit.Window, now)
	if err != nil {
		engine.closeBackends()
		return nil, err
	}
	engine.rateCodec = codec

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		User:     jwt.KeyConfig{Secret: []byte(cfg.Tokens.UserSecret), TTL: cfg.Tokens.UserTTL},
		Admin:    jwt.KeyConfig{Secret: []byte(cfg.Tokens.AdminSecret), TTL: cfg.Tokens.AdminTTL},
		Issuer:   cfg.Tokens.Issuer,
		Audience: cfg.Tokens.Audience,
		Leeway:   cfg.Tokens.Leeway,
		Now:      now,
	})
	if err != nil {
		engine.closeBackends()
		return nil, err
	}
	engine.tokens = jm

	// -------- MAIL --------
	pool := b.mailPool
	if pool == nil {
		pool = b.buildPool(cfg.Mail)
	}
	counter := b.mailCounter
	if counter == nil {
		if client != nil {
			counter = mail.NewRedisCounter(client, cfg.Mail.CounterKey)
		} else {
			counter = &mail.MemoryCounter{}
		}
	}
	rotator, err := mail.NewRotator(pool, counter, mail.Config{PoolSize: cfg.Mail.PoolSize, Quota: cfg.Mail.Quota}, logger)
	if err != nil {
		engine.closeBackends()
		return nil, err
	}
	engine.rotator = rotator

	engine.audit = newAuditQueue(cfg.Audit, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	if len(sweepers) > 0 && cfg.Session.JanitorInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		engine.stopJanitor = cancel
		engine.janitorDone = make(chan struct{})
		go func() {
			defer close(engine.janitorDone)
			store.RunJanitor(ctx, cfg.Session.JanitorInterval, sweepers...)
		}()
	}

	b.built = true

	return engine, nil
}

func (b *Builder) buildPool(cfg MailConfig) *mail.StaticPool {
	base := mail.Account{Host: cfg.Host, Port: cfg.Port, From: cfg.From}

	accounts := make([]mail.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		if a.Host == "" {
			a.Host = base.Host
		}
		if a.Port == 0 {
			a.Port = base.Port
		}
		if a.From == "" {
			a.From = base.From
		}
		accounts = append(accounts, a)
	}
	pool := mail.NewStaticPool(cfg.PoolSize, accounts)

	if strings.TrimSpace(cfg.EnvPrefix) != "" {
		lookup := b.lookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		pool.Merge(mail.PoolFromEnv(cfg.EnvPrefix, cfg.PoolSize, base, lookup))
	}
	return pool
}

func newHasher(cfg OTPConfig) (otp.Hasher, error) {
	switch strings.ToLower(cfg.Hasher) {
	case "argon2":
		h := otp.DefaultArgon2Hasher()
		if err := h.Validate(); err != nil {
			return nil, err
		}
		return h, nil
	default:
		return otp.BcryptHasher{Cost: cfg.BcryptCost}, nil
	}
}
