package authcore

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eventhub/authcore/jwt"
	"github.com/eventhub/authcore/mail"
	"github.com/eventhub/authcore/otp"
	"github.com/eventhub/authcore/ratelimit"
	"github.com/eventhub/authcore/store"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what you need; Build validates the result.
type Config struct {
	OTP       OTPConfig       `yaml:"otp"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tokens    TokenConfig     `yaml:"tokens"`
	Session   SessionConfig   `yaml:"session"`
	Mail      MailConfig      `yaml:"mail"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	Digits      int           `yaml:"digits"`
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	// Hasher is "bcrypt" (default) or "argon2".
	Hasher     string `yaml:"hasher"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	// CookieSecret signs the client-carried rate-limit record.
	CookieSecret string `yaml:"cookie_secret"`
	// IPPerMinute enables a per-IP token bucket in front of the request
	// endpoints when > 0.
	IPPerMinute float64 `yaml:"ip_per_minute"`
	IPBurst     int     `yaml:"ip_burst"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

type TokenConfig struct {
	UserSecret  string        `yaml:"user_secret"`
	AdminSecret string        `yaml:"admin_secret"`
	UserTTL     time.Duration `yaml:"user_ttl"`
	AdminTTL    time.Duration `yaml:"admin_ttl"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	Leeway      time.Duration `yaml:"leeway"`
	// VerifyPrincipal re-reads the principal on every VerifyToken so deleted
	// users and demoted admins lose access before their token expires.
	VerifyPrincipal bool `yaml:"verify_principal"`
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	Lifetime        time.Duration `yaml:"lifetime"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

/*
====================================
MAIL CONFIG
====================================
*/

type MailConfig struct {
	PoolSize int    `yaml:"pool_size"`
	Quota    int    `yaml:"quota"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	// EnvPrefix is where numbered account credentials are read from, e.g.
	// AUTHCORE_MAIL_USER_1. Empty disables the environment lookup.
	EnvPrefix  string         `yaml:"env_prefix"`
	Accounts   []mail.Account `yaml:"accounts"`
	CounterKey string         `yaml:"counter_key"`
	Subject    string         `yaml:"subject"`
}

/*
====================================
STORE CONFIG
====================================
*/

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendMiniredis = "miniredis"
)

type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	Retention     time.Duration `yaml:"retention"`
}

/*
====================================
DATABASE CONFIG
====================================
*/

// DatabaseConfig locates the principal database used by gormstore. The
// engine itself never opens it.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

/*
====================================
HTTP CONFIG
====================================
*/

type HTTPConfig struct {
	Addr              string `yaml:"addr"`
	SessionCookie     string `yaml:"session_cookie"`
	UserCookie        string `yaml:"user_cookie"`
	AdminCookie       string `yaml:"admin_cookie"`
	RateLimitCookie   string `yaml:"rate_limit_cookie"`
	SecureCookies     bool   `yaml:"secure_cookies"`
	SameSite          string `yaml:"same_site"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Token secrets and the
// rate-limit cookie secret are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Digits:      otp.DefaultDigits,
			TTL:         otp.DefaultTTL,
			MaxAttempts: otp.DefaultMaxAttempts,
			Hasher:      "bcrypt",
			BcryptCost:  10,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: ratelimit.DefaultMaxRequests,
			Window:      ratelimit.DefaultWindow,
			IPPerMinute: 0,
			IPBurst:     10,
		},
		Tokens: TokenConfig{
			UserTTL:         jwt.DefaultUserTTL,
			AdminTTL:        jwt.DefaultAdminTTL,
			Issuer:          "authcore",
			Leeway:          0,
			VerifyPrincipal: true,
		},
		Session: SessionConfig{
			Lifetime:        7 * 24 * time.Hour,
			JanitorInterval: time.Minute,
		},
		Mail: MailConfig{
			PoolSize:   mail.DefaultPoolSize,
			Quota:      mail.DefaultQuota,
			Port:       587,
			EnvPrefix:  mail.EnvPrefix,
			CounterKey: "authcore:mail:counter",
			Subject:    "Your login code",
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			Prefix:    "authcore",
			Retention: store.DefaultRetention,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:authcore.db?_pragma=busy_timeout(5000)",
			MaxConnections:  10,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			SessionCookie:   "session_id",
			UserCookie:      "user_token",
			AdminCookie:     "admin_token",
			RateLimitCookie: "otp_rl",
			SecureCookies:   true,
			SameSite:        "lax",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Mail.Accounts != nil {
		out.Mail.Accounts = append([]mail.Account(nil), cfg.Mail.Accounts...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration without touching any backend.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	switch strings.ToLower(c.OTP.Hasher) {
	case "", "bcrypt", "argon2":
	default:
		return errors.New("OTP Hasher must be bcrypt or argon2")
	}

	// Rate limit
	if err := (ratelimit.Policy{MaxRequests: c.RateLimit.MaxRequests, Window: c.RateLimit.Window}).Validate(); err != nil {
		return err
	}
	if len(c.RateLimit.CookieSecret) < 16 {
		return errors.New("RateLimit CookieSecret must be at least 16 bytes")
	}
	if c.RateLimit.IPPerMinute < 0 {
		return errors.New("RateLimit IPPerMinute must be >= 0")
	}

	// Tokens
	if len(c.Tokens.UserSecret) < 32 || len(c.Tokens.AdminSecret) < 32 {
		return errors.New("Tokens secrets must be at least 32 bytes")
	}
	if c.Tokens.UserSecret == c.Tokens.AdminSecret {
		return errors.New("Tokens UserSecret and AdminSecret must differ")
	}
	if c.Tokens.UserTTL <= 0 || c.Tokens.AdminTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.JanitorInterval < 0 {
		return errors.New("Session JanitorInterval must be >= 0")
	}

	// Mail
	if c.Mail.PoolSize <= 0 {
		return errors.New("Mail PoolSize must be > 0")
	}
	if c.Mail.Quota <= 0 {
		return errors.New("Mail Quota must be > 0")
	}
	for _, a := range c.Mail.Accounts {
		if a.Slot < 0 || a.Slot >= c.Mail.PoolSize {
			return errors.New("Mail account slot out of range")
		}
	}

	// Store
	switch c.Store.Backend {
	case BackendMemory, BackendMiniredis:
	case BackendRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
	default:
		return errors.New("Store Backend must be memory, redis, or miniredis")
	}
	if c.Store.Retention < 0 {
		return errors.New("Store Retention must be >= 0")
	}

	// Database
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return errors.New("Database Driver must be sqlite or postgres")
	}
	if c.Database.MaxConnections < 0 {
		return errors.New("Database MaxConnections must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// HTTP
	if c.HTTP.SessionCookie == "" || c.HTTP.UserCookie == "" || c.HTTP.AdminCookie == "" || c.HTTP.RateLimitCookie == "" {
		return errors.New("HTTP cookie names must not be empty")
	}
	if _, ok := parseSameSite(c.HTTP.SameSite); !ok {
		return errors.New("HTTP SameSite must be lax, strict, or none")
	}

	return nil
}

// SameSiteMode maps SameSite to the net/http constant, defaulting to Lax.
func (c HTTPConfig) SameSiteMode() http.SameSite {
	mode, ok := parseSameSite(c.SameSite)
	if !ok {
		return http.SameSiteLaxMode
	}
	return mode
}

func parseSameSite(name string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
