package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by LoadConfig. They win over the file.
const (
	EnvConfigPath     = "AUTHCORE_CONFIG"
	EnvUserSecret     = "AUTHCORE_USER_TOKEN_SECRET"
	EnvAdminSecret    = "AUTHCORE_ADMIN_TOKEN_SECRET"
	EnvRateSecret     = "AUTHCORE_RATE_LIMIT_SECRET"
	EnvStoreBackend   = "AUTHCORE_STORE_BACKEND"
	EnvRedisAddr      = "AUTHCORE_REDIS_ADDR"
	EnvRedisPassword  = "AUTHCORE_REDIS_PASSWORD"
	EnvDatabaseDriver = "AUTHCORE_DB_DRIVER"
	EnvDatabaseDSN    = "AUTHCORE_DB_DSN"
	EnvHTTPAddr       = "AUTHCORE_HTTP_ADDR"
	EnvSecureCookies  = "AUTHCORE_SECURE_COOKIES"
	EnvLogLevel       = "AUTHCORE_LOG_LEVEL"
	EnvMailHost       = "AUTHCORE_MAIL_HOST"
	EnvMailPort       = "AUTHCORE_MAIL_PORT"
	EnvMailQuota      = "AUTHCORE_MAIL_QUOTA"
	EnvUserTTL        = "AUTHCORE_USER_TOKEN_TTL"
	EnvAdminTTL       = "AUTHCORE_ADMIN_TOKEN_TTL"
)

// ResolveConfigPath applies the default path when p is blank.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./authcore.yaml"
	}
	return trimmed
}

// LoadConfig reads a YAML file over DefaultConfig and then applies
// environment overrides. A missing file is not an error. The result is not
// validated; Build does that.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvUserSecret, &cfg.Tokens.UserSecret)
	str(EnvAdminSecret, &cfg.Tokens.AdminSecret)
	str(EnvRateSecret, &cfg.RateLimit.CookieSecret)
	str(EnvStoreBackend, &cfg.Store.Backend)
	str(EnvRedisAddr, &cfg.Store.RedisAddr)
	str(EnvRedisPassword, &cfg.Store.RedisPassword)
	str(EnvDatabaseDriver, &cfg.Database.Driver)
	str(EnvDatabaseDSN, &cfg.Database.DSN)
	str(EnvHTTPAddr, &cfg.HTTP.Addr)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvMailHost, &cfg.Mail.Host)

	if v, ok := lookup(EnvSecureCookies); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSecureCookies, err)
		}
		cfg.HTTP.SecureCookies = b
	}
	for key, dst := range map[string]*int{EnvMailPort: &cfg.Mail.Port, EnvMailQuota: &cfg.Mail.Quota} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	for key, dst := range map[string]*time.Duration{EnvUserTTL: &cfg.Tokens.UserTTL, EnvAdminTTL: &cfg.Tokens.AdminTTL} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}
