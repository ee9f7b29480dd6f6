package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultUserTTL  = 7 * 24 * time.Hour
	DefaultAdminTTL = 12 * time.Hour

	minSecretLength = 32
	maxAccessLevel  = 3
)

// KeyConfig is the secret and lifetime of one token kind.
type KeyConfig struct {
	Secret []byte
	TTL    time.Duration
}

// Config configures a Manager.
type Config struct {
	User         KeyConfig
	Admin        KeyConfig
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Manager signs and verifies both token kinds.
type Manager struct {
	config Config
	keys   map[Kind]KeyConfig
}

type wireClaims struct {
	Kind    string `json:"knd"`
	Email   string `json:"email,omitempty"`
	Level   *int   `json:"lvl,omitempty"`
	Society string `json:"soc,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg. Both secrets are required and must differ.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.User.TTL == 0 {
		cfg.User.TTL = DefaultUserTTL
	}
	if cfg.Admin.TTL == 0 {
		cfg.Admin.TTL = DefaultAdminTTL
	}
	if cfg.User.TTL < 0 || cfg.Admin.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.User.Secret) < minSecretLength || len(cfg.Admin.Secret) < minSecretLength {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", minSecretLength)
	}
	if bytes.Equal(cfg.User.Secret, cfg.Admin.Secret) {
		return nil, errors.New("user and admin token secrets must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cfg.User.Secret = append([]byte(nil), cfg.User.Secret...)
	cfg.Admin.Secret = append([]byte(nil), cfg.Admin.Secret...)

	return &Manager{
		config: cfg,
		keys: map[Kind]KeyConfig{
			KindUser:  cfg.User,
			KindAdmin: cfg.Admin,
		},
	}, nil
}

// TTL reports the lifetime of tokens of kind k.
func (j *Manager) TTL(k Kind) time.Duration {
	return j.keys[k].TTL
}

// Issue signs claims with the secret of their kind.
func (j *Manager) Issue(claims Claims) (string, time.Time, error) {
	if claims == nil {
		return "", time.Time{}, errors.New("nil claims")
	}
	key, ok := j.keys[claims.Kind()]
	if !ok {
		return "", time.Time{}, ErrUnknownKind
	}

	now := j.config.Now()
	expiresAt := now.Add(key.TTL)

	wire := wireClaims{
		Kind: claims.Kind().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		wire.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	switch c := claims.(type) {
	case UserClaims:
		wire.Email = c.Email
	case AdminClaims:
		if c.AccessLevel < 0 || c.AccessLevel > maxAccessLevel {
			return "", time.Time{}, fmt.Errorf("%w: access level %d", ErrInvalidClaims, c.AccessLevel)
		}
		level := c.AccessLevel
		wire.Email = c.Email
		wire.Level = &level
		wire.Society = c.ClubOrSociety
	default:
		return "", time.Time{}, ErrUnknownKind
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(key.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Truncate(time.Second), nil
}

// Verify checks tokenStr against the keys listed by policy, in order. The
// next key is only tried when the previous one rejected the signature, so an
// expired token is reported as expired rather than masked by a fallback.
func (j *Manager) Verify(tokenStr string, policy Policy) (*Token, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrMalformed
	}

	var lastErr error
	for _, kind := range policy.Order() {
		tok, err := j.verifyWith(tokenStr, kind)
		if err == nil {
			return tok, nil
		}
		lastErr = err
		if !errors.Is(err, ErrInvalidSignature) {
			break
		}
	}
	return nil, lastErr
}

func (j *Manager) verifyWith(tokenStr string, kind Kind) (*Token, error) {
	key, ok := j.keys[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	var wire wireClaims
	parser := jwt.NewParser(options...)
	_, err := parser.ParseWithClaims(tokenStr, &wire, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if wire.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		if wire.IssuedAt.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidClaims)
		}
	}

	claims, err := decodeClaims(&wire)
	if err != nil {
		return nil, err
	}
	if claims.Kind() != kind {
		return nil, ErrKindMismatch
	}

	tok := &Token{Claims: claims, ID: wire.ID}
	if wire.IssuedAt != nil {
		tok.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		tok.ExpiresAt = wire.ExpiresAt.Time
	}
	return tok, nil
}

func decodeClaims(w *wireClaims) (Claims, error) {
	kind, ok := ParseKind(w.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, w.Kind)
	}
	if w.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	switch kind {
	case KindUser:
		return UserClaims{UserID: w.Subject, Email: w.Email}, nil
	case KindAdmin:
		if w.Level == nil || *w.Level < 0 || *w.Level > maxAccessLevel {
			return nil, fmt.Errorf("%w: bad access level", ErrMalformed)
		}
		return AdminClaims{
			AdminID:       w.Subject,
			Email:         w.Email,
			AccessLevel:   *w.Level,
			ClubOrSociety: w.Society,
		}, nil
	default:
		return nil, ErrMalformed
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
