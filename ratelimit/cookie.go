package ratelimit

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieCodec serializes a Record into a tamper-evident cookie value.
// Anything that fails to decode is treated as if the cookie were absent.
type CookieCodec struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

type recordClaims struct {
	Attempts int   `json:"n"`
	First    int64 `json:"f"`
	jwt.RegisteredClaims
}

// NewCookieCodec returns a codec signing with secret (HS256). window bounds
// the cookie lifetime.
func NewCookieCodec(secret []byte, window time.Duration, now func() time.Time) (*CookieCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("ratelimit: cookie secret must be at least 16 bytes")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &CookieCodec{secret: append([]byte(nil), secret...), window: window, now: now}, nil
}

// Encode signs rec. The expiry sits one second past the window so the
// record still decodes at the boundary instant.
func (c *CookieCodec) Encode(rec Record) (string, error) {
	claims := recordClaims{
		Attempts: rec.Attempts,
		First:    rec.FirstAttemptAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(rec.FirstAttemptAt.Add(c.window + time.Second)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies value. ok is false for empty, forged or lapsed cookies.
func (c *CookieCodec) Decode(value string) (rec *Record, ok bool) {
	if value == "" {
		return nil, false
	}

	var claims recordClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(value, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid || claims.Attempts < 0 {
		return nil, false
	}

	return &Record{
		Attempts:       claims.Attempts,
		FirstAttemptAt: time.UnixMilli(claims.First),
	}, true
}

// MaxAge is the cookie lifetime to advertise for rec.
func (c *CookieCodec) MaxAge(rec Record) time.Duration {
	left := rec.FirstAttemptAt.Add(c.window).Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}
