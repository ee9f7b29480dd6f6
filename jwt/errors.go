package jwt

import "errors"

var (
	ErrMalformed        = errors.New("jwt: malformed token")
	ErrInvalidSignature = errors.New("jwt: invalid signature")
	ErrExpired          = errors.New("jwt: token expired")
	ErrInvalidClaims    = errors.New("jwt: invalid claims")
	ErrKindMismatch     = errors.New("jwt: token kind does not match key")
	ErrUnknownKind      = errors.New("jwt: no key configured for token kind")
)
