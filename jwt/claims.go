package jwt

import (
	"fmt"
	"time"
)

// Kind tags which principal a token was minted for.
type Kind uint8

const (
	KindUser Kind = iota + 1
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAdmin:
		return "admin"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "user":
		return KindUser, true
	case "admin":
		return KindAdmin, true
	default:
		return 0, false
	}
}

func (k Kind) other() Kind {
	if k == KindAdmin {
		return KindUser
	}
	return KindAdmin
}

// Claims is the closed set of token payloads: UserClaims or AdminClaims.
type Claims interface {
	Kind() Kind
	Subject() string
	isClaims()
}

// UserClaims identifies an end user.
type UserClaims struct {
	UserID string
	Email  string
}

func (UserClaims) Kind() Kind        { return KindUser }
func (c UserClaims) Subject() string { return c.UserID }
func (UserClaims) isClaims()         {}

// AdminClaims identifies an administrator and carries enough to authorize
// without a second lookup.
type AdminClaims struct {
	AdminID       string
	Email         string
	AccessLevel   int
	ClubOrSociety string
}

func (AdminClaims) Kind() Kind        { return KindAdmin }
func (c AdminClaims) Subject() string { return c.AdminID }
func (AdminClaims) isClaims()         {}

// Token is a verified token.
type Token struct {
	Claims    Claims
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Policy selects which keys an endpoint accepts and in which order.
type Policy struct {
	Hint     Kind
	Fallback bool
}

var (
	// UserOnly accepts end-user tokens.
	UserOnly = Policy{Hint: KindUser}
	// AdminOnly accepts administrator tokens.
	AdminOnly = Policy{Hint: KindAdmin}
	// Shared accepts both, trying the end-user key first.
	Shared = Policy{Hint: KindUser, Fallback: true}
	// SharedAdminFirst accepts both, trying the administrator key first.
	SharedAdminFirst = Policy{Hint: KindAdmin, Fallback: true}
)

// Order lists the kinds to try.
func (p Policy) Order() []Kind {
	hint := p.Hint
	if hint != KindAdmin {
		hint = KindUser
	}
	if !p.Fallback {
		return []Kind{hint}
	}
	return []Kind{hint, hint.other()}
}
