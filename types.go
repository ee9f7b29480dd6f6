package authcore

import (
	"context"
	"time"

	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/jwt"
)

// PrincipalKind distinguishes end users from administrators.
type PrincipalKind = jwt.Kind

const (
	KindEndUser       = jwt.KindUser
	KindAdministrator = jwt.KindAdmin
)

// Principal is the authenticated subject of a request: EndUser or
// Administrator.
type Principal interface {
	Kind() PrincipalKind
	PrincipalID() string
	PrincipalEmail() string
	isPrincipal()
}

// EndUser is a registrant.
type EndUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (EndUser) Kind() PrincipalKind      { return KindEndUser }
func (u EndUser) PrincipalID() string    { return u.UserID }
func (u EndUser) PrincipalEmail() string { return u.Email }
func (EndUser) isPrincipal()             {}

// Administrator manages events. ClubOrSociety only matters at level 1.
type Administrator struct {
	AdminID       string       `json:"admin_id"`
	Email         string       `json:"email"`
	AccessLevel   access.Level `json:"access_level"`
	ClubOrSociety string       `json:"club_or_society,omitempty"`
}

func (Administrator) Kind() PrincipalKind      { return KindAdministrator }
func (a Administrator) PrincipalID() string    { return a.AdminID }
func (a Administrator) PrincipalEmail() string { return a.Email }
func (Administrator) isPrincipal()             {}

// Scope is the access scope the administrator acts under.
func (a Administrator) Scope() access.Scope {
	return access.Scope{Level: a.AccessLevel, Society: a.ClubOrSociety}
}

// PrincipalStore is the persistence collaborator for users and
// administrators. Lookups of absent principals return ErrPrincipalNotFound.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, kind PrincipalKind, id string) (Principal, error)
	FindAdminByEmail(ctx context.Context, email string) (Administrator, error)
	UpsertUserByEmail(ctx context.Context, email string) (EndUser, error)
}

// OTPPurpose selects which login a passcode is for. Codes of different
// purposes never satisfy each other.
type OTPPurpose int

const (
	PurposeUserLogin OTPPurpose = iota
	PurposeAdminLogin
)

func (p OTPPurpose) String() string {
	if p == PurposeAdminLogin {
		return "admin"
	}
	return "user"
}

// SessionInfo is a live end-user session.
type SessionInfo struct {
	ID        string    `json:"-"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserLoginResult is returned by VerifyUserOTP.
type UserLoginResult struct {
	User             EndUser
	Token            string
	TokenExpiresAt   time.Time
	SessionID        string
	SessionExpiresAt time.Time
}

// AdminLoginResult is returned by AdminLogin.
type AdminLoginResult struct {
	Admin     Administrator
	Token     string
	ExpiresAt time.Time
}
