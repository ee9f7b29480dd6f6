package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/eventhub/authcore/mail"
)

var (
	// ErrValidation is returned for malformed input such as a bad email
	// address or a code that is not six digits.
	ErrValidation = errors.New("validation failed")
	// ErrNotFoundOrExpired is returned when no live code or session exists.
	ErrNotFoundOrExpired = errors.New("not found or expired")
	// ErrRateLimited is the sentinel behind *RateLimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrMaxAttemptsExceeded is returned once a code has used up its attempts.
	ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")
	// ErrInvalidCredential is the sentinel behind *InvalidCodeError.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrTokenInvalid covers malformed tokens and bad signatures.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrPrincipalNotFound is returned when the principal behind a token or
	// login no longer exists.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrAccountNotConfigured is returned when the active mail slot has no
	// credentials.
	ErrAccountNotConfigured = mail.ErrAccountNotConfigured
	// ErrMailDelivery wraps failures of the mail collaborator.
	ErrMailDelivery = errors.New("mail delivery failed")
	// ErrPermissionDenied is returned by Authorize.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStoreUnavailable wraps credential store backend failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned by Build when a required collaborator is
	// missing, and by engine methods after Close.
	ErrEngineNotReady = errors.New("engine not ready")
)

// RateLimitedError reports how long the client must wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// RetryAfterMinutes rounds RetryAfter up to whole minutes.
func (e *RateLimitedError) RetryAfterMinutes() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Minute - 1) / time.Minute)
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry in %d minutes", e.RetryAfterMinutes())
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// InvalidCodeError reports a wrong code and the attempts left.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code: %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCredential }
