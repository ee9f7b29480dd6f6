package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/eventhub/authcore/internal"
	"github.com/eventhub/authcore/jwt"
	"github.com/eventhub/authcore/otp"
	"github.com/eventhub/authcore/ratelimit"
	"github.com/eventhub/authcore/store"
)

// OTPRequest asks for a login code. RateRecord is the record the client
// carried in (nil on first contact).
type OTPRequest struct {
	Email      string
	Purpose    OTPPurpose
	RateRecord *ratelimit.Record
}

// OTPRequestResult is returned even alongside some errors: RateRecord must
// always be written back to the client so the attempt is counted.
type OTPRequestResult struct {
	Email      string
	ExpiresAt  time.Time
	RateRecord ratelimit.Record
	MailSlot   int
}

// RequestOTP rate-checks the caller, stores a fresh code for the address
// and mails it through the next account in rotation.
//
// On ErrRateLimited, ErrAccountNotConfigured and ErrMailDelivery the result
// is non-nil so the updated rate record can still be returned to the client.
func (e *Engine) RequestOTP(ctx context.Context, req OTPRequest) (*OTPRequestResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if req.Purpose != PurposeUserLogin && req.Purpose != PurposeAdminLogin {
		return nil, fmt.Errorf("%w: unknown purpose", ErrValidation)
	}
	email, err := otp.ParseEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	subject := auditSubject{email: email}

	decision := e.ratePolicy.Check(req.RateRecord, e.now())
	result := &OTPRequestResult{Email: email, RateRecord: decision.Next, MailSlot: -1}
	if !decision.Allowed {
		e.metricInc(MetricOTPRateLimited)
		rlErr := &RateLimitedError{RetryAfter: decision.RetryAfter}
		e.emitAudit(ctx, auditEventOTPRateLimited, false, subject, "", rlErr, func() map[string]string {
			return map[string]string{
				"purpose":             req.Purpose.String(),
				"retry_after_minutes": strconv.Itoa(rlErr.RetryAfterMinutes()),
			}
		})
		return result, rlErr
	}

	if req.Purpose == PurposeAdminLogin {
		admin, err := e.principals.FindAdminByEmail(ctx, email)
		if err != nil {
			return result, principalErr(err)
		}
		subject = subjectOf(admin)
	}

	issued, err := e.otp[req.Purpose].RequestCode(ctx, email)
	if err != nil {
		return result, storeErr(err)
	}
	result.ExpiresAt = issued.ExpiresAt
	e.metricInc(MetricOTPRequested)

	slot, err := e.deliver(ctx, email, e.config.Mail.Subject, otpBody(req.Purpose, issued, e.config.OTP.TTL))
	result.MailSlot = slot
	if err != nil {
		e.emitAudit(ctx, auditEventOTPDeliveryFailed, false, subject, "", err, func() map[string]string {
			return map[string]string{"purpose": req.Purpose.String(), "slot": strconv.Itoa(slot)}
		})
		return result, err
	}

	e.emitAudit(ctx, auditEventOTPRequested, true, subject, "", nil, func() map[string]string {
		return map[string]string{"purpose": req.Purpose.String(), "slot": strconv.Itoa(slot)}
	})
	return result, nil
}

func otpBody(purpose OTPPurpose, issued otp.Issued, ttl time.Duration) string {
	minutes := int(ttl / time.Minute)
	if purpose == PurposeAdminLogin {
		return fmt.Sprintf("Your administrator login code is %s.\nIt expires in %d minutes.", issued.Code, minutes)
	}
	return fmt.Sprintf("Your login code is %s.\nIt expires in %d minutes.", issued.Code, minutes)
}

// checkCode verifies a code and maps the outcome onto the error taxonomy.
func (e *Engine) checkCode(ctx context.Context, purpose OTPPurpose, email, code string) error {
	res, err := e.otp[purpose].VerifyCode(ctx, email, code)
	if err != nil {
		if errors.Is(err, otp.ErrInvalidEmail) {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return storeErr(err)
	}

	switch res.Status {
	case otp.StatusVerified:
		e.metricInc(MetricOTPVerified)
		return nil
	case otp.StatusInvalid:
		e.metricInc(MetricOTPInvalid)
		return &InvalidCodeError{Remaining: res.Remaining}
	case otp.StatusExpired:
		e.metricInc(MetricOTPExpired)
		return ErrNotFoundOrExpired
	case otp.StatusNotFound:
		e.metricInc(MetricOTPNotFound)
		return ErrNotFoundOrExpired
	case otp.StatusMaxAttemptsExceeded:
		e.metricInc(MetricOTPAttemptsExceeded)
		return ErrMaxAttemptsExceeded
	case otp.StatusInvalidFormat:
		return fmt.Errorf("%w: code must be %d digits", ErrValidation, e.config.OTP.Digits)
	default:
		return fmt.Errorf("unexpected verification status %s", res.Status)
	}
}

// VerifyUserOTP consumes an end-user login code. On success the user record
// is created or refreshed, a session is opened and a user token is issued.
func (e *Engine) VerifyUserOTP(ctx context.Context, email, code string) (*UserLoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email, err := otp.ParseEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := e.checkCode(ctx, PurposeUserLogin, email, code); err != nil {
		e.emitAudit(ctx, auditEventUserLoginFailure, false, auditSubject{kind: KindEndUser, email: email}, "", err, nil)
		return nil, err
	}

	user, err := e.principals.UpsertUserByEmail(ctx, email)
	if err != nil {
		err = principalErr(err)
		e.emitAudit(ctx, auditEventUserLoginFailure, false, auditSubject{kind: KindEndUser, email: email}, "", err, nil)
		return nil, err
	}

	sessionID, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	lifetime := e.config.Session.Lifetime
	if err := e.sessions.Create(ctx, store.SessionRecord{ID: sessionID, Email: user.Email, CreatedAt: now}, lifetime); err != nil {
		return nil, storeErr(err)
	}
	e.metricInc(MetricSessionCreated)

	token, exp, err := e.tokens.Issue(jwt.UserClaims{UserID: user.UserID, Email: user.Email})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricUserLogin)

	e.emitAudit(ctx, auditEventUserLoginSuccess, true, subjectOf(user), sessionID, nil, nil)
	e.logger.WithField("user_id", user.UserID).Debug("authcore: user signed in")

	return &UserLoginResult{
		User:             user,
		Token:            token,
		TokenExpiresAt:   exp,
		SessionID:        sessionID,
		SessionExpiresAt: now.Add(lifetime),
	}, nil
}

// AdminLogin consumes an administrator login code and issues an admin
// token. Admin sessions are stateless.
func (e *Engine) AdminLogin(ctx context.Context, email, code string) (*AdminLoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email, err := otp.ParseEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := e.checkCode(ctx, PurposeAdminLogin, email, code); err != nil {
		e.emitAudit(ctx, auditEventAdminLoginFailure, false, auditSubject{kind: KindAdministrator, email: email}, "", err, nil)
		return nil, err
	}

	admin, err := e.principals.FindAdminByEmail(ctx, email)
	if err != nil {
		err = principalErr(err)
		e.emitAudit(ctx, auditEventAdminLoginFailure, false, auditSubject{kind: KindAdministrator, email: email}, "", err, nil)
		return nil, err
	}

	token, exp, err := e.tokens.Issue(jwt.AdminClaims{
		AdminID:       admin.AdminID,
		Email:         admin.Email,
		AccessLevel:   int(admin.AccessLevel),
		ClubOrSociety: admin.ClubOrSociety,
	})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricAdminLogin)

	e.emitAudit(ctx, auditEventAdminLoginSuccess, true, subjectOf(admin), "", nil, func() map[string]string {
		return map[string]string{"access_level": admin.AccessLevel.String()}
	})
	e.logger.WithField("admin_id", admin.AdminID).Info("authcore: administrator signed in")

	return &AdminLoginResult{Admin: admin, Token: token, ExpiresAt: exp}, nil
}
