package authcore

import (
	"context"
	"errors"
)

const (
	auditEventOTPRequested        = "otp_requested"
	auditEventOTPRateLimited      = "otp_rate_limited"
	auditEventOTPDeliveryFailed   = "otp_delivery_failed"
	auditEventUserLoginSuccess    = "user_login_success"
	auditEventUserLoginFailure    = "user_login_failure"
	auditEventAdminLoginSuccess   = "admin_login_success"
	auditEventAdminLoginFailure   = "admin_login_failure"
	auditEventTokenRejected       = "token_rejected"
	auditEventPrincipalStale      = "principal_stale"
	auditEventLogoutSession       = "logout_session"
	auditEventPermissionDenied    = "permission_denied"
	auditEventMailSlotSkipped     = "mail_slot_skipped"
	auditEventMailQuotaReported   = "mail_quota_reported"
	auditEventNotificationFailure = "notification_failure"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrValidation        AuditErrorCode = "validation"
	auditErrNotFoundOrExpired AuditErrorCode = "not_found_or_expired"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrAttemptsExceeded  AuditErrorCode = "attempts_exceeded"
	auditErrInvalidCredential AuditErrorCode = "invalid_credential"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrTokenExpired      AuditErrorCode = "token_expired"
	auditErrPrincipalNotFound AuditErrorCode = "principal_not_found"
	auditErrAccountMissing    AuditErrorCode = "mail_account_not_configured"
	auditErrMailDelivery      AuditErrorCode = "mail_delivery"
	auditErrPermissionDenied  AuditErrorCode = "permission_denied"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

type auditSubject struct {
	kind  PrincipalKind
	id    string
	email string
}

func subjectOf(p Principal) auditSubject {
	if p == nil {
		return auditSubject{}
	}
	return auditSubject{kind: p.Kind(), id: p.PrincipalID(), email: p.PrincipalEmail()}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditSubject,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	now := e.now().UTC()
	event := AuditEvent{
		ID:          newAuditID(now),
		Timestamp:   now,
		EventType:   eventType,
		PrincipalID: subject.id,
		Email:       subject.email,
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if subject.kind != 0 {
		event.PrincipalKind = subject.kind.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrNotFoundOrExpired):
		return auditErrNotFoundOrExpired
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMaxAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrAccountNotConfigured):
		return auditErrAccountMissing
	case errors.Is(err, ErrMailDelivery):
		return auditErrMailDelivery
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
