package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/internal"
	"github.com/eventhub/authcore/jwt"
	"github.com/eventhub/authcore/store"
)

// Token policies re-exported for callers that only import this package.
var (
	PolicyUser             = jwt.UserOnly
	PolicyAdmin            = jwt.AdminOnly
	PolicyShared           = jwt.Shared
	PolicySharedAdminFirst = jwt.SharedAdminFirst
)

// VerifyToken validates a bearer token against the keys named by policy
// and, when Tokens.VerifyPrincipal is set, confirms the principal still
// exists. The returned principal is the stored record, so an administrator
// demoted after issue is seen at the new level. VerifyToken never mutates
// state.
func (e *Engine) VerifyToken(ctx context.Context, token string, policy jwt.Policy) (Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}
	}()

	tok, err := e.tokens.Verify(token, policy)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		mapped := tokenErr(err)
		e.emitAudit(ctx, auditEventTokenRejected, false, auditSubject{}, "", mapped, nil)
		return nil, mapped
	}

	principal, err := principalFromClaims(tok.Claims)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, err
	}

	if e.config.Tokens.VerifyPrincipal {
		current, err := e.principals.FindPrincipal(ctx, principal.Kind(), principal.PrincipalID())
		if err != nil {
			if errors.Is(err, ErrPrincipalNotFound) {
				e.metricInc(MetricPrincipalStale)
				e.emitAudit(ctx, auditEventPrincipalStale, false, subjectOf(principal), "", err, nil)
				return nil, ErrPrincipalNotFound
			}
			return nil, principalErr(err)
		}
		if current == nil || current.Kind() != principal.Kind() {
			e.metricInc(MetricPrincipalStale)
			return nil, ErrPrincipalNotFound
		}
		principal = current
	}

	e.metricInc(MetricTokenVerified)
	return principal, nil
}

func tokenErr(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

func principalFromClaims(c jwt.Claims) (Principal, error) {
	switch claims := c.(type) {
	case jwt.UserClaims:
		return EndUser{UserID: claims.UserID, Email: claims.Email}, nil
	case jwt.AdminClaims:
		level, err := access.ParseLevel(claims.AccessLevel)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return Administrator{
			AdminID:       claims.AdminID,
			Email:         claims.Email,
			AccessLevel:   level,
			ClubOrSociety: claims.ClubOrSociety,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown claims", ErrTokenInvalid)
	}
}

// ResolveSession looks up an end-user session. Sessions older than
// Session.Lifetime are deleted on sight and reported as not found.
func (e *Engine) ResolveSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !internal.ValidSessionID(sessionID) {
		return nil, ErrNotFoundOrExpired
	}

	rec, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFoundOrExpired
		}
		return nil, storeErr(err)
	}

	expiresAt := rec.CreatedAt.Add(e.config.Session.Lifetime)
	if e.now().After(expiresAt) {
		if err := e.sessions.Delete(ctx, sessionID); err != nil {
			e.logger.WithError(err).Warn("authcore: failed to delete expired session")
		}
		e.metricInc(MetricSessionExpired)
		return nil, ErrNotFoundOrExpired
	}

	return &SessionInfo{
		ID:        rec.ID,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout deletes an end-user session. Unknown ids are not an error.
// Administrator logout has no server-side state; the HTTP layer clears the
// cookie.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !internal.ValidSessionID(sessionID) {
		return nil
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeErr(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, auditSubject{kind: KindEndUser}, sessionID, nil, nil)
	return nil
}
