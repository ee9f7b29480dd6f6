package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/jwt"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal a guard attached to ctx.
func PrincipalFromContext(ctx context.Context) (authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(authcore.Principal)
	return p, ok
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p authcore.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a token valid under policy. Cookies are
// read from the engine's configured cookie names for the kinds policy
// accepts.
func Guard(engine *authcore.Engine, policy jwt.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := TokenFromRequest(r, CookieNames(engine.Config().HTTP, policy)...)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authcore.WithClientIP(r.Context(), clientIP(r))
			principal, err := engine.VerifyToken(ctx, token, policy)
			if err != nil {
				if errors.Is(err, authcore.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireUser accepts end-user tokens only.
func RequireUser(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, authcore.PolicyUser)
}

// RequireAdmin accepts administrator tokens only.
func RequireAdmin(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, authcore.PolicyAdmin)
}

// RequireAny accepts either kind.
func RequireAny(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, authcore.PolicyShared)
}

// RequireCapability must run after a guard. It answers 403 unless the
// attached principal holds capability.
func RequireCapability(engine *authcore.Engine, capability access.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.Authorize(r.Context(), principal, capability); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CookieNames lists the cookies a policy reads, in the policy's key order.
func CookieNames(cfg authcore.HTTPConfig, policy jwt.Policy) []string {
	order := policy.Order()
	names := make([]string, 0, len(order))
	for _, kind := range order {
		switch kind {
		case jwt.KindAdmin:
			names = append(names, cfg.AdminCookie)
		default:
			names = append(names, cfg.UserCookie)
		}
	}
	return names
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
