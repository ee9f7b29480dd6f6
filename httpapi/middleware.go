package httpapi

import (
	"net/http"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/jwt"
	"github.com/eventhub/authcore/middleware"
	"github.com/gin-gonic/gin"
)

const principalKey = "authcore.principal"

// requestContext copies the client address and user agent into the request
// context for audit events.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := authcore.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = authcore.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) throttled() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.throttle.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RequirePrincipal aborts with 401 unless the request carries a token valid
// under policy. The principal is stored on the gin context and the request
// context.
func (s *Server) RequirePrincipal(policy jwt.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.TokenFromRequest(c.Request, middleware.CookieNames(s.cfg.HTTP, policy)...)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		principal, err := s.engine.VerifyToken(c.Request.Context(), token, policy)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Set(principalKey, principal)
		c.Request = c.Request.WithContext(middleware.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// RequireCapability must follow RequirePrincipal.
func (s *Server) RequireCapability(capability access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if err := s.engine.Authorize(c.Request.Context(), principal, capability); err != nil {
			s.abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal set by RequirePrincipal.
func PrincipalFrom(c *gin.Context) (authcore.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(authcore.Principal)
	return p, ok
}
