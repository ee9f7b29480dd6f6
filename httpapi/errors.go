package httpapi

import (
	"errors"
	"net/http"

	"github.com/eventhub/authcore"
	"github.com/gin-gonic/gin"
)

// statusFor maps engine errors to a status code and a client-safe message.
func statusFor(err error) (int, gin.H) {
	var rl *authcore.RateLimitedError
	var invalid *authcore.InvalidCodeError

	switch {
	case errors.As(err, &rl):
		return http.StatusTooManyRequests, gin.H{
			"error":               "too many code requests",
			"retry_after_minutes": rl.RetryAfterMinutes(),
		}
	case errors.As(err, &invalid):
		return http.StatusUnauthorized, gin.H{
			"error":              "invalid code",
			"remaining_attempts": invalid.Remaining,
		}
	case errors.Is(err, authcore.ErrValidation):
		return http.StatusBadRequest, gin.H{"error": "invalid email or code"}
	case errors.Is(err, authcore.ErrNotFoundOrExpired):
		return http.StatusUnauthorized, gin.H{"error": "code expired or not found"}
	case errors.Is(err, authcore.ErrMaxAttemptsExceeded):
		return http.StatusForbidden, gin.H{"error": "too many attempts, request a new code"}
	case errors.Is(err, authcore.ErrTokenExpired):
		return http.StatusUnauthorized, gin.H{"error": "token expired"}
	case errors.Is(err, authcore.ErrTokenInvalid):
		return http.StatusUnauthorized, gin.H{"error": "invalid token"}
	case errors.Is(err, authcore.ErrPrincipalNotFound):
		return http.StatusNotFound, gin.H{"error": "account not found"}
	case errors.Is(err, authcore.ErrPermissionDenied):
		return http.StatusForbidden, gin.H{"error": "forbidden"}
	case errors.Is(err, authcore.ErrAccountNotConfigured):
		return http.StatusServiceUnavailable, gin.H{"error": "mail is temporarily unavailable"}
	case errors.Is(err, authcore.ErrMailDelivery):
		return http.StatusBadGateway, gin.H{"error": "failed to send code"}
	case errors.Is(err, authcore.ErrStoreUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable, gin.H{"error": "service unavailable"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("httpapi: request failed")
	}
	c.JSON(status, body)
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	s.writeError(c, err)
	c.Abort()
}
