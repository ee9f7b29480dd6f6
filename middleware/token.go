package middleware

import (
	"net/http"
	"strings"
)

// TokenFromRequest returns the bearer token, falling back to the first
// non-empty cookie among cookieNames.
func TokenFromRequest(r *http.Request, cookieNames ...string) (string, bool) {
	if r == nil {
		return "", false
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	for _, name := range cookieNames {
		if name == "" {
			continue
		}
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			continue
		}
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
