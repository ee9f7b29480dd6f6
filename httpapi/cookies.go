package httpapi

import (
	"net/http"
	"time"

	"github.com/eventhub/authcore/ratelimit"
	"github.com/gin-gonic/gin"
)

func (s *Server) setCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	seconds := int(maxAge / time.Second)
	if maxAge > 0 && seconds == 0 {
		seconds = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   seconds,
		HttpOnly: true,
		Secure:   s.cfg.HTTP.SecureCookies,
		SameSite: s.cfg.HTTP.SameSiteMode(),
	})
}

func (s *Server) clearCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.HTTP.SecureCookies,
		SameSite: s.cfg.HTTP.SameSiteMode(),
	})
}

// rateRecord reads the client's rate-limit cookie. Missing or forged
// cookies yield nil, which starts a fresh window.
func (s *Server) rateRecord(c *gin.Context) *ratelimit.Record {
	value, err := c.Cookie(s.cfg.HTTP.RateLimitCookie)
	if err != nil {
		return nil
	}
	rec, ok := s.engine.RateLimitCodec().Decode(value)
	if !ok {
		return nil
	}
	return rec
}

func (s *Server) writeRateRecord(c *gin.Context, rec ratelimit.Record) {
	codec := s.engine.RateLimitCodec()
	value, err := codec.Encode(rec)
	if err != nil {
		s.logger.WithError(err).Warn("httpapi: failed to encode rate-limit cookie")
		return
	}
	s.setCookie(c, s.cfg.HTTP.RateLimitCookie, value, codec.MaxAge(rec))
}
