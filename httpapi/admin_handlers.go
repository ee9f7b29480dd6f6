package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminLogin handles POST /admin/login.
func (s *Server) AdminLogin(c *gin.Context) {
	var body otpVerifyBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := s.engine.AdminLogin(c.Request.Context(), body.Email, body.OTP)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setCookie(c, s.cfg.HTTP.AdminCookie, res.Token, res.ExpiresAt.Sub(s.now()))
	c.JSON(http.StatusOK, gin.H{
		"token":      res.Token,
		"expires_at": res.ExpiresAt.UTC(),
		"admin":      viewOf(res.Admin),
	})
}

// AdminLogout handles POST /admin/logout. Administrator tokens carry no
// server state, so only the cookie is cleared.
func (s *Server) AdminLogout(c *gin.Context) {
	s.clearCookie(c, s.cfg.HTTP.AdminCookie)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// MailStatus handles GET /admin/mail/status.
func (s *Server) MailStatus(c *gin.Context) {
	status, err := s.engine.MailStatus(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SkipMailSlot handles POST /admin/mail/skip.
func (s *Server) SkipMailSlot(c *gin.Context) {
	status, err := s.engine.SkipMailSlot(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
