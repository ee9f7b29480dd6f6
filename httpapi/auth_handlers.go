package httpapi

import (
	"errors"
	"net/http"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/middleware"
	"github.com/gin-gonic/gin"
)

type otpRequestBody struct {
	Email string `json:"email"`
}

type otpVerifyBody struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type principalView struct {
	Kind          string `json:"kind"`
	ID            string `json:"id"`
	Email         string `json:"email"`
	AccessLevel   *int   `json:"access_level,omitempty"`
	ClubOrSociety string `json:"club_or_society,omitempty"`
}

func viewOf(p authcore.Principal) principalView {
	v := principalView{Kind: p.Kind().String(), ID: p.PrincipalID(), Email: p.PrincipalEmail()}
	if admin, ok := p.(authcore.Administrator); ok {
		level := int(admin.AccessLevel)
		v.AccessLevel = &level
		v.ClubOrSociety = admin.ClubOrSociety
	}
	return v
}

// RequestUserOTP handles POST /auth/otp/request.
func (s *Server) RequestUserOTP(c *gin.Context) {
	s.requestOTP(c, authcore.PurposeUserLogin)
}

// RequestAdminOTP handles POST /admin/login/request.
func (s *Server) RequestAdminOTP(c *gin.Context) {
	s.requestOTP(c, authcore.PurposeAdminLogin)
}

func (s *Server) requestOTP(c *gin.Context, purpose authcore.OTPPurpose) {
	var body otpRequestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := s.engine.RequestOTP(c.Request.Context(), authcore.OTPRequest{
		Email:      body.Email,
		Purpose:    purpose,
		RateRecord: s.rateRecord(c),
	})
	if res != nil {
		s.writeRateRecord(c, res.RateRecord)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "code sent",
		"email":      res.Email,
		"expires_at": res.ExpiresAt.UTC(),
	})
}

// VerifyUserOTP handles POST /auth/otp/verify.
func (s *Server) VerifyUserOTP(c *gin.Context) {
	var body otpVerifyBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := s.engine.VerifyUserOTP(c.Request.Context(), body.Email, body.OTP)
	if err != nil {
		s.writeError(c, err)
		return
	}

	now := s.now()
	s.setCookie(c, s.cfg.HTTP.SessionCookie, res.SessionID, res.SessionExpiresAt.Sub(now))
	s.setCookie(c, s.cfg.HTTP.UserCookie, res.Token, res.TokenExpiresAt.Sub(now))
	c.JSON(http.StatusOK, gin.H{
		"token":              res.Token,
		"expires_at":         res.TokenExpiresAt.UTC(),
		"session_expires_at": res.SessionExpiresAt.UTC(),
		"user":               viewOf(res.User),
	})
}

// VerifyToken handles GET /auth/verify. Either kind of token is accepted.
func (s *Server) VerifyToken(c *gin.Context) {
	policy := authcore.PolicyShared
	token, ok := middleware.TokenFromRequest(c.Request, middleware.CookieNames(s.cfg.HTTP, policy)...)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "missing token"})
		return
	}

	principal, err := s.engine.VerifyToken(c.Request.Context(), token, policy)
	if err != nil {
		status, body := statusFor(err)
		if errors.Is(err, authcore.ErrPrincipalNotFound) {
			status = http.StatusUnauthorized
		}
		body["valid"] = false
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "principal": viewOf(principal)})
}

// Session handles GET /auth/session.
func (s *Server) Session(c *gin.Context) {
	id, err := c.Cookie(s.cfg.HTTP.SessionCookie)
	if err != nil || id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	info, err := s.engine.ResolveSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, authcore.ErrNotFoundOrExpired) {
			s.clearCookie(c, s.cfg.HTTP.SessionCookie)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":      info.Email,
		"created_at": info.CreatedAt.UTC(),
		"expires_at": info.ExpiresAt.UTC(),
	})
}

// Logout handles POST /auth/logout. It succeeds without a session.
func (s *Server) Logout(c *gin.Context) {
	if id, err := c.Cookie(s.cfg.HTTP.SessionCookie); err == nil && id != "" {
		if errLogout := s.engine.Logout(c.Request.Context(), id); errLogout != nil {
			s.writeError(c, errLogout)
			return
		}
	}
	s.clearCookie(c, s.cfg.HTTP.SessionCookie)
	s.clearCookie(c, s.cfg.HTTP.UserCookie)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
