package httpapi

import (
	"net/http"
	"time"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/ratelimit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Server holds the handlers for one engine.
type Server struct {
	engine   *authcore.Engine
	cfg      authcore.Config
	throttle *ratelimit.IPThrottle
	logger   *log.Entry
	now      func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithThrottle replaces the per-IP throttle built from RateLimit.IPPerMinute.
func WithThrottle(t *ratelimit.IPThrottle) Option {
	return func(s *Server) { s.throttle = t }
}

// WithClock sets the clock used for cookie lifetimes.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New returns a Server for engine.
func New(engine *authcore.Engine, opts ...Option) *Server {
	cfg := engine.Config()
	s := &Server{
		engine: engine,
		cfg:    cfg,
		logger: engine.Logger().WithField("component", "httpapi"),
		now:    time.Now,
	}
	if cfg.RateLimit.IPPerMinute > 0 {
		s.throttle = ratelimit.NewIPThrottle(cfg.RateLimit.IPPerMinute, cfg.RateLimit.IPBurst, 0)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Throttle returns the per-IP throttle, nil when disabled.
func (s *Server) Throttle() *ratelimit.IPThrottle {
	return s.throttle
}

// Register mounts every route on r.
func (s *Server) Register(r gin.IRouter) {
	r.Use(s.requestContext())

	auth := r.Group("/auth")
	auth.POST("/otp/request", s.throttled(), s.RequestUserOTP)
	auth.POST("/otp/verify", s.throttled(), s.VerifyUserOTP)
	auth.GET("/verify", s.VerifyToken)
	auth.GET("/session", s.Session)
	auth.POST("/logout", s.Logout)

	admin := r.Group("/admin")
	admin.POST("/login/request", s.throttled(), s.RequestAdminOTP)
	admin.POST("/login", s.throttled(), s.AdminLogin)
	admin.POST("/logout", s.AdminLogout)

	mailOps := admin.Group("/mail")
	mailOps.Use(s.RequirePrincipal(authcore.PolicyAdmin), s.RequireCapability(access.CapOperate))
	mailOps.GET("/status", s.MailStatus)
	mailOps.POST("/skip", s.SkipMailSlot)
}

// Handler returns a standalone gin engine with recovery and every route.
func (s *Server) Handler() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if !s.cfg.HTTP.TrustProxyHeaders {
		if err := engine.SetTrustedProxies(nil); err != nil {
			s.logger.WithError(err).Warn("httpapi: failed to reset trusted proxies")
		}
	}
	s.Register(engine)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}
