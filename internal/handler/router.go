package handler

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrface/internal/auth"
	"qrface/internal/httpmiddleware"
)

// RouterConfig holds the cross-cutting router settings.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitPerMin int
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(h.countRequests())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(nil))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.Healthz)

	// Session ids may carry escaped slashes.
	r.UseRawPath = true

	v1 := r.Group("/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	authed := v1.Group("", auth.Bearer(h.Auth.SigningKey, h.Auth.Issuer))
	authed.GET("/auth/me", h.Me)
	authed.GET("/profile/:email", h.GetProfile)
	authed.POST("/profile/update", h.UpdateProfile)

	staff := authed.Group("", auth.RequireRole(auth.RoleLecturer, auth.RoleAdmin))
	staff.POST("/sessions/open", h.OpenSession)
	staff.GET("/sessions/:id/meetings/:n/qr.png", h.SessionQR)
	staff.GET("/attendance", h.ListAttendance)

	// Each student gets a small submit budget on top of the per-IP limit.
	perStudent := httpmiddleware.NewSimpleTokenBucket(10, 10)
	authed.POST("/attendance/submit",
		auth.RequireRole(auth.RoleStudent),
		perStudent.GinMiddleware(func(c *gin.Context) string {
			claims, _ := auth.ClaimsFrom(c)
			return claims.Subject
		}),
		h.SubmitAttendance)

	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (h *Handler) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if h.Metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		h.Metrics.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status()/100)+"xx").Inc()
	}
}

