package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"simulator-backend/internal/analysis"
	"simulator-backend/internal/recordings"
	"simulator-backend/internal/services/health"
	"simulator-backend/internal/shared/config"
	"simulator-backend/internal/shared/metrics"
	"simulator-backend/internal/shared/server/middleware"
	"simulator-backend/internal/shared/server/respond"
	localstore "simulator-backend/internal/shared/storage/object/local"
	"simulator-backend/internal/shared/tracing"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupPolling = "POLLING"
)

// RouterDeps carries the handlers the router mounts. Files is nil unless the
// local object store is in use.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	SessionHandler  *recordings.Handler
	AnalysisHandler *analysis.Handler
	Files           *localstore.Store
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.IsDevLike() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		tracing.GinMiddleware(),
		metrics.Middleware(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	if deps.Files != nil {
		registerFileRoutes(api, deps.Files)
	}

	limited := api.Group("")
	limited.Use(middleware.RateLimit(middleware.RateLimitConfig{
		DefaultGroup: rateGroupDefault,
		GroupFor:     rateGroupFor,
		Rules: map[string]middleware.RateLimitRule{
			rateGroupDefault: {Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
			rateGroupPolling: {Rate: cfg.PollRateLimitRPS, Burst: cfg.PollRateLimitBurst},
		},
	}))
	registerMeRoutes(limited)
	if deps.SessionHandler != nil {
		deps.SessionHandler.RegisterRoutes(limited)
		deps.SessionHandler.RegisterPollingRoutes(limited)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(limited)
		deps.AnalysisHandler.RegisterPollingRoutes(limited)
	}

	return r
}

// rateGroupFor puts read-only polling under the larger budget.
func rateGroupFor(c *gin.Context) string {
	if c.Request.Method == http.MethodGet {
		return rateGroupPolling
	}
	return rateGroupDefault
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
