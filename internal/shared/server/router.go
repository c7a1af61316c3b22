package server

import (
	"github.com/gin-gonic/gin"

	"docintel-backend/internal/operations"
	"docintel-backend/internal/services/health"
	"docintel-backend/internal/shared/config"
	"docintel-backend/internal/shared/metrics"
	"docintel-backend/internal/shared/server/middleware"
	"docintel-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config            config.Config
	OperationsHandler *operations.Handler
	Health            *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"SUBMIT": {Rate: 2, Burst: 5},
			},
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == "POST" {
					return "SUBMIT"
				}
				return ""
			},
			DefaultGroup: "DEFAULT",
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.OK(c, deps.Health.Status())
	})
	deps.OperationsHandler.RegisterRoutes(api)

	return r
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
