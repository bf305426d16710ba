package api

import (
	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-patterns/internal/api/handlers"
	"github.com/irfndi/celebrum-patterns/internal/config"
	"github.com/irfndi/celebrum-patterns/internal/logging"
	"github.com/irfndi/celebrum-patterns/internal/middleware"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Dependencies are the services the routes are served from.
type Dependencies struct {
	Redis    handlers.HealthChecker
	Patterns *services.PatternService
	Logger   logging.Logger
	Version  string
}

// NewRouter builds the engine with recovery, tracing, CORS and request
// logging, then registers the routes.
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if deps.Logger != nil {
		router.Use(middleware.RequestLogger(deps.Logger))
	}

	SetupRoutes(router, deps)
	return router
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	health := handlers.NewHealthHandler(deps.Redis, deps.Patterns.Coordinator(), deps.Version)
	router.GET("/health", gin.WrapF(health.HealthCheck))
	router.GET("/ready", gin.WrapF(health.ReadinessCheck))
	router.GET("/live", gin.WrapF(health.LivenessCheck))

	patterns := handlers.NewPatternHandler(deps.Patterns, deps.Logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", patterns.CreateSession)
			sessions.GET("/:id/selection", patterns.GetSelection)
			sessions.PUT("/:id/selection", patterns.PutSelection)
			sessions.DELETE("/:id/selection", patterns.DeleteSelection)
			sessions.DELETE("/:id/search", patterns.CancelSearch)
		}

		v1.POST("/patterns/search", patterns.Search)
	}
}
