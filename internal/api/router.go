package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/social-publisher/internal/config"
)

// NewRouter builds the gin engine with all routes wired.
func NewRouter(cfg *config.Config, handlers *Handlers, proxy *MediaProxy, registry *prometheus.Registry) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Health check (public, no auth)
	router.GET("/health", handlers.Health)

	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// The proxy must stay public: destinations fetch media through it
	// without publisher credentials.
	router.GET(cfg.Media.ProxyPath, proxy.Stream)

	v1 := router.Group("/api/v1")
	if cfg.Auth.Enabled {
		v1.Use(JWTMiddleware(cfg.Auth.JWTSecret))
	}

	v1.POST("/publish", handlers.Publish)
	v1.POST("/generate", handlers.Generate)
	v1.GET("/history", handlers.GetHistory)
	v1.GET("/status/breakers", handlers.GetBreakers)
	v1.POST("/status/breakers/reset", handlers.ResetBreakers)

	return router
}
