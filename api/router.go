// Package api serves the run status over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/recoveryfinder/api/handler"
	"github.com/use-agent/recoveryfinder/api/middleware"
	"github.com/use-agent/recoveryfinder/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(src handler.StatusSource, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(src, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.Auth.RequestsPerSecond, cfg.Auth.Burst))

	protected.GET("/progress", handler.Progress(src))

	return r
}
