package server

import (
	"relaygate/internal/config"
	mw "relaygate/internal/middleware"

	"github.com/gin-gonic/gin"
)

// applyStandardEngineSettings wires the common Gin middleware chain (panic
// recovery, request ID tagging, metrics, CORS, optional request logging and
// rate limiting) shared by the public proxy engine.
func applyStandardEngineSettings(engine *gin.Engine, cfg *config.Config) {
	if !cfg.Security.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	_ = engine.SetTrustedProxies([]string{})

	engine.Use(gin.Recovery(), mw.RequestID(), mw.Metrics())
	// CORS middleware itself skips the /api admin endpoints.
	engine.Use(mw.CORS())
	if cfg.Security.Debug {
		engine.Use(mw.RequestLogger())
	}
	if cfg.RateLimit.Enabled {
		engine.Use(mw.RateLimiterAutoKey(int(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst))
	}
}
