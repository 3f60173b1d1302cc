package server

import (
	"relaygate/internal/config"
	"relaygate/internal/pool"
	store "relaygate/internal/storage"
	"relaygate/internal/upstream"

	"github.com/gin-gonic/gin"
)

// Dependencies holds everything the HTTP engine needs that lives outside
// the server package: the running pool actor, the upstream client, and the
// storage backend used for the admin health gate.
type Dependencies struct {
	Pool    *pool.Handle
	Upstream *upstream.Client
	Storage store.Backend
	Version string
}

// BuildEngine assembles the gin.Engine exposing the proxy's public routes
// (C6) and admin surface (C7) under cfg.Server.BasePath.
func BuildEngine(cfg *config.Config, deps Dependencies) *gin.Engine {
	engine := gin.New()
	applyStandardEngineSettings(engine, cfg)

	base := engine.Group(cfg.Server.BasePath)

	pipeline := NewPipeline(deps.Pool, deps.Upstream)
	base.POST("/v1/messages", pipeline.HandleNative)
	base.POST("/v1/chat/completions", pipeline.HandleOpenAI)

	admin := NewAdmin(deps.Pool, deps.Upstream, deps.Storage, deps.Version)
	authConfig := NewManagementAuthConfig(cfg)
	remoteGuard := managementRemoteGuard("/api", cfg)

	mgmt := base.Group("/api")
	mgmt.Use(remoteGuard)
	mgmt.GET("/version", admin.Version)
	mgmt.GET("/auth", RequireReadOnly(authConfig), admin.Auth)
	mgmt.GET("/cookies", RequireReadOnly(authConfig), admin.List)
	mgmt.POST("/cookie", RequireAdmin(authConfig), admin.Submit)
	mgmt.DELETE("/cookie", RequireAdmin(authConfig), admin.Delete)
	mgmt.GET("/logs/stream", RequireAdmin(authConfig), StreamLogs)

	if cfg.Security.Debug {
		registerPprof(engine)
	}

	return engine
}
