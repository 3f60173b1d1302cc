package server

import (
	"net/http"
	pp "net/http/pprof"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string, details any) {
	payload := gin.H{"error": message}
	if details != nil {
		payload["details"] = details
	}
	c.JSON(status, payload)
}

func respondValidationError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	respondError(c, http.StatusBadRequest, "invalid json", err.Error())
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondValidationError(c, err)
		return false
	}
	return true
}

func setNoCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func registerPprof(r *gin.Engine) {
	ppGroup := r.Group("/debug/pprof")
	ppGroup.GET("/", gin.WrapF(pp.Index))
	ppGroup.GET("/cmdline", gin.WrapF(pp.Cmdline))
	ppGroup.GET("/profile", gin.WrapF(pp.Profile))
	ppGroup.POST("/symbol", gin.WrapF(pp.Symbol))
	ppGroup.GET("/symbol", gin.WrapF(pp.Symbol))
	ppGroup.GET("/trace", gin.WrapF(pp.Trace))
	ppGroup.GET("/allocs", gin.WrapF(pp.Handler("allocs").ServeHTTP))
	ppGroup.GET("/block", gin.WrapF(pp.Handler("block").ServeHTTP))
	ppGroup.GET("/goroutine", gin.WrapF(pp.Handler("goroutine").ServeHTTP))
	ppGroup.GET("/heap", gin.WrapF(pp.Handler("heap").ServeHTTP))
	ppGroup.GET("/mutex", gin.WrapF(pp.Handler("mutex").ServeHTTP))
	ppGroup.GET("/threadcreate", gin.WrapF(pp.Handler("threadcreate").ServeHTTP))
}
