package studio_routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kluth/stream-buddy-sub002/config"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger) {
	logger.Info("Internal HealthCheckRoutes added to engine.")
	apiv1 := engine.Group("")
	{
		apiv1.GET("/healthz/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.Name, "version": cfg.Version})
		})
		apiv1.GET("/readiness/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		})
	}
}
