package routes

import (
	"github.com/gin-gonic/gin"

	"codrive/audit"
	"codrive/config"
	"codrive/middleware"
	"codrive/services"
)

// SetupRoutes wires every route group onto the router.
func SetupRoutes(router *gin.Engine, cfg *config.Config, drive *services.DriveService, sync *services.SyncService, sink *audit.Sink) {
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	if cfg.RateLimitEnabled {
		router.Use(middleware.RateLimitMiddleware())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	SetupFileRoutes(api, drive)
	SetupPermissionRoutes(api, drive)
	SetupNotificationRoutes(api, sink)
	SetupSyncRoutes(api, sync, drive)
}
