package routes

import (
	"github.com/gin-gonic/gin"

	"codrive/controllers"
	"codrive/middleware"
	"codrive/services"
)

// SetupSyncRoutes registers the administrative sync and quota endpoints.
func SetupSyncRoutes(api *gin.RouterGroup, sync *services.SyncService, drive *services.DriveService) {
	sc := controllers.NewSyncController(sync, drive)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/sync", middleware.SyncRateLimitMiddleware(), sc.Trigger)
		admin.GET("/quota", sc.Quota)
	}
}
