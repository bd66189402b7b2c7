package routes

import (
	"github.com/gin-gonic/gin"

	"codrive/controllers"
	"codrive/services"
)

// SetupPermissionRoutes registers grant management endpoints.
func SetupPermissionRoutes(api *gin.RouterGroup, drive *services.DriveService) {
	pc := controllers.NewPermissionController(drive)

	perms := api.Group("/permissions")
	{
		perms.POST("", pc.Assign)
		perms.DELETE("", pc.Revoke)
		perms.GET("/files/:id", pc.ListForFile)
		perms.GET("/mine", pc.ListForUser)
	}
}
