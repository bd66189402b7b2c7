package routes

import (
	"github.com/gin-gonic/gin"

	"codrive/controllers"
	"codrive/middleware"
	"codrive/services"
)

// SetupFileRoutes registers the file tree endpoints.
func SetupFileRoutes(api *gin.RouterGroup, drive *services.DriveService) {
	fc := controllers.NewFileController(drive)

	files := api.Group("/files")
	{
		files.GET("/root", fc.GetRoot)
		files.GET("", fc.ListChildren)
		files.POST("/folders", fc.CreateFolder)
		files.POST("/upload", middleware.UploadRateLimitMiddleware(), fc.Upload)

		files.PATCH("/:id/move", fc.Move)
		files.PATCH("/:id/rename", fc.Rename)

		files.POST("/:id/trash", fc.Trash)
		files.POST("/:id/restore", fc.Restore)
		files.DELETE("/:id", fc.HardDelete)

		files.POST("/bulk/trash", fc.BulkTrash)
		files.POST("/bulk/restore", fc.BulkRestore)

		files.GET("/trash", fc.ListTrashed)
		files.GET("/recent", fc.ListRecent)
		files.GET("/starred", fc.ListStarred)

		files.GET("/:id/download-url", fc.DownloadURL)
		files.GET("/:id/breadcrumb", fc.Breadcrumb)
		files.POST("/:id/star", fc.Star)
		files.DELETE("/:id/star", fc.Unstar)
	}
}
