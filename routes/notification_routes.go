package routes

import (
	"github.com/gin-gonic/gin"

	"codrive/audit"
	"codrive/controllers"
)

// SetupNotificationRoutes registers the inbox and history endpoints.
func SetupNotificationRoutes(api *gin.RouterGroup, sink *audit.Sink) {
	nc := controllers.NewNotificationController(sink)

	notifications := api.Group("/notifications")
	{
		notifications.GET("", nc.Inbox)
		notifications.POST("/:id/read", nc.MarkRead)
	}

	api.GET("/history", nc.History)
}
