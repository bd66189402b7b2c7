package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"codrive/audit"
	"codrive/utils"
)

type NotificationController struct {
	sink *audit.Sink
}

func NewNotificationController(sink *audit.Sink) *NotificationController {
	return &NotificationController{sink: sink}
}

// Inbox returns the caller's notifications, newest first
func (nc *NotificationController) Inbox(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	inbox, err := nc.sink.Inbox(c.Request.Context(), principal.ID, limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Notifications retrieved successfully", inbox)
}

// MarkRead marks one notification as read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid notification ID")
		return
	}

	if err := nc.sink.MarkRead(c.Request.Context(), id, principal.ID); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Notification marked as read", nil)
}

// History returns the caller's audit trail
func (nc *NotificationController) History(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := nc.sink.History(c.Request.Context(), principal.ID, c.Query("action"), limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "History retrieved successfully", entries)
}
