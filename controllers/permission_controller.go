package controllers

import (
	"github.com/gin-gonic/gin"

	"codrive/models"
	"codrive/services"
	"codrive/utils"
)

type PermissionController struct {
	drive *services.DriveService
}

func NewPermissionController(drive *services.DriveService) *PermissionController {
	return &PermissionController{drive: drive}
}

// Assign grants a permission on a file to a user
func (pc *PermissionController) Assign(c *gin.Context) {
	var req models.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return
	}

	fileID, err := utils.StringToObjectID(req.FileID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}
	userID, err := utils.StringToObjectID(req.UserID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID")
		return
	}

	grant, err := pc.drive.AssignPermission(c.Request.Context(), fileID, userID, models.Permission(req.Permission))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Permission assigned", grant)
}

// Revoke removes a permission row
func (pc *PermissionController) Revoke(c *gin.Context) {
	var req models.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return
	}

	fileID, err := utils.StringToObjectID(req.FileID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}
	userID, err := utils.StringToObjectID(req.UserID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID")
		return
	}

	removed, err := pc.drive.RevokePermission(c.Request.Context(), fileID, userID, models.Permission(req.Permission))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Permission revoked", gin.H{"removed": removed})
}

// ListForFile returns every grant on a file
func (pc *PermissionController) ListForFile(c *gin.Context) {
	fileID, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}

	grants, err := pc.drive.ListPermissions(c.Request.Context(), fileID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Permissions retrieved successfully", grants)
}

// ListForUser returns every grant the caller holds
func (pc *PermissionController) ListForUser(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	grants, err := pc.drive.ListPermissionsForUser(c.Request.Context(), principal.ID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Permissions retrieved successfully", grants)
}
