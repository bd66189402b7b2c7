package controllers

import (
	"github.com/gin-gonic/gin"

	"codrive/services"
	"codrive/utils"
)

type SyncController struct {
	sync  *services.SyncService
	drive *services.DriveService
}

func NewSyncController(sync *services.SyncService, drive *services.DriveService) *SyncController {
	return &SyncController{sync: sync, drive: drive}
}

// Trigger runs one delta reconciliation pass
func (sc *SyncController) Trigger(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	result, err := sc.sync.SyncDrive(c.Request.Context(), principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Sync completed", result)
}

// Quota reports the remote drive's storage allowance
func (sc *SyncController) Quota(c *gin.Context) {
	quota, err := sc.drive.GetQuota(c.Request.Context())
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Quota retrieved successfully", quota)
}
