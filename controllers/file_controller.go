package controllers

import (
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
	"codrive/services"
	"codrive/utils"
)

type FileController struct {
	drive *services.DriveService
}

func NewFileController(drive *services.DriveService) *FileController {
	return &FileController{drive: drive}
}

// parseOptionalParentID reads an optional parent id from query or body.
func parseOptionalParentID(raw string) (*primitive.ObjectID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := utils.StringToObjectID(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// GetRoot returns the caller's root folder, creating it on first use
func (fc *FileController) GetRoot(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	root, err := fc.drive.EnsureUserRoot(c.Request.Context(), principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Root folder retrieved successfully", root)
}

// ListChildren returns the visible children of a folder
func (fc *FileController) ListChildren(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	parentID, ok := parseOptionalParentID(c.Query("parent_id"))
	if !ok {
		utils.BadRequestResponse(c, "Invalid parent ID")
		return
	}

	listing, err := fc.drive.ListChildren(c.Request.Context(), parentID, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Files retrieved successfully", listing)
}

// CreateFolder creates a new folder
func (fc *FileController) CreateFolder(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req models.FolderCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return
	}
	parentID, ok := parseOptionalParentID(req.ParentID)
	if !ok {
		utils.BadRequestResponse(c, "Invalid parent ID")
		return
	}

	folder, err := fc.drive.CreateFolder(c.Request.Context(), req.Name, parentID, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Folder created successfully", folder)
}

// multipartBlob adapts a multipart file header to the upload contract.
type multipartBlob struct {
	header *multipart.FileHeader
}

func (b *multipartBlob) OriginalName() string { return b.header.Filename }
func (b *multipartBlob) MimeType() string     { return b.header.Header.Get("Content-Type") }
func (b *multipartBlob) SizeBytes() int64     { return b.header.Size }
func (b *multipartBlob) Open() (io.ReadCloser, error) {
	return b.header.Open()
}

// Upload stores a new file under the given parent folder
func (fc *FileController) Upload(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "No file provided")
		return
	}
	parentID, ok := parseOptionalParentID(c.PostForm("parent_id"))
	if !ok {
		utils.BadRequestResponse(c, "Invalid parent ID")
		return
	}

	node, err := fc.drive.UploadFile(c.Request.Context(), parentID, &multipartBlob{header: header}, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "File uploaded successfully", node)
}

// Move re-parents a file or folder
func (fc *FileController) Move(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	fileID, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}

	var req models.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return
	}
	newParentID, ok := parseOptionalParentID(req.NewParentID)
	if !ok {
		utils.BadRequestResponse(c, "Invalid parent ID")
		return
	}

	node, err := fc.drive.Move(c.Request.Context(), fileID, newParentID, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "File moved successfully", node)
}

// Rename changes a file or folder name
func (fc *FileController) Rename(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	fileID, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}

	var req models.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return
	}

	node, err := fc.drive.Rename(c.Request.Context(), fileID, req.NewName, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "File renamed successfully", node)
}

// Trash soft-deletes a file or folder subtree
func (fc *FileController) Trash(c *gin.Context) {
	fc.flagOperation(c, func(ctx *gin.Context, id primitive.ObjectID, p models.Principal) error {
		return fc.drive.Trash(ctx.Request.Context(), id, p)
	}, "File moved to trash")
}

// Restore brings a trashed subtree back
func (fc *FileController) Restore(c *gin.Context) {
	fc.flagOperation(c, func(ctx *gin.Context, id primitive.ObjectID, p models.Principal) error {
		return fc.drive.Restore(ctx.Request.Context(), id, p)
	}, "File restored")
}

// HardDelete permanently removes a subtree, remote copy included
func (fc *FileController) HardDelete(c *gin.Context) {
	fc.flagOperation(c, func(ctx *gin.Context, id primitive.ObjectID, p models.Principal) error {
		return fc.drive.HardDelete(ctx.Request.Context(), id, p)
	}, "File deleted permanently")
}

func (fc *FileController) flagOperation(c *gin.Context, op func(*gin.Context, primitive.ObjectID, models.Principal) error, message string) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	fileID, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}

	if err := op(c, fileID, principal); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, message, nil)
}

func parseBulkIDs(c *gin.Context) ([]primitive.ObjectID, bool) {
	var req models.BulkFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data")
		return nil, false
	}
	ids := make([]primitive.ObjectID, 0, len(req.FileIDs))
	for _, raw := range req.FileIDs {
		id, err := utils.StringToObjectID(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid file ID: "+raw)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// BulkTrash trashes many subtrees at once, scoped to owned nodes
func (fc *FileController) BulkTrash(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	ids, ok := parseBulkIDs(c)
	if !ok {
		return
	}

	count, err := fc.drive.BulkTrash(c.Request.Context(), ids, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Files moved to trash", gin.H{"count": count})
}

// BulkRestore restores many subtrees at once
func (fc *FileController) BulkRestore(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	ids, ok := parseBulkIDs(c)
	if !ok {
		return
	}

	count, err := fc.drive.BulkRestore(c.Request.Context(), ids, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Files restored", gin.H{"count": count})
}

// ListTrashed returns the caller's trashed items
func (fc *FileController) ListTrashed(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	trashed, err := fc.drive.ListTrashed(c.Request.Context(), principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Trash retrieved successfully", trashed)
}

// ListRecent returns the caller's recently viewed items
func (fc *FileController) ListRecent(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	recent, err := fc.drive.ListRecent(c.Request.Context(), principal, limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Recent files retrieved successfully", recent)
}

// DownloadURL returns a fresh pre-authenticated download URL
func (fc *FileController) DownloadURL(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	fileID, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}

	dlURL, err := fc.drive.GetDownloadURL(c.Request.Context(), fileID, principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Download URL generated", gin.H{"download_url": dlURL})
}

// Breadcrumb returns the ancestor chain of a node
func (fc *FileController) Breadcrumb(c *gin.Context) {
	fileID, err := utils.StringToObjectID(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid file ID")
		return
	}

	chain, err := fc.drive.Ancestors(c.Request.Context(), fileID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Breadcrumb retrieved successfully", chain)
}

// Star marks a file as a favorite
func (fc *FileController) Star(c *gin.Context) {
	fc.flagOperation(c, func(ctx *gin.Context, id primitive.ObjectID, p models.Principal) error {
		return fc.drive.Star(ctx.Request.Context(), id, p)
	}, "File starred")
}

// Unstar removes the favorite mark
func (fc *FileController) Unstar(c *gin.Context) {
	fc.flagOperation(c, func(ctx *gin.Context, id primitive.ObjectID, p models.Principal) error {
		return fc.drive.Unstar(ctx.Request.Context(), id, p)
	}, "File unstarred")
}

// ListStarred returns the caller's starred items
func (fc *FileController) ListStarred(c *gin.Context) {
	principal, ok := utils.GetPrincipalFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	starred, err := fc.drive.ListStarred(c.Request.Context(), principal)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "Starred files retrieved successfully", starred)
}
