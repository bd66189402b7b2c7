package models

import "time"

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type FolderCreateRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	ParentID string `json:"parent_id,omitempty"`
}

type MoveRequest struct {
	NewParentID string `json:"new_parent_id,omitempty"`
}

type RenameRequest struct {
	NewName string `json:"new_name" binding:"required,max=255"`
}

type BulkFileRequest struct {
	FileIDs []string `json:"file_ids" binding:"required,min=1"`
}

type PermissionRequest struct {
	FileID     string `json:"file_id" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	Permission string `json:"permission" binding:"required,oneof=owner view upload edit delete create_folder"`
}

// Listing is the folders/files split returned by child enumeration.
type Listing struct {
	Folder  *File  `json:"folder"`
	Folders []File `json:"folders"`
	Files   []File `json:"files"`
}

// SyncResult summarizes one delta reconciliation pass.
type SyncResult struct {
	SyncedCount  int `json:"synced_count"`
	DeletedCount int `json:"deleted_count"`
	SkippedCount int `json:"skipped_count"`
}
