package database

// Collection names used by the application.
const (
	FilesCollection           = "files"
	FilePermissionsCollection = "file_permissions"
	FileHistoryCollection     = "file_history"
	NotificationsCollection   = "notifications"
	StarsCollection           = "stars"
	SyncStateCollection       = "sync_state"
)
