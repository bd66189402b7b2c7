package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// History actions recorded by the audit sink.
const (
	HistoryView         = "view"
	HistoryUpload       = "upload"
	HistoryDownload     = "download"
	HistoryCreateFolder = "create_folder"
	HistoryMove         = "move"
	HistoryRename       = "rename"
	HistoryTrash        = "trash"
	HistoryRestore      = "restore"
	HistoryDelete       = "delete"
	HistorySync         = "sync"
)

// FileHistory is an append-only audit entry. Repeated identical actions on
// the same calendar day collapse into one row with a refreshed timestamp
// and metadata.
type FileHistory struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	FileID    primitive.ObjectID     `bson:"file_id" json:"file_id"`
	UserID    primitive.ObjectID     `bson:"user_id" json:"user_id"`
	Action    string                 `bson:"action" json:"action"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time              `bson:"updated_at" json:"updated_at"`
}

// Notification is a per-user inbox entry emitted as a side effect of tree
// mutations. Delivery is best-effort and never blocks the mutation.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Action    string             `bson:"action" json:"action"`
	File      NotificationFile   `bson:"file" json:"file"`
	Message   string             `bson:"message" json:"message"`
	IsRead    bool               `bson:"is_read" json:"is_read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// NotificationFile is the node snapshot embedded in a notification.
type NotificationFile struct {
	ID   primitive.ObjectID `bson:"id" json:"id"`
	Name string             `bson:"name" json:"name"`
}
