package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Node kinds
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Storage backends
const (
	StorageLocal  = "local"
	StorageRemote = "onedrive"
)

// File is a node in the hierarchical tree. Both files and folders live in
// the same collection, distinguished by Kind. ParentID is nil for a user's
// root folder. RemoteID is empty until the node has been mirrored to the
// external drive.
type File struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID  `bson:"user_id" json:"user_id"`
	ParentID    *primitive.ObjectID `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Name        string              `bson:"name" json:"name" validate:"required"`
	Kind        string              `bson:"kind" json:"kind"`
	Path        string              `bson:"path" json:"path"`
	Size        int64               `bson:"size" json:"size"`
	StorageType string              `bson:"storage_type" json:"storage_type"`
	RemoteID    string              `bson:"remote_id,omitempty" json:"remote_id,omitempty"`
	WebURL      string              `bson:"web_url,omitempty" json:"web_url,omitempty"`
	DownloadURL string              `bson:"download_url,omitempty" json:"download_url,omitempty"`
	IsTrashed   bool                `bson:"is_trashed" json:"is_trashed"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsFolder reports whether the node is a folder.
func (f *File) IsFolder() bool {
	return f.Kind == KindFolder
}

// FileUpdate is a partial update applied to a node. Nil fields are left
// untouched. ParentID uses a double pointer so the update can distinguish
// "leave as is" (nil) from "set to root" (*nil).
type FileUpdate struct {
	Name        *string
	ParentID    **primitive.ObjectID
	Path        *string
	Size        *int64
	WebURL      *string
	DownloadURL *string
}

// Star is a favorites association between a user and a node, independent
// of the permission tables.
type Star struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileID    primitive.ObjectID `bson:"file_id" json:"file_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
