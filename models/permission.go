package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Permission is a closed set of grant kinds a user can hold on a node.
type Permission string

const (
	PermissionOwner        Permission = "owner"
	PermissionView         Permission = "view"
	PermissionUpload       Permission = "upload"
	PermissionEdit         Permission = "edit"
	PermissionDelete       Permission = "delete"
	PermissionCreateFolder Permission = "create_folder"
)

// Action is an operation a principal attempts against a node. Actions and
// permissions share names but are distinct types: an action is what the
// caller wants to do, a permission is what a grant row holds.
type Action string

const (
	ActionView         Action = "view"
	ActionUpload       Action = "upload"
	ActionEdit         Action = "edit"
	ActionDelete       Action = "delete"
	ActionCreateFolder Action = "create_folder"
)

// ValidPermission reports whether p is one of the closed grant kinds.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionOwner, PermissionView, PermissionUpload,
		PermissionEdit, PermissionDelete, PermissionCreateFolder:
		return true
	}
	return false
}

// FilePermission binds a user, a node and a permission kind. Multiple rows
// per (file, user) pair are allowed, one per permission. Every node keeps
// at least one owner row at all times.
type FilePermission struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileID     primitive.ObjectID `bson:"file_id" json:"file_id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	Permission Permission         `bson:"permission" json:"permission"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// Principal is the already-authenticated caller supplied by the upstream
// auth layer. The core trusts ID and never re-authenticates.
type Principal struct {
	ID    primitive.ObjectID `json:"id"`
	Roles []string           `json:"roles"`
}
