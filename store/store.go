package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
)

// Store is the persistence boundary for nodes, grants, history,
// notifications, stars and the sync cursor. Two implementations exist:
// MongoStore for production and MemoryStore for tests and local runs.
//
// Get* methods return models.ErrNotFound when the row does not exist.
// Mutations inside WithTransaction are applied atomically; any error
// returned from the callback rolls the whole batch back.
type Store interface {
	// Nodes
	InsertFile(ctx context.Context, f *models.File) error
	UpsertFileByRemoteID(ctx context.Context, f *models.File) (*models.File, error)
	GetFile(ctx context.Context, id primitive.ObjectID) (*models.File, error)
	GetFileByRemoteID(ctx context.Context, remoteID string) (*models.File, error)
	GetRootFolder(ctx context.Context, ownerID primitive.ObjectID) (*models.File, error)
	UpdateFile(ctx context.Context, id primitive.ObjectID, upd models.FileUpdate) error
	DeleteFile(ctx context.Context, id primitive.ObjectID) error
	FilesByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.File, error)
	Children(ctx context.Context, parentID primitive.ObjectID, includeTrashed bool) ([]models.File, error)
	ChildIDs(ctx context.Context, parentIDs []primitive.ObjectID) ([]primitive.ObjectID, error)
	SetTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool) (int64, error)
	SetTrashedOwned(ctx context.Context, ids []primitive.ObjectID, ownerID primitive.ObjectID, trashed bool) (int64, error)
	TrashedRoots(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error)

	// Grants
	UpsertGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error)
	DeleteGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (bool, error)
	GetGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error)
	GrantsForFile(ctx context.Context, fileID primitive.ObjectID) ([]models.FilePermission, error)
	GrantsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.FilePermission, error)
	DeleteGrantsForFile(ctx context.Context, fileID primitive.ObjectID) error

	// History
	GetHistorySince(ctx context.Context, fileID, userID primitive.ObjectID, action string, since time.Time) (*models.FileHistory, error)
	InsertHistory(ctx context.Context, h *models.FileHistory) error
	TouchHistory(ctx context.Context, id primitive.ObjectID, metadata map[string]interface{}, at time.Time) error
	RecentHistory(ctx context.Context, userID primitive.ObjectID, action string, limit int) ([]models.FileHistory, error)

	// Notifications
	InsertNotification(ctx context.Context, n *models.Notification) error
	NotificationsForUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) error

	// Stars
	InsertStar(ctx context.Context, fileID, userID primitive.ObjectID) error
	DeleteStar(ctx context.Context, fileID, userID primitive.ObjectID) (bool, error)
	StarsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Star, error)

	// Sync cursor (single durable key-value slot per feed)
	GetSyncState(ctx context.Context, key string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error

	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// InTransaction reports whether ctx is already inside a WithTransaction
// callback. Nested WithTransaction calls join the outer transaction.
func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// MarkTransaction tags ctx as running inside a transaction.
func MarkTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, true)
}
