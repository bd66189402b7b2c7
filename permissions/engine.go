package permissions

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
	"codrive/store"
)

// acceptedGrants maps an action to the grant values that satisfy it.
// Actions absent from this table are always denied.
var acceptedGrants = map[models.Action][]models.Permission{
	models.ActionView:         {models.PermissionOwner, models.PermissionView},
	models.ActionUpload:       {models.PermissionOwner, models.PermissionUpload},
	models.ActionCreateFolder: {models.PermissionOwner, models.PermissionCreateFolder},
	models.ActionEdit:         {models.PermissionOwner, models.PermissionEdit},
	models.ActionDelete:       {models.PermissionOwner, models.PermissionDelete},
}

// Engine answers access questions against the grant table. It holds no
// state of its own and never mutates nodes.
type Engine struct {
	store store.Store
}

func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// Authorize reports whether principal may perform action on node.
// Absence of data is denial; the engine returns false, never an error,
// for missing grants.
func (e *Engine) Authorize(ctx context.Context, node *models.File, principal models.Principal, action models.Action) bool {
	if node == nil {
		return false
	}

	accepted, ok := acceptedGrants[action]
	if !ok {
		return false
	}

	// Owner fast path. Ownership alone is not enough: the owner grant
	// must still exist, so revoking it locks out a stale owner_id.
	if principal.ID == node.UserID {
		if _, err := e.store.GetGrant(ctx, node.ID, principal.ID, models.PermissionOwner); err == nil {
			return true
		}
	}

	grant, err := e.store.GetGrant(ctx, node.ID, principal.ID, models.Permission(action))
	if err != nil {
		return false
	}

	for _, p := range accepted {
		if grant.Permission == p {
			return true
		}
	}
	return false
}

// Grant upserts a permission row for user on the given file.
func (e *Engine) Grant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error) {
	if !models.ValidPermission(perm) {
		return nil, errors.New("invalid permission")
	}
	return e.store.UpsertGrant(ctx, fileID, userID, perm)
}

// Revoke removes a permission row if present and reports whether one
// was removed.
func (e *Engine) Revoke(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (bool, error) {
	return e.store.DeleteGrant(ctx, fileID, userID, perm)
}

// ListForFile returns every grant on a file.
func (e *Engine) ListForFile(ctx context.Context, fileID primitive.ObjectID) ([]models.FilePermission, error) {
	return e.store.GrantsForFile(ctx, fileID)
}

// ListForUser returns every grant held by a user.
func (e *Engine) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.FilePermission, error) {
	return e.store.GrantsForUser(ctx, userID)
}
