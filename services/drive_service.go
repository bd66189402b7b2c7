package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/audit"
	"codrive/models"
	"codrive/permissions"
	"codrive/remote"
	"codrive/store"
	"codrive/tree"
)

const remoteTimeout = 60 * time.Second

// Blob is an opaque uploaded-content handle supplied by the transport
// layer.
type Blob interface {
	OriginalName() string
	MimeType() string
	SizeBytes() int64
	Open() (io.ReadCloser, error)
}

// DriveService orchestrates the permission-checked tree operations and
// mirrors every structural mutation to the remote drive before
// committing it locally.
type DriveService struct {
	store   store.Store
	gateway remote.Storage
	perms   *permissions.Engine
	walker  *tree.Walker
	sink    *audit.Sink

	locksMu   sync.Mutex
	rootLocks map[primitive.ObjectID]*sync.Mutex
	nodeLocks map[primitive.ObjectID]*sync.Mutex
}

func NewDriveService(st store.Store, gateway remote.Storage, perms *permissions.Engine, walker *tree.Walker, sink *audit.Sink) *DriveService {
	return &DriveService{
		store:     st,
		gateway:   gateway,
		perms:     perms,
		walker:    walker,
		sink:      sink,
		rootLocks: make(map[primitive.ObjectID]*sync.Mutex),
		nodeLocks: make(map[primitive.ObjectID]*sync.Mutex),
	}
}

func lockFrom(mu *sync.Mutex, m map[primitive.ObjectID]*sync.Mutex, id primitive.ObjectID) *sync.Mutex {
	mu.Lock()
	defer mu.Unlock()
	l, ok := m[id]
	if !ok {
		l = &sync.Mutex{}
		m[id] = l
	}
	return l
}

// lockNode serializes remote mutations targeting the same node, so a
// concurrent rename+move on one file cannot interleave at the provider.
func (s *DriveService) lockNode(id primitive.ObjectID) func() {
	l := lockFrom(&s.locksMu, s.nodeLocks, id)
	l.Lock()
	return l.Unlock
}

func (s *DriveService) lockRoot(userID primitive.ObjectID) func() {
	l := lockFrom(&s.locksMu, s.rootLocks, userID)
	l.Lock()
	return l.Unlock
}

func childPath(parent *models.File, name string) string {
	if parent == nil || parent.Path == "" || parent.Path == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(parent.Path, "/") + "/" + name
}

// EnsureUserRoot returns the user's root folder, creating it exactly
// once. The per-user lock plus the gateway's idempotent folder create
// keep two racing first-calls from producing two remote roots.
func (s *DriveService) EnsureUserRoot(ctx context.Context, principal models.Principal) (*models.File, error) {
	if root, err := s.store.GetRootFolder(ctx, principal.ID); err == nil {
		return root, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	defer s.lockRoot(principal.ID)()

	// second writer finds the row the first one just committed
	if root, err := s.store.GetRootFolder(ctx, principal.ID); err == nil {
		return root, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	item, err := s.gateway.CreateFolder(rctx, "user-"+principal.ID.Hex(), "")
	if err != nil {
		return nil, err
	}

	root := &models.File{
		UserID:      principal.ID,
		Name:        item.Name,
		Kind:        models.KindFolder,
		Path:        "/",
		StorageType: models.StorageRemote,
		RemoteID:    item.ID,
		WebURL:      item.WebURL,
	}
	root, err = s.store.UpsertFileByRemoteID(ctx, root)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.Grant(ctx, root.ID, principal.ID, models.PermissionOwner); err != nil {
		return nil, err
	}
	if err := s.sink.RecordAction(ctx, root.ID, principal.ID, models.HistoryCreateFolder, map[string]interface{}{"name": root.Name}); err != nil {
		return nil, err
	}
	s.sink.Notify(ctx, principal.ID, models.HistoryCreateFolder, root)
	return root, nil
}

// resolveParent loads the requested parent folder, defaulting to the
// principal's root when parentID is nil.
func (s *DriveService) resolveParent(ctx context.Context, parentID *primitive.ObjectID, principal models.Principal) (*models.File, error) {
	if parentID == nil {
		return s.EnsureUserRoot(ctx, principal)
	}
	parent, err := s.store.GetFile(ctx, *parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, models.ErrNotFound
	}
	return parent, nil
}

// CreateFolder mirrors a new folder to the remote drive first, then
// commits the local row. The local write is an upsert on remote_id, so
// a sync race updates rather than duplicates.
func (s *DriveService) CreateFolder(ctx context.Context, name string, parentID *primitive.ObjectID, principal models.Principal) (*models.File, error) {
	parent, err := s.resolveParent(ctx, parentID, principal)
	if err != nil {
		return nil, err
	}
	if !s.perms.Authorize(ctx, parent, principal, models.ActionCreateFolder) {
		return nil, models.ErrPermissionDenied
	}

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	item, err := s.gateway.CreateFolder(rctx, name, parent.RemoteID)
	if err != nil {
		return nil, err
	}

	node := &models.File{
		UserID:      principal.ID,
		ParentID:    &parent.ID,
		Name:        item.Name,
		Kind:        models.KindFolder,
		Path:        childPath(parent, item.Name),
		StorageType: models.StorageRemote,
		RemoteID:    item.ID,
		WebURL:      item.WebURL,
	}
	node, err = s.store.UpsertFileByRemoteID(ctx, node)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.Grant(ctx, node.ID, principal.ID, models.PermissionOwner); err != nil {
		return nil, err
	}
	if err := s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryCreateFolder, map[string]interface{}{"name": node.Name}); err != nil {
		return nil, err
	}
	s.sink.Notify(ctx, principal.ID, models.HistoryCreateFolder, node)
	return node, nil
}

// UploadFile streams the blob to the remote drive and records the
// resulting item locally. Unlike CreateFolder there is no existence
// check, so a retried timed-out upload can duplicate the remote file.
func (s *DriveService) UploadFile(ctx context.Context, parentID *primitive.ObjectID, blob Blob, principal models.Principal) (*models.File, error) {
	parent, err := s.resolveParent(ctx, parentID, principal)
	if err != nil {
		return nil, err
	}
	if !s.perms.Authorize(ctx, parent, principal, models.ActionUpload) {
		return nil, models.ErrPermissionDenied
	}

	content, err := blob.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %v", err)
	}
	defer content.Close()

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	item, err := s.gateway.UploadContent(rctx, blob.OriginalName(), content, parent.RemoteID)
	if err != nil {
		return nil, err
	}

	size := item.Size
	if size == 0 {
		size = blob.SizeBytes()
	}
	node := &models.File{
		UserID:      principal.ID,
		ParentID:    &parent.ID,
		Name:        item.Name,
		Kind:        models.KindFile,
		Path:        childPath(parent, item.Name),
		Size:        size,
		StorageType: models.StorageRemote,
		RemoteID:    item.ID,
		WebURL:      item.WebURL,
		DownloadURL: item.DownloadURL,
	}
	node, err = s.store.UpsertFileByRemoteID(ctx, node)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.Grant(ctx, node.ID, principal.ID, models.PermissionOwner); err != nil {
		return nil, err
	}
	if err := s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryUpload, map[string]interface{}{
		"name": node.Name,
		"size": size,
		"mime": blob.MimeType(),
	}); err != nil {
		return nil, err
	}
	s.sink.Notify(ctx, principal.ID, models.HistoryUpload, node)
	return node, nil
}

// isDescendant reports whether candidate sits inside node's subtree,
// walking the ancestor chain upward from candidate.
func (s *DriveService) isDescendant(ctx context.Context, nodeID primitive.ObjectID, candidate *models.File) (bool, error) {
	cur := candidate
	for {
		if cur.ID == nodeID {
			return true, nil
		}
		if cur.ParentID == nil {
			return false, nil
		}
		parent, err := s.store.GetFile(ctx, *cur.ParentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		cur = parent
	}
}

// Move re-parents a node. The remote move happens first; a local-update
// failure after remote success leaves drift healed by the next sync
// pass.
func (s *DriveService) Move(ctx context.Context, fileID primitive.ObjectID, newParentID *primitive.ObjectID, principal models.Principal) (*models.File, error) {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	newParent, err := s.resolveParent(ctx, newParentID, principal)
	if err != nil {
		return nil, err
	}

	inside, err := s.isDescendant(ctx, node.ID, newParent)
	if err != nil {
		return nil, err
	}
	if inside {
		return nil, models.ErrInvalidMove
	}

	defer s.lockNode(node.ID)()

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	item, err := s.gateway.Move(rctx, node.RemoteID, newParent.RemoteID)
	if err != nil {
		return nil, err
	}

	newPath := childPath(newParent, node.Name)
	parentPtr := &newParent.ID
	upd := models.FileUpdate{
		ParentID: &parentPtr,
		Path:     &newPath,
	}
	if item.WebURL != "" {
		upd.WebURL = &item.WebURL
	}
	if err := s.store.UpdateFile(ctx, node.ID, upd); err != nil {
		logrus.WithError(err).WithField("file_id", node.ID.Hex()).
			Warn("Remote move succeeded but local update failed; sync will heal")
		return nil, err
	}

	if err := s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryMove, map[string]interface{}{
		"new_parent_id": newParent.ID.Hex(),
	}); err != nil {
		return nil, err
	}

	moved, err := s.store.GetFile(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	s.sink.Notify(ctx, principal.ID, models.HistoryMove, moved)
	return moved, nil
}

// Rename changes a node's display name remotely then locally.
func (s *DriveService) Rename(ctx context.Context, fileID primitive.ObjectID, newName string, principal models.Principal) (*models.File, error) {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	defer s.lockNode(node.ID)()

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	item, err := s.gateway.Rename(rctx, node.RemoteID, newName)
	if err != nil {
		return nil, err
	}

	newPath := node.Path
	if idx := strings.LastIndex(newPath, "/"); idx >= 0 {
		newPath = newPath[:idx+1] + item.Name
	}
	upd := models.FileUpdate{
		Name: &item.Name,
		Path: &newPath,
	}
	if err := s.store.UpdateFile(ctx, node.ID, upd); err != nil {
		logrus.WithError(err).WithField("file_id", node.ID.Hex()).
			Warn("Remote rename succeeded but local update failed; sync will heal")
		return nil, err
	}

	if err := s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryRename, map[string]interface{}{
		"old_name": node.Name,
		"new_name": item.Name,
	}); err != nil {
		return nil, err
	}

	renamed, err := s.store.GetFile(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	s.sink.Notify(ctx, principal.ID, models.HistoryRename, renamed)
	return renamed, nil
}

/// Trash soft-deletes the node and its whole subtree. Local-only: the
// remote item stays where it is.
func (s *DriveService) Trash(ctx context.Context, fileID primitive.ObjectID, principal models.Principal) error {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !s.perms.Authorize(ctx, node, principal, models.ActionDelete) {
		return models.ErrPermissionDenied
	}

	if err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.walker.CascadeTrash(txCtx, node, principal.ID)
	}); err != nil {
		return err
	}
	return s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryTrash, map[string]interface{}{"name": node.Name})
}

// Restore clears the trashed flag on the node and its subtree. Gated on
// the delete grant, same as Trash.
func (s *DriveService) Restore(ctx context.Context, fileID primitive.ObjectID, principal models.Principal) error {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !s.perms.Authorize(ctx, node, principal, models.ActionDelete) {
		return models.ErrPermissionDenied
	}

	if err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.walker.CascadeRestore(txCtx, node, principal.ID)
	}); err != nil {
		return err
	}
	return s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryRestore, map[string]interface{}{"name": node.Name})
}

// HardDelete removes the remote item, then the local subtree with its
// grants and history inside one transaction.
func (s *DriveService) HardDelete(ctx context.Context, fileID primitive.ObjectID, principal models.Principal) error {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !s.perms.Authorize(ctx, node, principal, models.ActionDelete) {
		return models.ErrPermissionDenied
	}

	if node.RemoteID != "" {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		defer cancel()
		if err := s.gateway.Delete(rctx, node.RemoteID); err != nil {
			var re *models.RemoteError
			// an item already gone remotely is fine to delete locally
			if !errors.As(err, &re) || re.Transient {
				return err
			}
		}
	}

	return s.walker.CascadeHardDelete(ctx, node, principal.ID)
}

// BulkTrash flags every listed node plus all descendants in one update,
// scoped to nodes the principal owns. Returns how many rows changed.
func (s *DriveService) BulkTrash(ctx context.Context, fileIDs []primitive.ObjectID, principal models.Principal) (int64, error) {
	return s.bulkFlag(ctx, fileIDs, principal, true)
}

// BulkRestore is the inverse of BulkTrash.
func (s *DriveService) BulkRestore(ctx context.Context, fileIDs []primitive.ObjectID, principal models.Principal) (int64, error) {
	return s.bulkFlag(ctx, fileIDs, principal, false)
}

func (s *DriveService) bulkFlag(ctx context.Context, fileIDs []primitive.ObjectID, principal models.Principal, trashed bool) (int64, error) {
	all, err := s.walker.DescendantIDs(ctx, fileIDs)
	if err != nil {
		return 0, err
	}
	return s.store.SetTrashedOwned(ctx, all, principal.ID, trashed)
}

// ListChildren returns the folder's non-trashed children the principal
// may view, split into folders and files.
func (s *DriveService) ListChildren(ctx context.Context, parentID *primitive.ObjectID, principal models.Principal) (*models.Listing, error) {
	parent, err := s.resolveParent(ctx, parentID, principal)
	if err != nil {
		return nil, err
	}

	children, err := s.store.Children(ctx, parent.ID, false)
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		Folder:  parent,
		Folders: []models.File{},
		Files:   []models.File{},
	}
	for i := range children {
		child := &children[i]
		if !s.perms.Authorize(ctx, child, principal, models.ActionView) {
			continue
		}
		if child.IsFolder() {
			listing.Folders = append(listing.Folders, *child)
		} else {
			listing.Files = append(listing.Files, *child)
		}
	}

	if err := s.sink.RecordAction(ctx, parent.ID, principal.ID, models.HistoryView, nil); err != nil {
		return nil, err
	}
	return listing, nil
}

// ListTrashed returns the principal's top-level trashed nodes. Trashed
// descendants of a trashed folder are implied and not listed.
func (s *DriveService) ListTrashed(ctx context.Context, principal models.Principal) ([]models.File, error) {
	return s.store.TrashedRoots(ctx, principal.ID)
}

// ListRecent joins the principal's latest view history to live nodes.
func (s *DriveService) ListRecent(ctx context.Context, principal models.Principal, limit int) ([]models.File, error) {
	entries, err := s.sink.History(ctx, principal.ID, models.HistoryView, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.FileID)
	}
	files, err := s.store.FilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[primitive.ObjectID]models.File, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	// keep history order, drop trashed and hard-deleted nodes
	recent := make([]models.File, 0, len(entries))
	for _, e := range entries {
		if f, ok := byID[e.FileID]; ok && !f.IsTrashed {
			recent = append(recent, f)
		}
	}
	return recent, nil
}

// GetDownloadURL fetches a fresh pre-authenticated URL for the node and
// refreshes the cached copy.
func (s *DriveService) GetDownloadURL(ctx context.Context, fileID primitive.ObjectID, principal models.Principal) (string, error) {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !s.perms.Authorize(ctx, node, principal, models.ActionView) {
		return "", models.ErrPermissionDenied
	}

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	dlURL, err := s.gateway.GetDownloadURL(rctx, node.RemoteID)
	if err != nil {
		return "", err
	}

	if dlURL != "" && dlURL != node.DownloadURL {
		if err := s.store.UpdateFile(ctx, node.ID, models.FileUpdate{DownloadURL: &dlURL}); err != nil {
			logrus.WithError(err).WithField("file_id", node.ID.Hex()).Warn("Failed to cache download URL")
		}
	}

	if err := s.sink.RecordAction(ctx, node.ID, principal.ID, models.HistoryDownload, nil); err != nil {
		return "", err
	}
	return dlURL, nil
}

// Star marks a node as a favorite for the principal.
func (s *DriveService) Star(ctx context.Context, fileID primitive.ObjectID, principal models.Principal) error {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !s.perms.Authorize(ctx, node, principal, models.ActionView) {
		return models.ErrPermissionDenied
	}
	return s.store.InsertStar(ctx, node.ID, principal.ID)
}

// Unstar removes the favorite mark. No-op if absent.
func (s *DriveService) Unstar(ctx context.Context, fileID primitive.ObjectID, principal models.Principal) error {
	_, err := s.store.DeleteStar(ctx, fileID, principal.ID)
	return err
}

// ListStarred returns the principal's starred, non-trashed nodes.
func (s *DriveService) ListStarred(ctx context.Context, principal models.Principal) ([]models.File, error) {
	stars, err := s.store.StarsForUser(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(stars))
	for _, st := range stars {
		ids = append(ids, st.FileID)
	}
	files, err := s.store.FilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if !f.IsTrashed {
			out = append(out, f)
		}
	}
	return out, nil
}

// Ancestors returns the chain from the node's root down to its parent,
// for breadcrumb rendering.
func (s *DriveService) Ancestors(ctx context.Context, fileID primitive.ObjectID) ([]models.File, error) {
	node, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	var chain []models.File
	for node.ParentID != nil {
		parent, err := s.store.GetFile(ctx, *node.ParentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				break
			}
			return nil, err
		}
		chain = append([]models.File{*parent}, chain...)
		node = parent
	}
	return chain, nil
}

// GetQuota reports the remote drive's storage allowance.
func (s *DriveService) GetQuota(ctx context.Context) (*remote.Quota, error) {
	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	return s.gateway.GetQuota(rctx)
}

// AssignPermission grants a permission on an existing node.
func (s *DriveService) AssignPermission(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error) {
	if _, err := s.store.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	return s.perms.Grant(ctx, fileID, userID, perm)
}

// RevokePermission removes a permission row; reports whether one existed.
func (s *DriveService) RevokePermission(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (bool, error) {
	return s.perms.Revoke(ctx, fileID, userID, perm)
}

func (s *DriveService) ListPermissions(ctx context.Context, fileID primitive.ObjectID) ([]models.FilePermission, error) {
	if _, err := s.store.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	return s.perms.ListForFile(ctx, fileID)
}

func (s *DriveService) ListPermissionsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.FilePermission, error) {
	return s.perms.ListForUser(ctx, userID)
}
