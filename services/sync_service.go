package services

import (
	"context"
	"errors"
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

// syncCursorKey is the durable slot holding the delta-feed cursor.
const syncCursorKey = "onedrive_delta"

// SyncService reconciles local state against the remote drive's delta
// feed. Runs are serialized: overlapping invocations queue on the mutex
// rather than racing on the cursor.
type SyncService struct {
	store   store.Store
	gateway remote.Storage
	perms   *permissions.Engine
	walker  *tree.Walker
	sink    *audit.Sink

	mu sync.Mutex
}

func NewSyncService(st store.Store, gateway remote.Storage, perms *permissions.Engine, walker *tree.Walker, sink *audit.Sink) *SyncService {
	return &SyncService{
		store:   st,
		gateway: gateway,
		perms:   perms,
		walker:  walker,
		sink:    sink,
	}
}

// SyncDrive pulls one page of remote changes and applies it in a single
// local transaction. The new cursor is persisted only after the page
// commits, so a failed run resumes from the last committed cursor.
// Individual bad items are logged and skipped, never aborting the page.
func (s *SyncService) SyncDrive(ctx context.Context, principal models.Principal) (*models.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor, err := s.store.GetSyncState(ctx, syncCursorKey)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	page, err := s.gateway.FetchChanges(rctx, cursor)
	if err != nil {
		// cursor untouched; the feed resumes from the last commit
		return nil, err
	}

	result := &models.SyncResult{}
	err = s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.applyDeletions(txCtx, page.DeletedIDs, principal, result); err != nil {
			return err
		}
		s.applyItems(txCtx, page.Items, principal, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if page.NextCursor != "" {
		if err := s.store.SetSyncState(ctx, syncCursorKey, page.NextCursor); err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"synced":  result.SyncedCount,
		"deleted": result.DeletedCount,
		"skipped": result.SkippedCount,
	}).Info("Drive sync pass complete")
	return result, nil
}

// applyDeletions hard-deletes each locally known node the feed reports
// removed. The cascade is defensive: providers usually flatten nested
// deletions into the feed, but a missing child entry must not strand
// local rows.
func (s *SyncService) applyDeletions(ctx context.Context, deletedIDs []string, principal models.Principal, result *models.SyncResult) error {
	for _, remoteID := range deletedIDs {
		node, err := s.store.GetFileByRemoteID(ctx, remoteID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return err
		}
		if err := s.walker.CascadeHardDelete(ctx, node, principal.ID); err != nil {
			return err
		}
		result.DeletedCount++
	}
	return nil
}

// applyItems upserts changed items, deferring those whose parent has not
// arrived yet and retrying them after the rest of the page. Items whose
// parent never resolves are attached at the root level and corrected by
// a later pass.
func (s *SyncService) applyItems(ctx context.Context, items []remote.Item, principal models.Principal, result *models.SyncResult) {
	pending := items
	for len(pending) > 0 {
		var deferred []remote.Item
		progress := false

		for _, item := range pending {
			parentID, resolved := s.resolveRemoteParent(ctx, item.ParentID)
			if !resolved {
				deferred = append(deferred, item)
				continue
			}
			if err := s.applyItem(ctx, item, parentID, principal); err != nil {
				logrus.WithError(&models.SyncItemError{RemoteID: item.ID, Err: err}).
					Warn("Skipping delta item")
				result.SkippedCount++
			} else {
				result.SyncedCount++
			}
			progress = true
		}

		if !progress {
			// nothing resolvable remains; attach the rest at root level
			for _, item := range pending {
				if err := s.applyItem(ctx, item, nil, principal); err != nil {
					logrus.WithError(&models.SyncItemError{RemoteID: item.ID, Err: err}).
						Warn("Skipping delta item with unresolved parent")
					result.SkippedCount++
				} else {
					result.SyncedCount++
				}
			}
			return
		}
		pending = deferred
	}
}

// resolveRemoteParent maps a remote parent id to the local node id.
// Returns resolved=false when the parent is known remotely but has no
// local row yet.
func (s *SyncService) resolveRemoteParent(ctx context.Context, remoteParentID string) (*primitive.ObjectID, bool) {
	if remoteParentID == "" {
		return nil, true
	}
	parent, err := s.store.GetFileByRemoteID(ctx, remoteParentID)
	if err != nil {
		return nil, false
	}
	return &parent.ID, true
}

func (s *SyncService) applyItem(ctx context.Context, item remote.Item, parentID *primitive.ObjectID, principal models.Principal) error {
	kind := models.KindFile
	if item.Folder {
		kind = models.KindFolder
	}

	path := "/" + item.Name
	if parentID != nil {
		if parent, err := s.store.GetFile(ctx, *parentID); err == nil {
			path = childPath(parent, item.Name)
		}
	}

	node := &models.File{
		UserID:      principal.ID,
		ParentID:    parentID,
		Name:        item.Name,
		Kind:        kind,
		Path:        path,
		Size:        item.Size,
		StorageType: models.StorageRemote,
		RemoteID:    item.ID,
		WebURL:      item.WebURL,
		DownloadURL: item.DownloadURL,
	}
	node, err := s.store.UpsertFileByRemoteID(ctx, node)
	if err != nil {
		return err
	}
	if _, err := s.perms.Grant(ctx, node.ID, principal.ID, models.PermissionOwner); err != nil {
		return err
	}
	s.sink.Notify(ctx, principal.ID, models.HistorySync, node)
	return nil
}

// Run invokes SyncDrive at the given interval until the context is
// cancelled. Meant to be started once from main as a background loop.
func (s *SyncService) Run(ctx context.Context, interval time.Duration, principal models.Principal) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncDrive(ctx, principal); err != nil {
				logrus.WithError(err).Error("Drive sync pass failed")
			}
		}
	}
}
