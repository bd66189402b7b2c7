package services

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/audit"
	"codrive/models"
	"codrive/permissions"
	"codrive/remote"
	"codrive/store"
	"codrive/tree"
)

func TestSyncDriveAppliesPage(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	// child listed before its parent to exercise deferred resolution
	fx.gateway.pages = []*remote.ChangePage{{
		Items: []remote.Item{
			{ID: "rf-1", Name: "a.txt", Size: 5, ParentID: "rd-1", DownloadURL: "https://dl.test/rf-1"},
			{ID: "rd-1", Name: "Docs", Folder: true},
		},
		NextCursor: "cursor-1",
	}}

	result, err := fx.sync.SyncDrive(ctx, u)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.SyncedCount != 2 {
		t.Errorf("expected 2 synced items, got %d", result.SyncedCount)
	}

	folder, err := fx.store.GetFileByRemoteID(ctx, "rd-1")
	if err != nil {
		t.Fatalf("folder not synced: %v", err)
	}
	file, err := fx.store.GetFileByRemoteID(ctx, "rf-1")
	if err != nil {
		t.Fatalf("file not synced: %v", err)
	}
	if file.ParentID == nil || *file.ParentID != folder.ID {
		t.Error("expected deferred item re-parented under its synced folder")
	}
	if file.Size != 5 || file.Kind != models.KindFile || folder.Kind != models.KindFolder {
		t.Error("item facets not mapped onto local nodes")
	}

	// syncing user gets owner on every upserted node
	for _, id := range []primitive.ObjectID{folder.ID, file.ID} {
		if _, err := fx.store.GetGrant(ctx, id, u.ID, models.PermissionOwner); err != nil {
			t.Errorf("expected owner grant on synced node %s", id.Hex())
		}
	}

	cursor, _ := fx.store.GetSyncState(ctx, syncCursorKey)
	if cursor != "cursor-1" {
		t.Errorf("expected cursor persisted after commit, got %q", cursor)
	}
}

func TestSyncDriveResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	fx.gateway.pages = []*remote.ChangePage{
		{NextCursor: "cursor-1"},
		{NextCursor: "cursor-2"},
	}

	if _, err := fx.sync.SyncDrive(ctx, u); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if fx.gateway.lastCursor != "" {
		t.Errorf("expected first run to start without a cursor, got %q", fx.gateway.lastCursor)
	}

	if _, err := fx.sync.SyncDrive(ctx, u); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if fx.gateway.lastCursor != "cursor-1" {
		t.Errorf("expected second run to resume from cursor-1, got %q", fx.gateway.lastCursor)
	}
}

func TestSyncDriveFetchFailureKeepsCursor(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	fx.gateway.pages = []*remote.ChangePage{{NextCursor: "cursor-1"}}
	if _, err := fx.sync.SyncDrive(ctx, u); err != nil {
		t.Fatalf("sync: %v", err)
	}

	fx.gateway.fetchErr = &models.RemoteError{Op: "fetch_changes", Code: "network", Transient: true}
	if _, err := fx.sync.SyncDrive(ctx, u); err == nil {
		t.Fatal("expected fetch failure surfaced")
	}

	cursor, _ := fx.store.GetSyncState(ctx, syncCursorKey)
	if cursor != "cursor-1" {
		t.Errorf("expected cursor untouched after failed fetch, got %q", cursor)
	}
}

func TestSyncDriveDeletions(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, err := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("hi")}
	file, err := fx.drive.UploadFile(ctx, &docs.ID, blob, u)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	// the feed flattens only the folder; the local cascade must still
	// remove the child
	fx.gateway.pages = []*remote.ChangePage{{
		DeletedIDs: []string{docs.RemoteID, "never-seen"},
		NextCursor: "cursor-1",
	}}

	result, err := fx.sync.SyncDrive(ctx, u)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("expected 1 deletion applied, got %d", result.DeletedCount)
	}

	for _, id := range []primitive.ObjectID{docs.ID, file.ID} {
		if _, err := fx.store.GetFile(ctx, id); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected node %s removed", id.Hex())
		}
	}
}

// upsertFailingStore fails UpsertFileByRemoteID for one remote id.
type upsertFailingStore struct {
	store.Store
	failRemoteID string
}

func (s *upsertFailingStore) UpsertFileByRemoteID(ctx context.Context, f *models.File) (*models.File, error) {
	if f.RemoteID == s.failRemoteID {
		return nil, errors.New("injected upsert failure")
	}
	return s.Store.UpsertFileByRemoteID(ctx, f)
}

func TestSyncDriveSkipsBadItem(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	st := &upsertFailingStore{Store: mem, failRemoteID: "bad-1"}
	gateway := newFakeGateway()
	engine := permissions.NewEngine(st)
	sink := audit.NewSink(st)
	walker := tree.NewWalker(st, sink)
	svc := NewSyncService(st, gateway, engine, walker, sink)
	u := principal()

	gateway.pages = []*remote.ChangePage{{
		Items: []remote.Item{
			{ID: "bad-1", Name: "poison.txt", Size: 1},
			{ID: "good-1", Name: "fine.txt", Size: 2},
		},
		NextCursor: "cursor-1",
	}}

	result, err := svc.SyncDrive(ctx, u)
	if err != nil {
		t.Fatalf("expected page to survive one bad item: %v", err)
	}
	if result.SyncedCount != 1 || result.SkippedCount != 1 {
		t.Errorf("expected 1 synced and 1 skipped, got %d/%d", result.SyncedCount, result.SkippedCount)
	}

	if _, err := mem.GetFileByRemoteID(ctx, "good-1"); err != nil {
		t.Error("expected the healthy item applied")
	}
	cursor, _ := mem.GetSyncState(ctx, syncCursorKey)
	if cursor != "cursor-1" {
		t.Errorf("expected cursor advanced past the skipped item, got %q", cursor)
	}
}

func TestSyncDriveUnresolvedParentFallsBackToRoot(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	// parent never appears in the page or locally
	fx.gateway.pages = []*remote.ChangePage{{
		Items: []remote.Item{
			{ID: "orphan-1", Name: "stray.txt", Size: 3, ParentID: "unknown-parent"},
		},
		NextCursor: "cursor-1",
	}}

	result, err := fx.sync.SyncDrive(ctx, u)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.SyncedCount != 1 {
		t.Errorf("expected orphan applied, got %d synced", result.SyncedCount)
	}

	orphan, err := fx.store.GetFileByRemoteID(ctx, "orphan-1")
	if err != nil {
		t.Fatalf("orphan not synced: %v", err)
	}
	if orphan.ParentID != nil {
		t.Error("expected unresolved parent recorded as root level")
	}
}
