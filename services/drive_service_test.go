package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/audit"
	"codrive/models"
	"codrive/permissions"
	"codrive/remote"
	"codrive/store"
	"codrive/tree"
)

// fakeGateway is an in-memory remote.Storage double.
type fakeGateway struct {
	mu          sync.Mutex
	seq         int
	items       map[string]remote.Item
	createCalls int
	moveCalls   int
	deleteCalls int

	// pages scripts FetchChanges responses; each call shifts one off.
	pages      []*remote.ChangePage
	fetchErr   error
	lastCursor string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{items: map[string]remote.Item{}}
}

func (g *fakeGateway) nextID() string {
	g.seq++
	return fmt.Sprintf("remote-%d", g.seq)
}

func (g *fakeGateway) CreateFolder(ctx context.Context, name, parentID string) (*remote.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, it := range g.items {
		if it.Folder && it.ParentID == parentID && strings.EqualFold(it.Name, name) {
			out := it
			return &out, nil
		}
	}
	g.createCalls++
	item := remote.Item{ID: g.nextID(), Name: name, Folder: true, ParentID: parentID, WebURL: "https://drive.test/" + name}
	g.items[item.ID] = item
	out := item
	return &out, nil
}

func (g *fakeGateway) UploadContent(ctx context.Context, name string, content io.Reader, parentID string) (*remote.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, err := ioutil.ReadAll(content)
	if err != nil {
		return nil, err
	}
	item := remote.Item{
		ID:          g.nextID(),
		Name:        name,
		Size:        int64(len(data)),
		ParentID:    parentID,
		WebURL:      "https://drive.test/" + name,
		DownloadURL: "https://dl.test/" + name,
	}
	g.items[item.ID] = item
	out := item
	return &out, nil
}

func (g *fakeGateway) Rename(ctx context.Context, remoteID, newName string) (*remote.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[remoteID]
	if !ok {
		return nil, &models.RemoteError{Op: "rename", Code: "itemNotFound"}
	}
	item.Name = newName
	g.items[remoteID] = item
	out := item
	return &out, nil
}

func (g *fakeGateway) Move(ctx context.Context, remoteID, newParentID string) (*remote.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moveCalls++
	item, ok := g.items[remoteID]
	if !ok {
		return nil, &models.RemoteError{Op: "move", Code: "itemNotFound"}
	}
	item.ParentID = newParentID
	g.items[remoteID] = item
	out := item
	return &out, nil
}

func (g *fakeGateway) Delete(ctx context.Context, remoteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls++
	delete(g.items, remoteID)
	return nil
}

func (g *fakeGateway) GetDownloadURL(ctx context.Context, remoteID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[remoteID]; !ok {
		return "", &models.RemoteError{Op: "get_download_url", Code: "itemNotFound"}
	}
	return "https://dl.test/" + remoteID, nil
}

func (g *fakeGateway) FetchChanges(ctx context.Context, cursor string) (*remote.ChangePage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCursor = cursor
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	if len(g.pages) == 0 {
		return &remote.ChangePage{NextCursor: cursor}, nil
	}
	page := g.pages[0]
	g.pages = g.pages[1:]
	return page, nil
}

func (g *fakeGateway) GetQuota(ctx context.Context) (*remote.Quota, error) {
	return &remote.Quota{Total: 100, Used: 10, Remaining: 90, State: "normal"}, nil
}

// testBlob implements Blob over a byte slice.
type testBlob struct {
	name string
	mime string
	data []byte
}

func (b *testBlob) OriginalName() string { return b.name }
func (b *testBlob) MimeType() string     { return b.mime }
func (b *testBlob) SizeBytes() int64     { return int64(len(b.data)) }
func (b *testBlob) Open() (io.ReadCloser, error) {
	return ioutil.NopCloser(bytes.NewReader(b.data)), nil
}

type fixture struct {
	store   *store.MemoryStore
	gateway *fakeGateway
	drive   *DriveService
	sync    *SyncService
	sink    *audit.Sink
}

func newFixture() *fixture {
	st := store.NewMemoryStore()
	gateway := newFakeGateway()
	engine := permissions.NewEngine(st)
	sink := audit.NewSink(st)
	walker := tree.NewWalker(st, sink)
	return &fixture{
		store:   st,
		gateway: gateway,
		drive:   NewDriveService(st, gateway, engine, walker, sink),
		sync:    NewSyncService(st, gateway, engine, walker, sink),
		sink:    sink,
	}
}

func principal() models.Principal {
	return models.Principal{ID: primitive.NewObjectID()}
}

func TestEnsureUserRootOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	first, err := fx.drive.EnsureUserRoot(ctx, u)
	if err != nil {
		t.Fatalf("ensure root: %v", err)
	}
	second, err := fx.drive.EnsureUserRoot(ctx, u)
	if err != nil {
		t.Fatalf("ensure root: %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected the same root node on repeat calls")
	}
	if fx.gateway.createCalls != 1 {
		t.Errorf("expected 1 remote folder create, got %d", fx.gateway.createCalls)
	}

	// owner grant created atomically with the node
	if _, err := fx.store.GetGrant(ctx, first.ID, u.ID, models.PermissionOwner); err != nil {
		t.Error("expected owner grant on the root")
	}
}

func TestEnsureUserRootConcurrent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	var wg sync.WaitGroup
	roots := make([]primitive.ObjectID, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root, err := fx.drive.EnsureUserRoot(ctx, u)
			if err != nil {
				t.Errorf("ensure root: %v", err)
				return
			}
			roots[i] = root.ID
		}(i)
	}
	wg.Wait()

	for _, id := range roots[1:] {
		if id != roots[0] {
			t.Fatal("concurrent first-calls produced different roots")
		}
	}
	if fx.gateway.createCalls != 1 {
		t.Errorf("expected 1 remote folder create, got %d", fx.gateway.createCalls)
	}
}

func TestCreateFolderIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	first, err := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	second, err := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected retried create to return the same node")
	}
	if first.RemoteID != second.RemoteID {
		t.Error("expected retried create to reuse the remote item")
	}
}

func TestCreateFolderPermissionDenied(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	owner := principal()
	stranger := principal()

	root, err := fx.drive.EnsureUserRoot(ctx, owner)
	if err != nil {
		t.Fatalf("ensure root: %v", err)
	}

	if _, err := fx.drive.CreateFolder(ctx, "Sneaky", &root.ID, stranger); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}

	// a create_folder grant is enough
	if _, err := fx.drive.AssignPermission(ctx, root.ID, stranger.ID, models.PermissionCreateFolder); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := fx.drive.CreateFolder(ctx, "Allowed", &root.ID, stranger); err != nil {
		t.Errorf("expected create allowed with grant, got %v", err)
	}
}

func TestUploadFile(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, err := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}

	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("0123456789")}
	node, err := fx.drive.UploadFile(ctx, &docs.ID, blob, u)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if node.Size != 10 {
		t.Errorf("expected size 10, got %d", node.Size)
	}
	if node.ParentID == nil || *node.ParentID != docs.ID {
		t.Error("expected file parented under Docs")
	}
	if node.RemoteID == "" || node.DownloadURL == "" {
		t.Error("expected remote identity and download url recorded")
	}
}

func TestMoveRejectsOwnSubtree(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, err := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	nested, err := fx.drive.CreateFolder(ctx, "Nested", &docs.ID, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}

	if _, err := fx.drive.Move(ctx, docs.ID, &nested.ID, u); !errors.Is(err, models.ErrInvalidMove) {
		t.Errorf("expected invalid move, got %v", err)
	}
	if _, err := fx.drive.Move(ctx, docs.ID, &docs.ID, u); !errors.Is(err, models.ErrInvalidMove) {
		t.Errorf("expected invalid move onto self, got %v", err)
	}
	if fx.gateway.moveCalls != 0 {
		t.Error("expected rejection before any remote call")
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	photos, _ := fx.drive.CreateFolder(ctx, "Photos", nil, u)
	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("hi")}
	file, err := fx.drive.UploadFile(ctx, &docs.ID, blob, u)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	moved, err := fx.drive.Move(ctx, file.ID, &photos.ID, u)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.ParentID == nil || *moved.ParentID != photos.ID {
		t.Error("expected new parent recorded")
	}
	if moved.Path != "/Photos/a.txt" {
		t.Errorf("expected path updated, got %q", moved.Path)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("hi")}
	file, _ := fx.drive.UploadFile(ctx, &docs.ID, blob, u)

	renamed, err := fx.drive.Rename(ctx, file.ID, "b.txt", u)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "b.txt" || renamed.Path != "/Docs/b.txt" {
		t.Errorf("unexpected node after rename: %q %q", renamed.Name, renamed.Path)
	}
}

func TestTrashRequiresDeleteGrant(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	owner := principal()
	viewer := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, owner)
	if _, err := fx.drive.AssignPermission(ctx, docs.ID, viewer.ID, models.PermissionView); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := fx.drive.Trash(ctx, docs.ID, viewer); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("expected permission denied for viewer, got %v", err)
	}
	if err := fx.drive.Trash(ctx, docs.ID, owner); err != nil {
		t.Errorf("expected owner trash allowed, got %v", err)
	}
}

func TestTrashIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err := fx.drive.Trash(ctx, docs.ID, u); err != nil {
		t.Fatalf("trash: %v", err)
	}

	if fx.gateway.deleteCalls != 0 {
		t.Error("expected no remote delete for a trash")
	}
	if _, ok := fx.gateway.items[docs.RemoteID]; !ok {
		t.Error("expected remote item untouched")
	}

	if err := fx.drive.Restore(ctx, docs.ID, u); err != nil {
		t.Fatalf("restore: %v", err)
	}
	node, _ := fx.store.GetFile(ctx, docs.ID)
	if node.IsTrashed {
		t.Error("expected node restored")
	}
}

func TestHardDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("hi")}
	file, _ := fx.drive.UploadFile(ctx, &docs.ID, blob, u)

	if err := fx.drive.HardDelete(ctx, docs.ID, u); err != nil {
		t.Fatalf("hard delete: %v", err)
	}

	for _, id := range []primitive.ObjectID{docs.ID, file.ID} {
		if _, err := fx.store.GetFile(ctx, id); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected node %s removed", id.Hex())
		}
	}
	if fx.gateway.deleteCalls != 1 {
		t.Errorf("expected 1 remote delete, got %d", fx.gateway.deleteCalls)
	}
}

func TestBulkTrashScopedToOwner(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	owner := principal()
	other := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, owner)

	n, err := fx.drive.BulkTrash(ctx, []primitive.ObjectID{docs.ID}, other)
	if err != nil {
		t.Fatalf("bulk trash: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows trashed by a non-owner, got %d", n)
	}

	node, _ := fx.store.GetFile(ctx, docs.ID)
	if node.IsTrashed {
		t.Error("expected node untouched by non-owner bulk trash")
	}
}

func TestBulkTrashAndRestore(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	nested, _ := fx.drive.CreateFolder(ctx, "Nested", &docs.ID, u)

	n, err := fx.drive.BulkTrash(ctx, []primitive.ObjectID{docs.ID}, u)
	if err != nil {
		t.Fatalf("bulk trash: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows trashed (folder + descendant), got %d", n)
	}
	for _, id := range []primitive.ObjectID{docs.ID, nested.ID} {
		node, _ := fx.store.GetFile(ctx, id)
		if !node.IsTrashed {
			t.Errorf("expected %s trashed", node.Name)
		}
	}

	n, err = fx.drive.BulkRestore(ctx, []primitive.ObjectID{docs.ID}, u)
	if err != nil {
		t.Fatalf("bulk restore: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows restored, got %d", n)
	}
}

func TestListChildrenFiltersByViewGrant(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	owner := principal()
	viewer := principal()

	root, _ := fx.drive.EnsureUserRoot(ctx, owner)
	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, owner)
	fx.drive.CreateFolder(ctx, "Private", nil, owner)

	// viewer may see the root and Docs, nothing else
	if _, err := fx.drive.AssignPermission(ctx, root.ID, viewer.ID, models.PermissionView); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := fx.drive.AssignPermission(ctx, docs.ID, viewer.ID, models.PermissionView); err != nil {
		t.Fatalf("assign: %v", err)
	}

	listing, err := fx.drive.ListChildren(ctx, &root.ID, viewer)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(listing.Folders) != 1 || listing.Folders[0].ID != docs.ID {
		t.Errorf("expected only Docs visible, got %d folders", len(listing.Folders))
	}
}

func TestGetDownloadURL(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	owner := principal()
	stranger := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, owner)
	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("hi")}
	file, _ := fx.drive.UploadFile(ctx, &docs.ID, blob, owner)

	if _, err := fx.drive.GetDownloadURL(ctx, file.ID, stranger); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("expected permission denied, got %v", err)
	}

	dlURL, err := fx.drive.GetDownloadURL(ctx, file.ID, owner)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if dlURL == "" {
		t.Error("expected a fresh download url")
	}
}

func TestStarredListing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	docs, _ := fx.drive.CreateFolder(ctx, "Docs", nil, u)
	if err := fx.drive.Star(ctx, docs.ID, u); err != nil {
		t.Fatalf("star: %v", err)
	}

	starred, err := fx.drive.ListStarred(ctx, u)
	if err != nil {
		t.Fatalf("list starred: %v", err)
	}
	if len(starred) != 1 || starred[0].ID != docs.ID {
		t.Errorf("unexpected starred listing: %v", starred)
	}

	if err := fx.drive.Unstar(ctx, docs.ID, u); err != nil {
		t.Fatalf("unstar: %v", err)
	}
	starred, _ = fx.drive.ListStarred(ctx, u)
	if len(starred) != 0 {
		t.Error("expected empty starred listing after unstar")
	}
}

// Full walkthrough: root, folder, upload, trash cascade, listings.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	u := principal()

	root, err := fx.drive.EnsureUserRoot(ctx, u)
	if err != nil {
		t.Fatalf("ensure root: %v", err)
	}

	docs, err := fx.drive.CreateFolder(ctx, "Docs", &root.ID, u)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if docs.ParentID == nil || *docs.ParentID != root.ID {
		t.Fatal("expected Docs under root")
	}

	blob := &testBlob{name: "a.txt", mime: "text/plain", data: []byte("0123456789")}
	file, err := fx.drive.UploadFile(ctx, &docs.ID, blob, u)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.Size != 10 {
		t.Errorf("expected size 10, got %d", file.Size)
	}

	if err := fx.drive.Trash(ctx, docs.ID, u); err != nil {
		t.Fatalf("trash: %v", err)
	}

	// the file trashes with its folder
	trashedFile, _ := fx.store.GetFile(ctx, file.ID)
	if !trashedFile.IsTrashed {
		t.Error("expected nested file trashed with its folder")
	}

	listing, err := fx.drive.ListChildren(ctx, &root.ID, u)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(listing.Folders) != 0 || len(listing.Files) != 0 {
		t.Error("expected empty listing after trash")
	}

	trash, err := fx.drive.ListTrashed(ctx, u)
	if err != nil {
		t.Fatalf("list trashed: %v", err)
	}
	if len(trash) != 1 || trash[0].ID != docs.ID {
		t.Errorf("expected only the trashed folder surfaced, got %d nodes", len(trash))
	}
}
