package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codrive/models"
)

// fakeGraph is a minimal Graph API double backed by httptest.
type fakeGraph struct {
	mux         *http.ServeMux
	server      *httptest.Server
	tokenCalls  int
	createCalls int
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	f := &fakeGraph{mux: http.NewServeMux()}
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	f.mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	return f
}

func (f *fakeGraph) client() *GraphClient {
	return NewGraphClient(GraphConfig{
		TenantID:     "tenant-1",
		ClientID:     "client",
		ClientSecret: "secret",
		DriveUser:    "files@example.com",
		BaseURL:      f.server.URL,
		LoginURL:     f.server.URL,
	})
}

func TestGraphTokenCached(t *testing.T) {
	f := newFakeGraph(t)
	f.mux.HandleFunc("/users/files@example.com/drive", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"quota": map[string]interface{}{"total": 100, "used": 40, "remaining": 60, "state": "normal"},
		})
	})

	c := f.client()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.GetQuota(ctx); err != nil {
			t.Fatalf("quota: %v", err)
		}
	}
	if f.tokenCalls != 1 {
		t.Errorf("expected 1 token exchange, got %d", f.tokenCalls)
	}
}

func TestGraphCreateFolderIdempotent(t *testing.T) {
	f := newFakeGraph(t)
	f.mux.HandleFunc("/users/files@example.com/drive/items/parent-1/children", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []map[string]interface{}{
					{"id": "existing-1", "name": "Docs", "folder": map[string]interface{}{}},
					{"id": "file-1", "name": "a.txt", "size": 10},
				},
			})
		case http.MethodPost:
			f.createCalls++
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": "new-1", "name": body["name"], "folder": map[string]interface{}{},
			})
		}
	})

	c := f.client()
	ctx := context.Background()

	item, err := c.CreateFolder(ctx, "docs", "parent-1")
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if item.ID != "existing-1" {
		t.Errorf("expected existing folder returned, got %q", item.ID)
	}
	if f.createCalls != 0 {
		t.Error("expected no create call when folder exists")
	}

	item, err = c.CreateFolder(ctx, "Photos", "parent-1")
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if item.ID != "new-1" || !item.Folder {
		t.Errorf("unexpected created item %+v", item)
	}
	if f.createCalls != 1 {
		t.Errorf("expected 1 create call, got %d", f.createCalls)
	}
}

func TestGraphErrorClassification(t *testing.T) {
	f := newFakeGraph(t)
	f.mux.HandleFunc("/users/files@example.com/drive/items/throttled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": "activityLimitReached", "message": "throttled"},
		})
	})
	f.mux.HandleFunc("/users/files@example.com/drive/items/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": "itemNotFound", "message": "not found"},
		})
	})

	c := f.client()
	ctx := context.Background()

	err := c.Delete(ctx, "throttled")
	if err == nil {
		t.Fatal("expected throttle error")
	}
	if !models.IsRemoteTransient(err) {
		t.Error("expected 429 classified as transient")
	}

	err = c.Delete(ctx, "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if models.IsRemoteTransient(err) {
		t.Error("expected 404 classified as permanent")
	}
	if !strings.Contains(err.Error(), "itemNotFound") {
		t.Errorf("expected provider code in error, got %v", err)
	}
}

func TestGraphFetchChangesPagination(t *testing.T) {
	f := newFakeGraph(t)
	f.mux.HandleFunc("/users/files@example.com/drive/root/delta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "item-1", "name": "a.txt", "size": 5, "parentReference": map[string]string{"id": "root-1"}},
			},
			"@odata.nextLink": f.server.URL + "/delta-page-2",
		})
	})
	f.mux.HandleFunc("/delta-page-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "folder-1", "name": "Docs", "folder": map[string]interface{}{}, "parentReference": map[string]string{"id": "root-1"}},
				{"id": "gone-1", "name": "old.txt", "deleted": map[string]interface{}{}},
			},
			"@odata.deltaLink": f.server.URL + "/delta-final",
		})
	})

	c := f.client()
	page, err := c.FetchChanges(context.Background(), "")
	if err != nil {
		t.Fatalf("fetch changes: %v", err)
	}

	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items across pages, got %d", len(page.Items))
	}
	if page.Items[0].ID != "item-1" || page.Items[1].ID != "folder-1" {
		t.Errorf("unexpected items %+v", page.Items)
	}
	if !page.Items[1].Folder {
		t.Error("expected folder facet mapped")
	}
	if len(page.DeletedIDs) != 1 || page.DeletedIDs[0] != "gone-1" {
		t.Errorf("unexpected deletions %v", page.DeletedIDs)
	}
	if page.NextCursor != f.server.URL+"/delta-final" {
		t.Errorf("expected delta link as next cursor, got %q", page.NextCursor)
	}
}

func TestGraphFetchChangesResumesFromCursor(t *testing.T) {
	f := newFakeGraph(t)
	hit := false
	f.mux.HandleFunc("/delta-resume", func(w http.ResponseWriter, r *http.Request) {
		hit = true
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value":            []map[string]interface{}{},
			"@odata.deltaLink": f.server.URL + "/delta-resume",
		})
	})

	c := f.client()
	page, err := c.FetchChanges(context.Background(), f.server.URL+"/delta-resume")
	if err != nil {
		t.Fatalf("fetch changes: %v", err)
	}
	if !hit {
		t.Fatal("expected cursor URL to be called directly")
	}
	if len(page.Items) != 0 || page.NextCursor == "" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestGraphUpload(t *testing.T) {
	f := newFakeGraph(t)
	f.mux.HandleFunc("/users/files@example.com/drive/items/parent-1:/a.txt:/content", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		body := make([]byte, 16)
		n, _ := r.Body.Read(body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":   "file-9",
			"name": "a.txt",
			"size": n,
			"@microsoft.graph.downloadUrl": "https://dl.example.com/file-9",
		})
	})

	c := f.client()
	item, err := c.UploadContent(context.Background(), "a.txt", strings.NewReader("hello"), "parent-1")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if item.ID != "file-9" || item.Size != 5 || item.DownloadURL == "" {
		t.Errorf("unexpected item %+v", item)
	}
}
