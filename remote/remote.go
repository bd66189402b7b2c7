package remote

import (
	"context"
	"io"
)

// Item is a provider-side file or folder as the gateway reports it.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Folder      bool   `json:"folder"`
	Size        int64  `json:"size"`
	ParentID    string `json:"parent_id,omitempty"`
	WebURL      string `json:"web_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ChangePage is one page of the provider's delta feed. NextCursor resumes
// the feed after everything in this page has been applied.
type ChangePage struct {
	Items      []Item
	DeletedIDs []string
	NextCursor string
}

// Quota is the provider-side storage allowance.
type Quota struct {
	Total     int64  `json:"total"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	State     string `json:"state"`
}

// Storage is the capability set the reconciliation layer needs from a
// cloud drive provider. Implementations surface transient versus
// permanent failures but do not retry; retry policy belongs to the
// caller.
type Storage interface {
	// CreateFolder is idempotent: if a folder with the same name already
	// exists directly under the parent, the existing item is returned.
	CreateFolder(ctx context.Context, name, parentID string) (*Item, error)
	UploadContent(ctx context.Context, name string, content io.Reader, parentID string) (*Item, error)
	Rename(ctx context.Context, remoteID, newName string) (*Item, error)
	Move(ctx context.Context, remoteID, newParentID string) (*Item, error)
	Delete(ctx context.Context, remoteID string) error
	// GetDownloadURL returns a short-lived URL. Callers must not cache it.
	GetDownloadURL(ctx context.Context, remoteID string) (string, error)
	// FetchChanges walks the delta feed. An empty cursor means a full
	// initial snapshot.
	FetchChanges(ctx context.Context, cursor string) (*ChangePage, error)
	GetQuota(ctx context.Context) (*Quota, error)
}
