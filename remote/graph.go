package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"codrive/models"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	defaultLoginBaseURL = "https://login.microsoftonline.com"
)

// GraphConfig holds the app-only credentials for a Microsoft Graph drive.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// DriveUser is the user principal whose OneDrive the application
	// mirrors into.
	DriveUser string
	// BaseURL and LoginURL override the Graph endpoints, mainly for
	// tests.
	BaseURL  string
	LoginURL string
}

// GraphClient implements Storage against the Microsoft Graph OneDrive
// API using the client-credentials flow. Safe for concurrent use.
type GraphClient struct {
	cfg        GraphConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGraphClient(cfg GraphConfig) *GraphClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginBaseURL
	}
	return &GraphClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// graphItem is the subset of a Graph driveItem the gateway reads.
type graphItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	WebURL          string `json:"webUrl"`
	DownloadURL     string `json:"@microsoft.graph.downloadUrl"`
	Folder          *struct{} `json:"folder"`
	Deleted         *struct{} `json:"deleted"`
	ParentReference *struct {
		ID string `json:"id"`
	} `json:"parentReference"`
}

func (g graphItem) toItem() Item {
	item := Item{
		ID:          g.ID,
		Name:        g.Name,
		Size:        g.Size,
		WebURL:      g.WebURL,
		DownloadURL: g.DownloadURL,
		Folder:      g.Folder != nil,
	}
	if g.ParentReference != nil {
		item.ParentID = g.ParentReference.ID
	}
	return item
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// token returns a cached access token, refreshing it through the
// client-credentials grant when missing or near expiry.
func (c *GraphClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.LoginURL, c.cfg.TenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.RemoteError{Op: "authenticate", Code: "network", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &models.RemoteError{
			Op:        "authenticate",
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Transient: resp.StatusCode >= 500,
			Err:       fmt.Errorf("token request failed: %s", body),
		}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %v", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *GraphClient) drivePath() string {
	return fmt.Sprintf("%s/users/%s/drive", c.cfg.BaseURL, url.PathEscape(c.cfg.DriveUser))
}

// do issues an authenticated request and decodes the JSON response into
// out (when non-nil). Non-2xx statuses become RemoteErrors classified as
// transient or permanent.
func (c *GraphClient) do(ctx context.Context, op, method, reqURL string, body io.Reader, contentType string, out interface{}) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.RemoteError{Op: op, Code: "network", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ge graphError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		_ = json.Unmarshal(raw, &ge)
		code := ge.Error.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return &models.RemoteError{
			Op:        op,
			Code:      code,
			Transient: transient,
			Err:       fmt.Errorf("%s %s returned %d: %s", method, reqURL, resp.StatusCode, ge.Error.Message),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %v", op, err)
	}
	return nil
}

func (c *GraphClient) childrenURL(parentID string) string {
	if parentID == "" {
		return c.drivePath() + "/root/children"
	}
	return fmt.Sprintf("%s/items/%s/children", c.drivePath(), url.PathEscape(parentID))
}

// CreateFolder checks for an existing folder of the same name under the
// parent before creating, so a retried call cannot duplicate it.
func (c *GraphClient) CreateFolder(ctx context.Context, name, parentID string) (*Item, error) {
	var listing struct {
		Value []graphItem `json:"value"`
	}
	if err := c.do(ctx, "create_folder", http.MethodGet, c.childrenURL(parentID), nil, "", &listing); err != nil {
		return nil, err
	}
	for _, g := range listing.Value {
		if g.Folder != nil && strings.EqualFold(g.Name, name) {
			item := g.toItem()
			return &item, nil
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"name":   name,
		"folder": map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	if err != nil {
		return nil, err
	}

	var created graphItem
	if err := c.do(ctx, "create_folder", http.MethodPost, c.childrenURL(parentID), bytes.NewReader(payload), "application/json", &created); err != nil {
		return nil, err
	}
	item := created.toItem()
	return &item, nil
}

// UploadContent puts the blob under the parent as a new drive item.
func (c *GraphClient) UploadContent(ctx context.Context, name string, content io.Reader, parentID string) (*Item, error) {
	var uploadURL string
	if parentID == "" {
		uploadURL = fmt.Sprintf("%s/root:/%s:/content", c.drivePath(), url.PathEscape(name))
	} else {
		uploadURL = fmt.Sprintf("%s/items/%s:/%s:/content", c.drivePath(), url.PathEscape(parentID), url.PathEscape(name))
	}

	var uploaded graphItem
	if err := c.do(ctx, "upload", http.MethodPut, uploadURL, content, "application/octet-stream", &uploaded); err != nil {
		return nil, err
	}
	item := uploaded.toItem()
	return &item, nil
}

func (c *GraphClient) patchItem(ctx context.Context, op, remoteID string, patch map[string]interface{}) (*Item, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	itemURL := fmt.Sprintf("%s/items/%s", c.drivePath(), url.PathEscape(remoteID))

	var updated graphItem
	if err := c.do(ctx, op, http.MethodPatch, itemURL, bytes.NewReader(payload), "application/json", &updated); err != nil {
		return nil, err
	}
	item := updated.toItem()
	return &item, nil
}

func (c *GraphClient) Rename(ctx context.Context, remoteID, newName string) (*Item, error) {
	return c.patchItem(ctx, "rename", remoteID, map[string]interface{}{"name": newName})
}

func (c *GraphClient) Move(ctx context.Context, remoteID, newParentID string) (*Item, error) {
	return c.patchItem(ctx, "move", remoteID, map[string]interface{}{
		"parentReference": map[string]string{"id": newParentID},
	})
}

func (c *GraphClient) Delete(ctx context.Context, remoteID string) error {
	itemURL := fmt.Sprintf("%s/items/%s", c.drivePath(), url.PathEscape(remoteID))
	return c.do(ctx, "delete", http.MethodDelete, itemURL, nil, "", nil)
}

// GetDownloadURL fetches a fresh pre-authenticated URL. Graph URLs expire
// within about an hour.
func (c *GraphClient) GetDownloadURL(ctx context.Context, remoteID string) (string, error) {
	itemURL := fmt.Sprintf("%s/items/%s", c.drivePath(), url.PathEscape(remoteID))

	var item graphItem
	if err := c.do(ctx, "get_download_url", http.MethodGet, itemURL, nil, "", &item); err != nil {
		return "", err
	}
	return item.DownloadURL, nil
}

// FetchChanges walks the drive's delta feed. The cursor is the deltaLink
// or nextLink from a previous page; empty starts a full snapshot. All
// nextLink pages are drained so the returned cursor is always a
// deltaLink.
func (c *GraphClient) FetchChanges(ctx context.Context, cursor string) (*ChangePage, error) {
	reqURL := cursor
	if reqURL == "" {
		reqURL = c.drivePath() + "/root/delta"
	}

	page := &ChangePage{}
	for reqURL != "" {
		var delta struct {
			Value     []graphItem `json:"value"`
			NextLink  string      `json:"@odata.nextLink"`
			DeltaLink string      `json:"@odata.deltaLink"`
		}
		if err := c.do(ctx, "fetch_changes", http.MethodGet, reqURL, nil, "", &delta); err != nil {
			return nil, err
		}

		for _, g := range delta.Value {
			if g.Deleted != nil {
				page.DeletedIDs = append(page.DeletedIDs, g.ID)
				continue
			}
			if g.Name == "root" && g.ParentReference != nil && g.ParentReference.ID == "" {
				continue
			}
			page.Items = append(page.Items, g.toItem())
		}

		if delta.DeltaLink != "" {
			page.NextCursor = delta.DeltaLink
		}
		reqURL = delta.NextLink
	}
	return page, nil
}

func (c *GraphClient) GetQuota(ctx context.Context) (*Quota, error) {
	var drive struct {
		Quota struct {
			Total     int64  `json:"total"`
			Used      int64  `json:"used"`
			Remaining int64  `json:"remaining"`
			State     string `json:"state"`
		} `json:"quota"`
	}
	if err := c.do(ctx, "get_quota", http.MethodGet, c.drivePath(), nil, "", &drive); err != nil {
		return nil, err
	}
	return &Quota{
		Total:     drive.Quota.Total,
		Used:      drive.Quota.Used,
		Remaining: drive.Quota.Remaining,
		State:     drive.Quota.State,
	}, nil
}
