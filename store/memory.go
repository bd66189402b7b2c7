package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the MongoStore semantics, including transaction rollback.
type MemoryStore struct {
	mu sync.Mutex

	files         map[primitive.ObjectID]models.File
	grants        map[primitive.ObjectID]models.FilePermission
	history       map[primitive.ObjectID]models.FileHistory
	notifications map[primitive.ObjectID]models.Notification
	stars         map[primitive.ObjectID]models.Star
	syncState     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:         make(map[primitive.ObjectID]models.File),
		grants:        make(map[primitive.ObjectID]models.FilePermission),
		history:       make(map[primitive.ObjectID]models.FileHistory),
		notifications: make(map[primitive.ObjectID]models.Notification),
		stars:         make(map[primitive.ObjectID]models.Star),
		syncState:     make(map[string]string),
	}
}

// lock takes the store mutex unless the caller already holds it through
// an enclosing WithTransaction.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if InTransaction(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) InsertFile(ctx context.Context, f *models.File) error {
	defer s.lock(ctx)()

	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	s.files[f.ID] = cloneFile(*f)
	return nil
}

func (s *MemoryStore) UpsertFileByRemoteID(ctx context.Context, f *models.File) (*models.File, error) {
	defer s.lock(ctx)()

	now := time.Now()
	for id, existing := range s.files {
		if existing.RemoteID != f.RemoteID {
			continue
		}
		existing.Name = f.Name
		existing.Kind = f.Kind
		existing.Path = f.Path
		existing.Size = f.Size
		existing.StorageType = f.StorageType
		existing.IsTrashed = f.IsTrashed
		if f.ParentID != nil {
			pid := *f.ParentID
			existing.ParentID = &pid
		}
		if f.WebURL != "" {
			existing.WebURL = f.WebURL
		}
		if f.DownloadURL != "" {
			existing.DownloadURL = f.DownloadURL
		}
		existing.UpdatedAt = now
		s.files[id] = existing
		out := cloneFile(existing)
		return &out, nil
	}

	inserted := cloneFile(*f)
	inserted.ID = primitive.NewObjectID()
	inserted.CreatedAt = now
	inserted.UpdatedAt = now
	s.files[inserted.ID] = inserted
	out := cloneFile(inserted)
	return &out, nil
}

func (s *MemoryStore) GetFile(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	defer s.lock(ctx)()

	f, ok := s.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := cloneFile(f)
	return &out, nil
}

func (s *MemoryStore) GetFileByRemoteID(ctx context.Context, remoteID string) (*models.File, error) {
	defer s.lock(ctx)()

	for _, f := range s.files {
		if f.RemoteID == remoteID {
			out := cloneFile(f)
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) GetRootFolder(ctx context.Context, ownerID primitive.ObjectID) (*models.File, error) {
	defer s.lock(ctx)()

	for _, f := range s.files {
		if f.UserID == ownerID && f.ParentID == nil && f.Kind == models.KindFolder {
			out := cloneFile(f)
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) UpdateFile(ctx context.Context, id primitive.ObjectID, upd models.FileUpdate) error {
	defer s.lock(ctx)()

	f, ok := s.files[id]
	if !ok {
		return models.ErrNotFound
	}
	if upd.Name != nil {
		f.Name = *upd.Name
	}
	if upd.Path != nil {
		f.Path = *upd.Path
	}
	if upd.Size != nil {
		f.Size = *upd.Size
	}
	if upd.WebURL != nil {
		f.WebURL = *upd.WebURL
	}
	if upd.DownloadURL != nil {
		f.DownloadURL = *upd.DownloadURL
	}
	if upd.ParentID != nil {
		if *upd.ParentID != nil {
			pid := **upd.ParentID
			f.ParentID = &pid
		} else {
			f.ParentID = nil
		}
	}
	f.UpdatedAt = time.Now()
	s.files[id] = f
	return nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, id primitive.ObjectID) error {
	defer s.lock(ctx)()

	if _, ok := s.files[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *MemoryStore) FilesByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.File, error) {
	defer s.lock(ctx)()

	var files []models.File
	for _, id := range ids {
		if f, ok := s.files[id]; ok {
			files = append(files, cloneFile(f))
		}
	}
	return files, nil
}

func (s *MemoryStore) Children(ctx context.Context, parentID primitive.ObjectID, includeTrashed bool) ([]models.File, error) {
	defer s.lock(ctx)()

	var children []models.File
	for _, f := range s.files {
		if f.ParentID == nil || *f.ParentID != parentID {
			continue
		}
		if !includeTrashed && f.IsTrashed {
			continue
		}
		children = append(children, cloneFile(f))
	}
	sort.Slice(children, func(i, j int) bool {
		return strings.ToLower(children[i].Name) < strings.ToLower(children[j].Name)
	})
	return children, nil
}

func (s *MemoryStore) ChildIDs(ctx context.Context, parentIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	defer s.lock(ctx)()

	parents := make(map[primitive.ObjectID]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}

	var ids []primitive.ObjectID
	for _, f := range s.files {
		if f.ParentID != nil && parents[*f.ParentID] {
			ids = append(ids, f.ID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) SetTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool) (int64, error) {
	defer s.lock(ctx)()

	var n int64
	now := time.Now()
	for _, id := range ids {
		f, ok := s.files[id]
		if !ok || f.IsTrashed == trashed {
			continue
		}
		f.IsTrashed = trashed
		f.UpdatedAt = now
		s.files[id] = f
		n++
	}
	return n, nil
}

func (s *MemoryStore) SetTrashedOwned(ctx context.Context, ids []primitive.ObjectID, ownerID primitive.ObjectID, trashed bool) (int64, error) {
	defer s.lock(ctx)()

	var n int64
	now := time.Now()
	for _, id := range ids {
		f, ok := s.files[id]
		if !ok || f.UserID != ownerID || f.IsTrashed == trashed {
			continue
		}
		f.IsTrashed = trashed
		f.UpdatedAt = now
		s.files[id] = f
		n++
	}
	return n, nil
}

func (s *MemoryStore) TrashedRoots(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	defer s.lock(ctx)()

	var roots []models.File
	for _, f := range s.files {
		if f.UserID != ownerID || !f.IsTrashed {
			continue
		}
		if f.ParentID != nil {
			if parent, ok := s.files[*f.ParentID]; ok && parent.IsTrashed {
				continue
			}
		}
		roots = append(roots, cloneFile(f))
	}
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].UpdatedAt.After(roots[j].UpdatedAt)
	})
	return roots, nil
}

func (s *MemoryStore) UpsertGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error) {
	defer s.lock(ctx)()

	now := time.Now()
	for id, g := range s.grants {
		if g.FileID == fileID && g.UserID == userID && g.Permission == perm {
			g.UpdatedAt = now
			s.grants[id] = g
			out := g
			return &out, nil
		}
	}
	g := models.FilePermission{
		ID:         primitive.NewObjectID(),
		FileID:     fileID,
		UserID:     userID,
		Permission: perm,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.grants[g.ID] = g
	out := g
	return &out, nil
}

func (s *MemoryStore) DeleteGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (bool, error) {
	defer s.lock(ctx)()

	for id, g := range s.grants {
		if g.FileID == fileID && g.UserID == userID && g.Permission == perm {
			delete(s.grants, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error) {
	defer s.lock(ctx)()

	for _, g := range s.grants {
		if g.FileID == fileID && g.UserID == userID && g.Permission == perm {
			out := g
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) GrantsForFile(ctx context.Context, fileID primitive.ObjectID) ([]models.FilePermission, error) {
	defer s.lock(ctx)()

	var perms []models.FilePermission
	for _, g := range s.grants {
		if g.FileID == fileID {
			perms = append(perms, g)
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].CreatedAt.Before(perms[j].CreatedAt)
	})
	return perms, nil
}

func (s *MemoryStore) GrantsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.FilePermission, error) {
	defer s.lock(ctx)()

	var perms []models.FilePermission
	for _, g := range s.grants {
		if g.UserID == userID {
			perms = append(perms, g)
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].CreatedAt.Before(perms[j].CreatedAt)
	})
	return perms, nil
}

func (s *MemoryStore) DeleteGrantsForFile(ctx context.Context, fileID primitive.ObjectID) error {
	defer s.lock(ctx)()

	for id, g := range s.grants {
		if g.FileID == fileID {
			delete(s.grants, id)
		}
	}
	return nil
}

func (s *MemoryStore) GetHistorySince(ctx context.Context, fileID, userID primitive.ObjectID, action string, since time.Time) (*models.FileHistory, error) {
	defer s.lock(ctx)()

	for _, h := range s.history {
		if h.FileID == fileID && h.UserID == userID && h.Action == action && !h.CreatedAt.Before(since) {
			out := cloneHistory(h)
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryStore) InsertHistory(ctx context.Context, h *models.FileHistory) error {
	defer s.lock(ctx)()

	if h.ID.IsZero() {
		h.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	s.history[h.ID] = cloneHistory(*h)
	return nil
}

func (s *MemoryStore) TouchHistory(ctx context.Context, id primitive.ObjectID, metadata map[string]interface{}, at time.Time) error {
	defer s.lock(ctx)()

	h, ok := s.history[id]
	if !ok {
		return models.ErrNotFound
	}
	if metadata != nil {
		h.Metadata = metadata
	}
	h.UpdatedAt = at
	s.history[id] = cloneHistory(h)
	return nil
}

func (s *MemoryStore) RecentHistory(ctx context.Context, userID primitive.ObjectID, action string, limit int) ([]models.FileHistory, error) {
	defer s.lock(ctx)()

	var entries []models.FileHistory
	for _, h := range s.history {
		if h.UserID != userID {
			continue
		}
		if action != "" && h.Action != action {
			continue
		}
		entries = append(entries, cloneHistory(h))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	defer s.lock(ctx)()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *MemoryStore) NotificationsForUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	defer s.lock(ctx)()

	var notifications []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			notifications = append(notifications, n)
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) error {
	defer s.lock(ctx)()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return models.ErrNotFound
	}
	n.IsRead = true
	s.notifications[id] = n
	return nil
}

func (s *MemoryStore) InsertStar(ctx context.Context, fileID, userID primitive.ObjectID) error {
	defer s.lock(ctx)()

	for _, st := range s.stars {
		if st.FileID == fileID && st.UserID == userID {
			return nil
		}
	}
	st := models.Star{
		ID:        primitive.NewObjectID(),
		FileID:    fileID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	s.stars[st.ID] = st
	return nil
}

func (s *MemoryStore) DeleteStar(ctx context.Context, fileID, userID primitive.ObjectID) (bool, error) {
	defer s.lock(ctx)()

	for id, st := range s.stars {
		if st.FileID == fileID && st.UserID == userID {
			delete(s.stars, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) StarsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Star, error) {
	defer s.lock(ctx)()

	var stars []models.Star
	for _, st := range s.stars {
		if st.UserID == userID {
			stars = append(stars, st)
		}
	}
	sort.Slice(stars, func(i, j int) bool {
		return stars[i].CreatedAt.After(stars[j].CreatedAt)
	})
	return stars, nil
}

func (s *MemoryStore) GetSyncState(ctx context.Context, key string) (string, error) {
	defer s.lock(ctx)()
	return s.syncState[key], nil
}

func (s *MemoryStore) SetSyncState(ctx context.Context, key, value string) error {
	defer s.lock(ctx)()
	s.syncState[key] = value
	return nil
}

// WithTransaction holds the mutex for the duration of fn and restores a
// snapshot of every table if fn returns an error. Nested calls join the
// outer transaction.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := copyFiles(s.files)
	grants := copyGrants(s.grants)
	history := copyHistory(s.history)
	notifications := copyNotifications(s.notifications)
	stars := copyStars(s.stars)
	syncState := copySyncState(s.syncState)

	if err := fn(MarkTransaction(ctx)); err != nil {
		s.files = files
		s.grants = grants
		s.history = history
		s.notifications = notifications
		s.stars = stars
		s.syncState = syncState
		return err
	}
	return nil
}

func cloneFile(f models.File) models.File {
	if f.ParentID != nil {
		pid := *f.ParentID
		f.ParentID = &pid
	}
	return f
}

func cloneHistory(h models.FileHistory) models.FileHistory {
	if h.Metadata != nil {
		md := make(map[string]interface{}, len(h.Metadata))
		for k, v := range h.Metadata {
			md[k] = v
		}
		h.Metadata = md
	}
	return h
}

func copyFiles(in map[primitive.ObjectID]models.File) map[primitive.ObjectID]models.File {
	out := make(map[primitive.ObjectID]models.File, len(in))
	for k, v := range in {
		out[k] = cloneFile(v)
	}
	return out
}

func copyGrants(in map[primitive.ObjectID]models.FilePermission) map[primitive.ObjectID]models.FilePermission {
	out := make(map[primitive.ObjectID]models.FilePermission, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyHistory(in map[primitive.ObjectID]models.FileHistory) map[primitive.ObjectID]models.FileHistory {
	out := make(map[primitive.ObjectID]models.FileHistory, len(in))
	for k, v := range in {
		out[k] = cloneHistory(v)
	}
	return out
}

func copyNotifications(in map[primitive.ObjectID]models.Notification) map[primitive.ObjectID]models.Notification {
	out := make(map[primitive.ObjectID]models.Notification, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStars(in map[primitive.ObjectID]models.Star) map[primitive.ObjectID]models.Star {
	out := make(map[primitive.ObjectID]models.Star, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySyncState(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
