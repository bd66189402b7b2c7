package store

import (
	"errors"
	"fmt"
	"time"

	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codrive/database"
	"codrive/models"
)

// MongoStore implements Store on top of MongoDB collections.
type MongoStore struct {
	client              *mongo.Client
	fileCollection      *mongo.Collection
	permCollection      *mongo.Collection
	historyCollection   *mongo.Collection
	notifyCollection    *mongo.Collection
	starCollection      *mongo.Collection
	syncStateCollection *mongo.Collection
}

// NewMongoStore creates a store over the global database connection.
func NewMongoStore() *MongoStore {
	return &MongoStore{
		client:              database.GetClient(),
		fileCollection:      database.GetCollection(database.FilesCollection),
		permCollection:      database.GetCollection(database.FilePermissionsCollection),
		historyCollection:   database.GetCollection(database.FileHistoryCollection),
		notifyCollection:    database.GetCollection(database.NotificationsCollection),
		starCollection:      database.GetCollection(database.StarsCollection),
		syncStateCollection: database.GetCollection(database.SyncStateCollection),
	}
}

func (s *MongoStore) InsertFile(ctx context.Context, f *models.File) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	_, err := s.fileCollection.InsertOne(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to insert file: %v", err)
	}
	return nil
}

// UpsertFileByRemoteID inserts or updates a node keyed on its remote id,
// so a sync race cannot produce two local rows for one remote item.
func (s *MongoStore) UpsertFileByRemoteID(ctx context.Context, f *models.File) (*models.File, error) {
	now := time.Now()
	setOnInsert := bson.M{
		"_id":        primitive.NewObjectID(),
		"user_id":    f.UserID,
		"created_at": now,
	}
	set := bson.M{
		"name":         f.Name,
		"kind":         f.Kind,
		"path":         f.Path,
		"size":         f.Size,
		"storage_type": f.StorageType,
		"is_trashed":   f.IsTrashed,
		"updated_at":   now,
	}
	if f.ParentID != nil {
		set["parent_id"] = *f.ParentID
	}
	if f.WebURL != "" {
		set["web_url"] = f.WebURL
	}
	if f.DownloadURL != "" {
		set["download_url"] = f.DownloadURL
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var out models.File
	err := s.fileCollection.FindOneAndUpdate(ctx,
		bson.M{"remote_id": f.RemoteID},
		bson.M{"$set": set, "$setOnInsert": setOnInsert},
		opts,
	).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert file by remote id: %v", err)
	}
	return &out, nil
}

func (s *MongoStore) GetFile(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	var f models.File
	err := s.fileCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *MongoStore) GetFileByRemoteID(ctx context.Context, remoteID string) (*models.File, error) {
	var f models.File
	err := s.fileCollection.FindOne(ctx, bson.M{"remote_id": remoteID}).Decode(&f)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *MongoStore) GetRootFolder(ctx context.Context, ownerID primitive.ObjectID) (*models.File, error) {
	var f models.File
	err := s.fileCollection.FindOne(ctx, bson.M{
		"user_id":   ownerID,
		"parent_id": bson.M{"$exists": false},
		"kind":      models.KindFolder,
	}).Decode(&f)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *MongoStore) UpdateFile(ctx context.Context, id primitive.ObjectID, upd models.FileUpdate) error {
	set := bson.M{"updated_at": time.Now()}
	unset := bson.M{}

	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Path != nil {
		set["path"] = *upd.Path
	}
	if upd.Size != nil {
		set["size"] = *upd.Size
	}
	if upd.WebURL != nil {
		set["web_url"] = *upd.WebURL
	}
	if upd.DownloadURL != nil {
		set["download_url"] = *upd.DownloadURL
	}
	if upd.ParentID != nil {
		if *upd.ParentID != nil {
			set["parent_id"] = **upd.ParentID
		} else {
			unset["parent_id"] = ""
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.fileCollection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update file: %v", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteFile(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.fileCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete file: %v", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *MongoStore) FilesByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.fileCollection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err = cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *MongoStore) Children(ctx context.Context, parentID primitive.ObjectID, includeTrashed bool) ([]models.File, error) {
	filter := bson.M{"parent_id": parentID}
	if !includeTrashed {
		filter["is_trashed"] = false
	}

	cursor, err := s.fileCollection.Find(ctx, filter, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var children []models.File
	if err = cursor.All(ctx, &children); err != nil {
		return nil, err
	}
	return children, nil
}

// ChildIDs returns the ids of all direct children of any node in
// parentIDs, trashed included. Used by the frontier walks.
func (s *MongoStore) ChildIDs(ctx context.Context, parentIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.fileCollection.Find(ctx,
		bson.M{"parent_id": bson.M{"$in": parentIDs}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *MongoStore) SetTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.fileCollection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"is_trashed": trashed, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update trash flag: %v", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) SetTrashedOwned(ctx context.Context, ids []primitive.ObjectID, ownerID primitive.ObjectID, trashed bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.fileCollection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "user_id": ownerID, "is_trashed": !trashed},
		bson.M{"$set": bson.M{"is_trashed": trashed, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update trash flag: %v", err)
	}
	return res.ModifiedCount, nil
}

// TrashedRoots returns trashed nodes owned by ownerID whose parent is
// absent or not itself trashed. Nested trashed descendants are implied by
// their root and excluded.
func (s *MongoStore) TrashedRoots(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	cursor, err := s.fileCollection.Find(ctx,
		bson.M{"user_id": ownerID, "is_trashed": true},
		options.Find().SetSort(bson.M{"updated_at": -1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var trashed []models.File
	if err = cursor.All(ctx, &trashed); err != nil {
		return nil, err
	}

	trashedSet := make(map[primitive.ObjectID]bool, len(trashed))
	for _, f := range trashed {
		trashedSet[f.ID] = true
	}

	var roots []models.File
	for _, f := range trashed {
		if f.ParentID != nil && trashedSet[*f.ParentID] {
			continue
		}
		roots = append(roots, f)
	}
	return roots, nil
}

func (s *MongoStore) UpsertGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error) {
	now := time.Now()
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var out models.FilePermission
	err := s.permCollection.FindOneAndUpdate(ctx,
		bson.M{"file_id": fileID, "user_id": userID, "permission": perm},
		bson.M{
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"_id": primitive.NewObjectID(), "created_at": now},
		},
		opts,
	).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert permission: %v", err)
	}
	return &out, nil
}

func (s *MongoStore) DeleteGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (bool, error) {
	res, err := s.permCollection.DeleteOne(ctx,
		bson.M{"file_id": fileID, "user_id": userID, "permission": perm},
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete permission: %v", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) GetGrant(ctx context.Context, fileID, userID primitive.ObjectID, perm models.Permission) (*models.FilePermission, error) {
	var p models.FilePermission
	err := s.permCollection.FindOne(ctx,
		bson.M{"file_id": fileID, "user_id": userID, "permission": perm},
	).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) GrantsForFile(ctx context.Context, fileID primitive.ObjectID) ([]models.FilePermission, error) {
	cursor, err := s.permCollection.Find(ctx, bson.M{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var perms []models.FilePermission
	if err = cursor.All(ctx, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *MongoStore) GrantsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.FilePermission, error) {
	cursor, err := s.permCollection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var perms []models.FilePermission
	if err = cursor.All(ctx, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *MongoStore) DeleteGrantsForFile(ctx context.Context, fileID primitive.ObjectID) error {
	_, err := s.permCollection.DeleteMany(ctx, bson.M{"file_id": fileID})
	if err != nil {
		return fmt.Errorf("failed to delete permissions for file: %v", err)
	}
	return nil
}

func (s *MongoStore) GetHistorySince(ctx context.Context, fileID, userID primitive.ObjectID, action string, since time.Time) (*models.FileHistory, error) {
	var h models.FileHistory
	err := s.historyCollection.FindOne(ctx, bson.M{
		"file_id":    fileID,
		"user_id":    userID,
		"action":     action,
		"created_at": bson.M{"$gte": since},
	}).Decode(&h)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (s *MongoStore) InsertHistory(ctx context.Context, h *models.FileHistory) error {
	if h.ID.IsZero() {
		h.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	_, err := s.historyCollection.InsertOne(ctx, h)
	if err != nil {
		return fmt.Errorf("failed to insert history: %v", err)
	}
	return nil
}

func (s *MongoStore) TouchHistory(ctx context.Context, id primitive.ObjectID, metadata map[string]interface{}, at time.Time) error {
	set := bson.M{"updated_at": at}
	if metadata != nil {
		set["metadata"] = metadata
	}
	_, err := s.historyCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to touch history: %v", err)
	}
	return nil
}

func (s *MongoStore) RecentHistory(ctx context.Context, userID primitive.ObjectID, action string, limit int) ([]models.FileHistory, error) {
	filter := bson.M{"user_id": userID}
	if action != "" {
		filter["action"] = action
	}

	cursor, err := s.historyCollection.Find(ctx, filter,
		options.Find().
			SetSort(bson.M{"updated_at": -1}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.FileHistory
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *MongoStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.notifyCollection.InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %v", err)
	}
	return nil
}

func (s *MongoStore) NotificationsForUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	cursor, err := s.notifyCollection.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.M{"created_at": -1}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) error {
	res, err := s.notifyCollection.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %v", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *MongoStore) InsertStar(ctx context.Context, fileID, userID primitive.ObjectID) error {
	now := time.Now()
	_, err := s.starCollection.UpdateOne(ctx,
		bson.M{"file_id": fileID, "user_id": userID},
		bson.M{"$setOnInsert": bson.M{"_id": primitive.NewObjectID(), "created_at": now}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to star file: %v", err)
	}
	return nil
}

func (s *MongoStore) DeleteStar(ctx context.Context, fileID, userID primitive.ObjectID) (bool, error) {
	res, err := s.starCollection.DeleteOne(ctx, bson.M{"file_id": fileID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to unstar file: %v", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) StarsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Star, error) {
	cursor, err := s.starCollection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stars []models.Star
	if err = cursor.All(ctx, &stars); err != nil {
		return nil, err
	}
	return stars, nil
}

func (s *MongoStore) GetSyncState(ctx context.Context, key string) (string, error) {
	var row struct {
		Value string `bson:"value"`
	}
	err := s.syncStateCollection.FindOne(ctx, bson.M{"key": key}).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

func (s *MongoStore) SetSyncState(ctx context.Context, key, value string) error {
	_, err := s.syncStateCollection.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to persist sync state: %v", err)
	}
	return nil
}

// WithTransaction runs fn inside a MongoDB session transaction. Nested
// calls join the surrounding transaction instead of starting a new one.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(MarkTransaction(sc))
	})
	return err
}
