package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
	"codrive/store"
)

// Sink writes audit history and per-user notifications. History writes
// are part of the calling operation's contract; notifications are a side
// channel and never propagate failures back.
type Sink struct {
	store store.Store
}

func NewSink(st store.Store) *Sink {
	return &Sink{store: st}
}

// RecordAction appends a history entry for the action. A repeat of the
// same (file, user, action) within the same calendar day refreshes the
// existing row instead of inserting a second one.
func (s *Sink) RecordAction(ctx context.Context, fileID, userID primitive.ObjectID, action string, metadata map[string]interface{}) error {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	existing, err := s.store.GetHistorySince(ctx, fileID, userID, action, dayStart)
	if err == nil {
		return s.store.TouchHistory(ctx, existing.ID, metadata, now)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up history: %v", err)
	}

	return s.store.InsertHistory(ctx, &models.FileHistory{
		FileID:   fileID,
		UserID:   userID,
		Action:   action,
		Metadata: metadata,
	})
}

// Notify drops a notification into the user's inbox. Failures are logged
// and swallowed.
func (s *Sink) Notify(ctx context.Context, userID primitive.ObjectID, action string, node *models.File) {
	if node == nil {
		return
	}
	n := &models.Notification{
		UserID: userID,
		Action: action,
		File: models.NotificationFile{
			ID:   node.ID,
			Name: node.Name,
		},
		Message: fmt.Sprintf("File %s was %s", node.Name, pastTense(action)),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID.Hex(),
			"file_id": node.ID.Hex(),
			"action":  action,
		}).Warn("Failed to deliver notification")
	}
}

// History returns the most recent entries for a user, newest first,
// optionally filtered by action.
func (s *Sink) History(ctx context.Context, userID primitive.ObjectID, action string, limit int) ([]models.FileHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.RecentHistory(ctx, userID, action, limit)
}

// Inbox returns the user's notifications, newest first.
func (s *Sink) Inbox(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.NotificationsForUser(ctx, userID, limit)
}

// MarkRead marks one notification as read for the given user.
func (s *Sink) MarkRead(ctx context.Context, id, userID primitive.ObjectID) error {
	return s.store.MarkNotificationRead(ctx, id, userID)
}

func pastTense(action string) string {
	switch action {
	case models.HistoryCreateFolder:
		return "created"
	case models.HistoryUpload:
		return "uploaded"
	case models.HistoryTrash:
		return "moved to trash"
	case models.HistoryRestore:
		return "restored"
	case models.HistoryDelete:
		return "deleted"
	case models.HistoryMove:
		return "moved"
	case models.HistoryRename:
		return "renamed"
	case models.HistorySync:
		return "synced"
	default:
		return action
	}
}
