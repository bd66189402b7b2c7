package audit

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
	"codrive/store"
)

func TestRecordActionDedupSameDay(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sink := NewSink(st)

	fileID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	if err := sink.RecordAction(ctx, fileID, userID, models.HistoryView, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordAction(ctx, fileID, userID, models.HistoryView, map[string]interface{}{"via": "web"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := sink.History(ctx, userID, models.HistoryView, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected same-day repeat to collapse into 1 entry, got %d", len(entries))
	}
	if entries[0].Metadata["via"] != "web" {
		t.Error("expected refreshed entry to carry the latest metadata")
	}
	if !entries[0].UpdatedAt.After(entries[0].CreatedAt) {
		t.Error("expected refreshed entry to have a later updated_at")
	}
}

func TestRecordActionDistinctActions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sink := NewSink(st)

	fileID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	if err := sink.RecordAction(ctx, fileID, userID, models.HistoryView, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordAction(ctx, fileID, userID, models.HistoryDownload, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := sink.History(ctx, userID, "", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for distinct actions, got %d", len(entries))
	}
}

func TestNotifyAndInbox(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sink := NewSink(st)

	userID := primitive.NewObjectID()
	node := &models.File{
		ID:   primitive.NewObjectID(),
		Name: "report.pdf",
		Kind: models.KindFile,
	}

	sink.Notify(ctx, userID, models.HistoryTrash, node)

	inbox, err := sink.Inbox(ctx, userID, 10)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(inbox))
	}
	n := inbox[0]
	if n.Action != models.HistoryTrash {
		t.Errorf("unexpected action %q", n.Action)
	}
	if n.File.ID != node.ID || n.File.Name != "report.pdf" {
		t.Error("notification file snapshot does not match node")
	}
	if n.IsRead {
		t.Error("expected new notification to be unread")
	}

	if err := sink.MarkRead(ctx, n.ID, userID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	inbox, _ = sink.Inbox(ctx, userID, 10)
	if !inbox[0].IsRead {
		t.Error("expected notification marked read")
	}

	// another user cannot mark it
	if err := sink.MarkRead(ctx, n.ID, primitive.NewObjectID()); err == nil {
		t.Error("expected not-found marking another user's notification")
	}
}
