package tree

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/models"
	"codrive/store"
)

// Sink receives the audit and notification side effects emitted while a
// cascade walks a subtree. Notify is best-effort and must not fail the
// walk; RecordAction failures do abort, since history is part of the
// delete contract.
type Sink interface {
	RecordAction(ctx context.Context, fileID, userID primitive.ObjectID, action string, metadata map[string]interface{}) error
	Notify(ctx context.Context, userID primitive.ObjectID, action string, node *models.File)
}

// Walker runs the cascading mutations over the node hierarchy. Every
// higher-level trash, restore and delete operation goes through here.
// Subtrees are walked generation by generation with bulk child queries,
// never by per-node call recursion, so depth is bounded by memory and
// not by the goroutine stack.
type Walker struct {
	store store.Store
	sink  Sink
}

func NewWalker(st store.Store, sink Sink) *Walker {
	return &Walker{store: st, sink: sink}
}

// levels loads node plus its descendants one generation at a time and
// returns them grouped by depth, node first. With includeTrashed false,
// trashed children are dropped and their subtrees never expanded.
func (w *Walker) levels(ctx context.Context, node *models.File, includeTrashed bool) ([][]models.File, error) {
	out := [][]models.File{{*node}}
	frontier := []primitive.ObjectID{node.ID}

	for len(frontier) > 0 {
		childIDs, err := w.store.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate children: %v", err)
		}
		if len(childIDs) == 0 {
			break
		}
		children, err := w.store.FilesByIDs(ctx, childIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load children: %v", err)
		}

		level := make([]models.File, 0, len(children))
		frontier = frontier[:0]
		for _, c := range children {
			if !includeTrashed && c.IsTrashed {
				continue
			}
			level = append(level, c)
			frontier = append(frontier, c.ID)
		}
		if len(level) == 0 {
			break
		}
		out = append(out, level)
	}
	return out, nil
}

// CascadeTrash marks node and every descendant as trashed. Deeper
// generations are flipped before their parents, and each node's
// notification fires before its own flag flips.
func (w *Walker) CascadeTrash(ctx context.Context, node *models.File, actor primitive.ObjectID) error {
	levels, err := w.levels(ctx, node, false)
	if err != nil {
		return err
	}

	for i := len(levels) - 1; i >= 0; i-- {
		ids := make([]primitive.ObjectID, 0, len(levels[i]))
		for j := range levels[i] {
			w.sink.Notify(ctx, actor, models.HistoryTrash, &levels[i][j])
			ids = append(ids, levels[i][j].ID)
		}
		if _, err := w.store.SetTrashed(ctx, ids, true); err != nil {
			return fmt.Errorf("failed to trash subtree of %s: %v", node.ID.Hex(), err)
		}
	}
	return nil
}

// CascadeRestore clears the trashed flag on node and every descendant.
// Parents flip before their children, and each node's notification
// fires right after its own flip.
func (w *Walker) CascadeRestore(ctx context.Context, node *models.File, actor primitive.ObjectID) error {
	levels, err := w.levels(ctx, node, true)
	if err != nil {
		return err
	}

	for _, level := range levels {
		ids := make([]primitive.ObjectID, 0, len(level))
		for j := range level {
			ids = append(ids, level[j].ID)
		}
		if _, err := w.store.SetTrashed(ctx, ids, false); err != nil {
			return fmt.Errorf("failed to restore subtree of %s: %v", node.ID.Hex(), err)
		}
		for j := range level {
			w.sink.Notify(ctx, actor, models.HistoryRestore, &level[j])
		}
	}
	return nil
}

// CascadeHardDelete removes node and its whole subtree, with grants and
// a history entry per removed row, inside one transaction. A failure
// anywhere leaves the pre-operation state intact.
func (w *Walker) CascadeHardDelete(ctx context.Context, node *models.File, actor primitive.ObjectID) error {
	return w.store.WithTransaction(ctx, func(txCtx context.Context) error {
		return w.hardDelete(txCtx, node, actor)
	})
}

func (w *Walker) hardDelete(ctx context.Context, node *models.File, actor primitive.ObjectID) error {
	levels, err := w.levels(ctx, node, true)
	if err != nil {
		return err
	}

	for i := len(levels) - 1; i >= 0; i-- {
		for j := range levels[i] {
			n := &levels[i][j]
			if err := w.store.DeleteGrantsForFile(ctx, n.ID); err != nil {
				return err
			}
			if err := w.sink.RecordAction(ctx, n.ID, actor, models.HistoryDelete, map[string]interface{}{
				"name": n.Name,
			}); err != nil {
				return err
			}
			w.sink.Notify(ctx, actor, models.HistoryDelete, n)

			if err := w.store.DeleteFile(ctx, n.ID); err != nil {
				return fmt.Errorf("failed to delete %s: %v", n.ID.Hex(), err)
			}
		}
	}
	return nil
}

// DescendantIDs returns ids unioned with every transitive child id. The
// walk reuses the same frontier strategy as the cascades, one query per
// generation, and is the closure step behind the bulk flag operations.
func (w *Walker) DescendantIDs(ctx context.Context, ids []primitive.ObjectID) ([]primitive.ObjectID, error) {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	all := make([]primitive.ObjectID, 0, len(ids))
	frontier := make([]primitive.ObjectID, 0, len(ids))

	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			all = append(all, id)
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		next, err := w.store.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate descendants: %v", err)
		}
		frontier = frontier[:0]
		for _, id := range next {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
				frontier = append(frontier, id)
			}
		}
	}
	return all, nil
}
