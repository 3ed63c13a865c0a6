package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ykarpov/inboxflow/app/repository"
)

// LoadMoreTask appends the next page of older items to the tail. Tail items
// are never pruned by later head refreshes.
type LoadMoreTask struct {
	Task
	source  MailSource
	workset *repository.Repository
}

func NewLoadMoreTask(source MailSource, workset *repository.Repository) *LoadMoreTask {
	return &LoadMoreTask{
		Task:    NewTask(TaskTypeLoadMore),
		source:  source,
		workset: workset,
	}
}

func (t *LoadMoreTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	token := t.workset.Cursor()
	if token == "" {
		slog.Debug("No further pages available", "type", "LoadMore")
		return nil
	}

	page, err := t.source.FetchIDs(ctx, token)
	if err != nil {
		slog.Error("Task failed", "type", "LoadMore", "error", err)
		return fmt.Errorf("failed to fetch message ids: %w", err)
	}

	items, err := t.source.FetchByIDs(ctx, page.IDs)
	if err != nil {
		slog.Error("Task failed", "type", "LoadMore", "error", err)
		return fmt.Errorf("failed to fetch message bodies: %w", err)
	}

	t.workset.AppendPage(items)
	t.workset.AdvanceCursor(page.NextPageToken)

	slog.Info("Task completed",
		"type", "LoadMore",
		"duration", t.GetDuration(),
		"appended", len(items))

	return nil
}
