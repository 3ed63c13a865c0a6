package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/repository"
)

// SyncMailboxTask refreshes the head window: fetch the first page of ids,
// fetch bodies only for ids not already held, and merge. Held items keep
// their objects and classifications.
type SyncMailboxTask struct {
	Task
	source  MailSource
	workset *repository.Repository
}

func NewSyncMailboxTask(source MailSource, workset *repository.Repository) *SyncMailboxTask {
	return &SyncMailboxTask{
		Task:    NewTask(TaskTypeSyncMailbox),
		source:  source,
		workset: workset,
	}
}

func (t *SyncMailboxTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	page, err := t.source.FetchIDs(ctx, "")
	if err != nil {
		slog.Error("Task failed", "type", "SyncMailbox", "error", err)
		return fmt.Errorf("failed to fetch message ids: %w", err)
	}

	var missing []string
	for _, id := range page.IDs {
		if _, ok := t.workset.Get(id); !ok {
			missing = append(missing, id)
		}
	}

	fetched, err := t.source.FetchByIDs(ctx, missing)
	if err != nil {
		slog.Error("Task failed", "type", "SyncMailbox", "error", err)
		return fmt.Errorf("failed to fetch message bodies: %w", err)
	}

	freshByID := make(map[string]*mail.Item, len(fetched))
	for _, item := range fetched {
		freshByID[item.ID] = item
	}

	t.workset.Merge(page.IDs, freshByID)
	t.workset.AdvanceCursor(page.NextPageToken)

	slog.Info("Task completed",
		"type", "SyncMailbox",
		"duration", t.GetDuration(),
		"head", len(page.IDs),
		"fetched", len(fetched))

	return nil
}
