package tasks

import (
	"context"

	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/mailsource"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API layer to manage background
// mailbox processing.
// Example usage:
//
//	scheduler := NewScheduler(mailClient, workset, runner, labelCache, persister)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewSyncMailboxTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// MailSource is the mail-provider surface the tasks need.
type MailSource interface {
	FetchIDs(ctx context.Context, pageToken string) (*mail.Page, error)
	FetchByIDs(ctx context.Context, ids []string) ([]*mail.Item, error)
	GetOrCreateLabel(ctx context.Context, name string) (string, error)
	AddLabel(ctx context.Context, ids []string, labelID string) (*mailsource.LabelResult, error)
}
