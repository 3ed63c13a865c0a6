package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ykarpov/inboxflow/app/labels"
	"github.com/ykarpov/inboxflow/app/repository"
)

// ApplyLabelsTask writes configured labels back to the mail provider for
// classified job-bucket items. Partial failures are logged, not retried.
type ApplyLabelsTask struct {
	Task
	source     MailSource
	workset    *repository.Repository
	labelCache *labels.ConfigCache
}

func NewApplyLabelsTask(source MailSource, workset *repository.Repository, labelCache *labels.ConfigCache) *ApplyLabelsTask {
	return &ApplyLabelsTask{
		Task:       NewTask(TaskTypeApplyLabels),
		source:     source,
		workset:    workset,
		labelCache: labelCache,
	}
}

func (t *ApplyLabelsTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	applicable := t.labelCache.GetApplicable()
	if len(applicable) == 0 {
		slog.Debug("No labels configured for writeback", "type", "ApplyLabels")
		return nil
	}

	var ids []string
	for _, item := range t.workset.GetFiltered(repository.BucketJob) {
		if _, ok := t.workset.Classification(item.ID); ok {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		slog.Debug("No classified job items to label", "type", "ApplyLabels")
		return nil
	}

	labeledCount := 0
	errorCount := 0

	for _, definition := range applicable {
		labelID, err := t.source.GetOrCreateLabel(ctx, definition.DisplayName)
		if err != nil {
			slog.Error("Failed to resolve label", "label", definition.Name, "error", err)
			return fmt.Errorf("failed to resolve label %s: %w", definition.Name, err)
		}

		result, err := t.source.AddLabel(ctx, ids, labelID)
		if err != nil {
			slog.Error("Failed to apply label", "label", definition.Name, "error", err)
			return fmt.Errorf("failed to apply label %s: %w", definition.Name, err)
		}

		labeledCount += len(result.Success)
		errorCount += len(result.Failed)
		for _, failure := range result.Failed {
			slog.Warn("Label application failed for item", "label", definition.Name, "item", failure.ID, "error", failure.Err)
		}
	}

	slog.Info("Task completed",
		"type", "ApplyLabels",
		"duration", t.GetDuration(),
		"success", labeledCount,
		"errors", errorCount)

	return nil
}
