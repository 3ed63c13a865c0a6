package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ykarpov/inboxflow/app/classify"
	"github.com/ykarpov/inboxflow/app/repository"
)

// ClassifyBatchTask runs the batch classifier over the current working set.
// A credential failure surfaces as a task error so the run is visible in
// logs; per-item failures are tolerated by the runner itself.
type ClassifyBatchTask struct {
	Task
	runner  *classify.BatchRunner
	workset *repository.Repository
}

func NewClassifyBatchTask(runner *classify.BatchRunner, workset *repository.Repository) *ClassifyBatchTask {
	return &ClassifyBatchTask{
		Task:    NewTask(TaskTypeClassifyBatch),
		runner:  runner,
		workset: workset,
	}
}

func (t *ClassifyBatchTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	items := t.workset.Items()
	if len(items) == 0 {
		slog.Debug("Working set empty, nothing to classify", "type", "ClassifyBatch")
		return nil
	}

	summary, err := t.runner.Run(ctx, items, func(processed, total int) {
		slog.Debug("Batch progress", "processed", processed, "total", total)
	})
	if err != nil {
		slog.Error("Task failed", "type", "ClassifyBatch", "run_id", summary.RunID, "error", err)
		return fmt.Errorf("batch classification aborted: %w", err)
	}

	slog.Info("Task completed",
		"type", "ClassifyBatch",
		"run_id", summary.RunID,
		"duration", t.GetDuration(),
		"processed", summary.Processed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return nil
}
