package classify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/metrics"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

// ResultStore is the repository surface the batch runner needs: read an
// existing classification and persist a new one.
type ResultStore interface {
	Classification(id string) (taxonomy.ClassificationResult, bool)
	Attach(id string, result taxonomy.ClassificationResult)
}

// Persister saves the repository snapshot. Best-effort: the runner logs
// failures and keeps going.
type Persister interface {
	SaveSnapshot(ctx context.Context) error
}

// ProgressFunc receives (processed, total) after every chunk.
type ProgressFunc func(processed, total int)

// ItemResult is the per-item outcome of a batch run. Err is set for items
// whose classification failed; they render as unclassified.
type ItemResult struct {
	Item   *mail.Item
	Result *taxonomy.ClassificationResult
	Err    error
}

// Summary describes one completed (or auth-aborted) batch run.
type Summary struct {
	RunID     string
	Total     int
	Processed int
	Failed    int
	Skipped   int // already classified, no call issued
	Results   []ItemResult
}

// BatchRunner classifies many items against the rate-limited external
// service with bounded concurrency, preserving partial progress.
type BatchRunner struct {
	orchestrator *Orchestrator
	store        ResultStore
	persister    Persister
	collector    metrics.Collector

	concurrency     int
	interBatchDelay time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

type BatchOptions struct {
	Concurrency     int
	InterBatchDelay time.Duration
}

func NewBatchRunner(orchestrator *Orchestrator, store ResultStore, persister Persister, collector metrics.Collector, opts BatchOptions) *BatchRunner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &BatchRunner{
		orchestrator:    orchestrator,
		store:           store,
		persister:       persister,
		collector:       collector,
		concurrency:     opts.Concurrency,
		interBatchDelay: opts.InterBatchDelay,
		sleep:           sleepCtx,
	}
}

// Run partitions items into consecutive chunks of the configured
// concurrency, launches each chunk's classifications concurrently, and
// awaits the whole chunk before starting the next. At most C calls are
// outstanding at any instant. A per-item failure is captured and reported
// individually; it never aborts the chunk or the run. A rejected credential
// is the one fatal case: the remainder of the run is skipped, since every
// further call would fail the same way.
func (r *BatchRunner) Run(ctx context.Context, items []*mail.Item, onProgress ProgressFunc) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Total:   len(items),
		Results: make([]ItemResult, 0, len(items)),
	}

	slog.Info("Batch classification started", "run_id", summary.RunID, "total", summary.Total, "concurrency", r.concurrency)

	var authErr error

	for start := 0; start < len(items) && authErr == nil; start += r.concurrency {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		end := min(start+r.concurrency, len(items))
		chunk := items[start:end]
		results := make([]ItemResult, len(chunk))

		var g errgroup.Group
		for i, item := range chunk {
			g.Go(func() error {
				results[i] = r.classifyOne(ctx, item)
				return nil
			})
		}
		g.Wait()

		for _, res := range results {
			summary.Results = append(summary.Results, res)
			summary.Processed++
			switch {
			case res.Err == nil && res.Result == nil:
				summary.Skipped++
			case res.Err != nil:
				summary.Failed++
				var ae *AuthError
				if errors.As(res.Err, &ae) {
					authErr = res.Err
				}
			}
		}

		r.persistProgress(ctx)

		if onProgress != nil {
			onProgress(summary.Processed, summary.Total)
		}

		// Conservative throttle between chunks against the external
		// service's rate limits.
		if end < len(items) && authErr == nil && r.interBatchDelay > 0 {
			if err := r.sleep(ctx, r.interBatchDelay); err != nil {
				return summary, err
			}
		}
	}

	r.collector.RecordBatchRun()
	slog.Info("Batch classification finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return summary, authErr
}

// classifyOne handles a single item. An already-classified item counts as
// processed without issuing a call; its Result stays nil and Err stays nil.
func (r *BatchRunner) classifyOne(ctx context.Context, item *mail.Item) ItemResult {
	if _, ok := r.store.Classification(item.ID); ok {
		return ItemResult{Item: item}
	}

	result, err := r.orchestrator.Classify(ctx, item, llm.ModeSummarize, nil)
	if err != nil {
		slog.Warn("Item classification failed", "item", item.ID, "error", err)
		return ItemResult{Item: item, Err: err}
	}

	r.store.Attach(item.ID, *result)
	return ItemResult{Item: item, Result: result}
}

func (r *BatchRunner) persistProgress(ctx context.Context) {
	if r.persister == nil {
		return
	}
	if err := r.persister.SaveSnapshot(ctx); err != nil {
		r.collector.RecordSnapshotSave(false)
		slog.Warn("Snapshot persistence failed, continuing", "error", err)
		return
	}
	r.collector.RecordSnapshotSave(true)
}
