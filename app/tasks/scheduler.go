package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ykarpov/inboxflow/app/cfg"
	"github.com/ykarpov/inboxflow/app/classify"
	"github.com/ykarpov/inboxflow/app/labels"
	"github.com/ykarpov/inboxflow/app/repository"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	source      MailSource
	workset     *repository.Repository
	runner      *classify.BatchRunner
	labelCache  *labels.ConfigCache
	persister   classify.Persister
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(source MailSource, workset *repository.Repository, runner *classify.BatchRunner,
	labelCache *labels.ConfigCache, persister classify.Persister) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		source:      source,
		workset:     workset,
		runner:      runner,
		labelCache:  labelCache,
		persister:   persister,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueCycle()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueCycle()
			}
		}
	}()

}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueCycle schedules one full refresh pass: sync the head window,
// classify whatever is unclassified, then write labels back. Ordering is
// best effort; each task tolerates a partially refreshed working set.
func (s *Scheduler) enqueueCycle() {
	syncTask := NewSyncMailboxTask(s.source, s.workset)
	if err := s.EnqueueTask(syncTask); err != nil {
		slog.Warn("Failed to enqueue SyncMailboxTask", "error", err)
		return
	}

	classifyTask := NewClassifyBatchTask(s.runner, s.workset)
	if err := s.EnqueueTask(classifyTask); err != nil {
		slog.Warn("Failed to enqueue ClassifyBatchTask", "error", err)
	}

	if s.labelCache.GetDefinitionCount() > 0 {
		applyTask := NewApplyLabelsTask(s.source, s.workset, s.labelCache)
		if err := s.EnqueueTask(applyTask); err != nil {
			slog.Warn("Failed to enqueue ApplyLabelsTask", "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	} else {
		s.persistSnapshot()
	}
}

// persistSnapshot is best effort; a failed save never fails the task.
func (s *Scheduler) persistSnapshot() {
	if s.persister == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if err := s.persister.SaveSnapshot(saveCtx); err != nil {
		slog.Warn("Snapshot persistence failed", "error", err)
	}
}
