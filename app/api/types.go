package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ykarpov/inboxflow/app/classify"
	"github.com/ykarpov/inboxflow/app/labels"
	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/memo"
	"github.com/ykarpov/inboxflow/app/repository"
	"github.com/ykarpov/inboxflow/app/tasks"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

type ClassifierInterface interface {
	Classify(ctx context.Context, item *mail.Item, mode llm.Mode, params map[string]string) (*taxonomy.ClassificationResult, error)
	ClassifyRaw(ctx context.Context, item *mail.Item, mode llm.Mode, params map[string]string) (string, error)
}

var _ ClassifierInterface = (*classify.Orchestrator)(nil)

type Handler struct {
	classifier ClassifierInterface
	workset    *repository.Repository
	labelCache *labels.ConfigCache
	scheduler  tasks.TaskSchedulerInterface
	source     tasks.MailSource
	runner     *classify.BatchRunner
	cache      *memo.Cache
	registry   *prometheus.Registry
}
