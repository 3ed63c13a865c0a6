package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ykarpov/inboxflow/app/api"
	"github.com/ykarpov/inboxflow/app/cfg"
	"github.com/ykarpov/inboxflow/app/classify"
	"github.com/ykarpov/inboxflow/app/database"
	"github.com/ykarpov/inboxflow/app/labels"
	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/mailsource"
	"github.com/ykarpov/inboxflow/app/memo"
	"github.com/ykarpov/inboxflow/app/metrics"
	"github.com/ykarpov/inboxflow/app/repository"
	"github.com/ykarpov/inboxflow/app/tasks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found")
	}

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.RFC3339,
	})))

	slog.Info("Starting inboxflow", "version", appCfg.Version)

	db, err := database.NewDB(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	labelCache := labels.NewConfigCache(appCfg.LabelsDir)
	if err := labelCache.Run(); err != nil {
		slog.Error("Failed to load label definitions", "dir", appCfg.LabelsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Label definitions loaded", "count", labelCache.GetDefinitionCount())

	workset := repository.New(labelCache.JobMarkers())

	snapshotRepo := database.NewSnapshotRepository(db)
	restoreSnapshot(snapshotRepo, workset)

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(registry)

	cache := memo.NewCache(
		memo.WithMaxEntries(appCfg.CacheMaxEntries),
		memo.WithTTL(time.Duration(appCfg.CacheTTL)*time.Second),
	)

	llmClient, err := llm.NewClient(llm.ClientOptions{
		BaseURL: appCfg.LLMBaseURL,
		APIKey:  appCfg.LLMAPIKey,
		Model:   appCfg.LLMModel,
		Timeout: time.Duration(appCfg.LLMTimeout) * time.Second,
		RPS:     appCfg.LLMRPS,
		Burst:   appCfg.LLMRPSBurst,
	})
	if err != nil {
		slog.Error("Failed to create LLM client", "error", err)
		os.Exit(1)
	}

	mailClient, err := mailsource.NewClient(mailsource.ClientOptions{
		BaseURL: appCfg.MailBaseURL,
		Tokens:  mailsource.StaticTokenSource(appCfg.MailToken),
		RPS:     appCfg.MailRPS,
		Burst:   appCfg.MailRPSBurst,
	})
	if err != nil {
		slog.Error("Failed to create mail source client", "error", err)
		os.Exit(1)
	}

	orchestrator := classify.NewOrchestrator(llmClient, cache, collector,
		classify.WithTruncateChars(appCfg.TruncateChars))

	persister := &snapshotPersister{repo: snapshotRepo, workset: workset}

	runner := classify.NewBatchRunner(orchestrator, workset, persister, collector, classify.BatchOptions{
		Concurrency:     appCfg.Concurrency,
		InterBatchDelay: time.Duration(appCfg.InterBatchDelay) * time.Millisecond,
	})

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(mailClient, workset, runner, labelCache, persister)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(orchestrator, workset, labelCache, scheduler,
		mailClient, runner, cache, registry)
	router := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Final snapshot so the next session resumes where this one ended
	if err := persister.SaveSnapshot(shutdownCtx); err != nil {
		slog.Warn("Final snapshot save failed", "error", err)
	}

	slog.Info("Shutdown complete")
}

// snapshotPersister bridges the repository's in-memory snapshot to the
// sqlite store.
type snapshotPersister struct {
	repo    *database.SnapshotRepository
	workset *repository.Repository
}

var _ classify.Persister = (*snapshotPersister)(nil)

func (p *snapshotPersister) SaveSnapshot(ctx context.Context) error {
	data, err := json.Marshal(p.workset.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return p.repo.Save(ctx, data)
}

func restoreSnapshot(repo *database.SnapshotRepository, workset *repository.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, updatedAt, err := repo.Load(ctx)
	if err != nil {
		slog.Warn("Snapshot load failed, starting empty", "error", err)
		return
	}
	if data == nil {
		slog.Info("No previous snapshot, starting empty")
		return
	}

	var snapshot repository.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		slog.Warn("Snapshot blob corrupt, starting empty", "error", err)
		return
	}

	workset.Restore(&snapshot)
	items, classified := workset.Counts()
	slog.Info("Snapshot restored", "saved_at", updatedAt.Format(time.RFC3339), "items", items, "classified", classified)
}
