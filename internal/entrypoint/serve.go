package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mrlokans/shelfsync/internal/config"
	http_controllers "github.com/mrlokans/shelfsync/internal/http"
	"github.com/mrlokans/shelfsync/internal/scheduler"
	"github.com/mrlokans/shelfsync/internal/tasks"
)

// Serve runs the HTTP API, the sync scheduler and the task queue until ctx is cancelled.
func Serve(ctx context.Context, app *App, version string) error {
	cfg := app.Config
	logger := app.Logger

	logger.Info("starting shelfsync", "version", version)

	if n, err := app.History.FailInterruptedRuns(app.Engine.Options().StaleAfter); err != nil {
		logger.Error("failed to recover interrupted runs", "err", err)
	} else if n > 0 {
		logger.Warn("marked interrupted runs as failed", "count", n)
	}

	var taskClient *tasks.Client
	taskCtx, taskCancel := context.WithCancel(context.Background())
	defer taskCancel()
	if cfg.Tasks.Enabled {
		var err error
		taskClient, err = tasks.NewClient(cfg.Tasks.DatabasePath, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		}, logger.WithPrefix("tasks"))
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error("error closing task client", "err", err)
			}
		}()

		taskClient.Register(tasks.NewSyncQueue(app.Engine, logger.WithPrefix("tasks")))
		taskClient.Register(tasks.NewCleanupSyncLogsQueue(app.SyncLogs, logger.WithPrefix("tasks")))
		go taskClient.Start(taskCtx)
	}

	maintenance, err := newMaintenance(app, taskClient)
	if err != nil {
		return err
	}
	maintenance.RunAll(ctx)
	if err := maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}

	var syncScheduler *scheduler.SyncScheduler
	if cfg.Sync.Enabled {
		syncScheduler = scheduler.NewSyncScheduler(app.Engine, cfg.Sync.Schedule, logger.WithPrefix("scheduler"))
		if err := syncScheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync scheduler: %w", err)
		}
	}

	if cfg.Sync.OnStartup {
		startupSync(app, taskClient, syncScheduler)
	}

	routerCfg := http_controllers.RouterConfig{
		Database: app.DB,
		History:  app.History,
		Mappings: app.Mappings,
		Logs:     app.SyncLogs,
		Runner:   app.Engine,
		Tester:   app.Engine,
		Logger:   logger,
		Version:  version,
	}
	if taskClient != nil {
		routerCfg.Queue = taskClient
	}
	if app.Source != nil {
		routerCfg.Source = app.Source
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: http_controllers.NewRouter(routerCfg),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	logger.Info("shutting down server", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if syncScheduler != nil {
		syncScheduler.Stop()
	}
	maintenance.Stop()
	if taskClient != nil {
		taskClient.Stop(shutdownCtx)
		taskCancel()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

// startupSync triggers the initial cycle through the task queue when available.
func startupSync(app *App, taskClient *tasks.Client, syncScheduler *scheduler.SyncScheduler) {
	if taskClient != nil {
		_, err := taskClient.Add(tasks.SyncTask{Trigger: tasks.TriggerStartup}).Save()
		if err == nil {
			return
		}
		app.Logger.Error("failed to enqueue startup sync", "err", err)
	}
	if syncScheduler != nil {
		syncScheduler.RunNow()
		return
	}
	go func() {
		if _, err := app.Engine.RunCycle(context.Background()); err != nil {
			app.Logger.Info("startup sync skipped", "err", err)
		}
	}()
}

// newMaintenance schedules sync log cleanup. The job is enqueued on the task queue
// when one is running and executed in-process otherwise.
func newMaintenance(app *App, taskClient *tasks.Client) (*scheduler.MaintenanceScheduler, error) {
	cfg := app.Config.Tasks
	maintenance := scheduler.NewMaintenanceScheduler(app.Logger.WithPrefix("maintenance"))

	schedule := cfg.LogCleanupSchedule
	if schedule == "" {
		schedule = config.DefaultLogCleanupSchedule
	}

	cleanup := func(ctx context.Context) error {
		if taskClient != nil {
			_, err := taskClient.EnqueueLogCleanup(ctx, cfg.LogRetention, cfg.LogMaxEntries)
			return err
		}
		task := tasks.CleanupSyncLogsTask{RetentionHours: int(cfg.LogRetention / time.Hour), MaxEntries: cfg.LogMaxEntries}
		return tasks.CleanupSyncLogsProcessor(app.SyncLogs, app.Logger.WithPrefix("maintenance"))(ctx, task)
	}

	if err := maintenance.Add("cleanup_sync_logs", schedule, cleanup); err != nil {
		return nil, err
	}
	return maintenance, nil
}

// ValidateConfig reports configuration problems that prevent serving.
func ValidateConfig(cfg *config.Config) error {
	if cfg.Sync.Enabled {
		if err := scheduler.ValidateCronSchedule(cfg.Sync.Schedule); err != nil {
			return fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", cfg.Sync.Schedule, err)
		}
	}
	if cfg.Tasks.LogCleanupSchedule != "" {
		if err := scheduler.ValidateCronSchedule(cfg.Tasks.LogCleanupSchedule); err != nil {
			return fmt.Errorf("invalid SYNC_LOG_CLEANUP_SCHEDULE %q: %w", cfg.Tasks.LogCleanupSchedule, err)
		}
	}
	if cfg.Sync.MinListenMinutes < 0 {
		return fmt.Errorf("MIN_LISTEN_MINUTES must not be negative")
	}
	return nil
}
