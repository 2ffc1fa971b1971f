package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/shelfsync/internal/engine"
	"github.com/mrlokans/shelfsync/internal/entities"
	"github.com/mrlokans/shelfsync/internal/logging"
)

const (
	SyncQueueName = "sync"

	TriggerManual  = "manual"
	TriggerStartup = "startup"
)

// CycleRunner runs sync cycles for queued tasks.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*entities.SyncRun, error)
	Rematch(ctx context.Context) (*entities.SyncRun, error)
}

// SyncTask asks for one sync cycle. Rematch bypasses the match cache.
type SyncTask struct {
	Rematch bool   `json:"rematch"`
	Trigger string `json:"trigger"`
}

// Config returns the queue configuration for sync tasks. Sync tasks are not
// retried: the next scheduled cycle picks up whatever a failed one missed.
func (t SyncTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        SyncQueueName,
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncProcessor creates a processor function for SyncTask.
// An overlapping cycle is logged and dropped rather than retried.
func SyncProcessor(runner CycleRunner, logger *log.Logger) backlite.QueueProcessor[SyncTask] {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(ctx context.Context, task SyncTask) error {
		if runner == nil {
			return fmt.Errorf("sync engine not configured")
		}

		var (
			run *entities.SyncRun
			err error
		)
		if task.Rematch {
			run, err = runner.Rematch(ctx)
		} else {
			run, err = runner.RunCycle(ctx)
		}

		if errors.Is(err, engine.ErrCycleInProgress) {
			logger.Info("queued sync dropped, a cycle is already running", "trigger", task.Trigger)
			return nil
		}
		if err != nil {
			return fmt.Errorf("sync cycle: %w", err)
		}

		logger.Info("queued sync finished",
			"trigger", task.Trigger,
			"rematch", task.Rematch,
			"run_id", run.RunID,
			"status", run.Status,
			"synced", run.BooksSynced)
		return nil
	}
}

// NewSyncQueue creates a backlite queue for sync tasks.
func NewSyncQueue(runner CycleRunner, logger *log.Logger) backlite.Queue {
	return backlite.NewQueue(SyncProcessor(runner, logger))
}
