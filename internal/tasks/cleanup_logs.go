package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/shelfsync/internal/logging"
)

const (
	CleanupSyncLogsQueueName = "cleanup_sync_logs"

	DefaultLogRetention  = 30 * 24 * time.Hour
	DefaultLogMaxEntries = 5000
)

// SyncLogCleaner provides the ability to delete old sync log entries.
type SyncLogCleaner interface {
	DeleteLogsOlderThan(retention time.Duration) (int64, error)
	TrimLogs(maxEntries int) (int64, error)
}

// CleanupSyncLogsTask removes sync log entries older than the retention period and
// caps the log at MaxEntries.
type CleanupSyncLogsTask struct {
	RetentionHours int `json:"retention_hours"`
	MaxEntries     int `json:"max_entries"`
}

// Config returns the queue configuration for sync log cleanup tasks.
func (t CleanupSyncLogsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        CleanupSyncLogsQueueName,
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupSyncLogsProcessor creates a processor function for CleanupSyncLogsTask.
func CleanupSyncLogsProcessor(cleaner SyncLogCleaner, logger *log.Logger) backlite.QueueProcessor[CleanupSyncLogsTask] {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(ctx context.Context, task CleanupSyncLogsTask) error {
		if cleaner == nil {
			return fmt.Errorf("sync log cleaner not configured")
		}

		retention := time.Duration(task.RetentionHours) * time.Hour
		if retention <= 0 {
			retention = DefaultLogRetention
		}
		maxEntries := task.MaxEntries
		if maxEntries <= 0 {
			maxEntries = DefaultLogMaxEntries
		}

		expired, err := cleaner.DeleteLogsOlderThan(retention)
		if err != nil {
			return fmt.Errorf("cleanup sync logs: %w", err)
		}
		trimmed, err := cleaner.TrimLogs(maxEntries)
		if err != nil {
			return fmt.Errorf("trim sync logs: %w", err)
		}

		logger.Info("cleaned up sync logs", "expired", expired, "trimmed", trimmed, "retention", retention, "max_entries", maxEntries)
		return nil
	}
}

// NewCleanupSyncLogsQueue creates a backlite queue for sync log cleanup tasks.
func NewCleanupSyncLogsQueue(cleaner SyncLogCleaner, logger *log.Logger) backlite.Queue {
	return backlite.NewQueue(CleanupSyncLogsProcessor(cleaner, logger))
}
