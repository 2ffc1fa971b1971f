package entities

import (
	"time"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun summarizes one sync cycle. It is created as running and finished exactly once.
// HeartbeatAt is refreshed while the run is in flight; a running row whose heartbeat
// is older than the stale window belongs to a process that died.
type SyncRun struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	RunID          string     `gorm:"size:50;uniqueIndex;not null" json:"run_id"`
	Status         SyncStatus `gorm:"size:20;index" json:"status"`
	BooksProcessed int        `json:"books_processed"`
	BooksSynced    int        `json:"books_synced"`
	BooksSkipped   int        `json:"books_skipped"`
	BooksFailed    int        `json:"books_failed"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt      time.Time  `gorm:"index" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	HeartbeatAt    *time.Time `gorm:"index" json:"heartbeat_at,omitempty"`
}

func (SyncRun) TableName() string {
	return "sync_run"
}

// Duration returns how long the run took, or zero while it is still running.
func (r SyncRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
