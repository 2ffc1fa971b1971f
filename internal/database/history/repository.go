// Package history provides database operations for sync runs and per-book sync outcomes.
//
// This package implements the HistoryStore interface used by the sync engine and the
// read-only queries used by the reporting API.
//
// # Interface Implementation
//
//	var _ engine.HistoryStore = (*Repository)(nil)
//
// # Usage
//
//	repo := history.NewRepository(db)
//	runs, total, err := repo.ListRuns(25, 0)
package history

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/shelfsync/internal/entities"
)

var (
	// ErrRunNotRunning is returned when finishing a run that is unknown or already finished.
	ErrRunNotRunning = errors.New("sync run is not running")
	// ErrRunActive is returned by StartRun while another run holds a fresh heartbeat.
	ErrRunActive = errors.New("another sync run is active")
)

// Repository handles all sync history database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new history repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun persists a run summary as is, without checking for other active runs.
func (r *Repository) CreateRun(run *entities.SyncRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = entities.SyncStatusRunning
	}
	if run.Status == entities.SyncStatusRunning && run.HeartbeatAt == nil {
		heartbeat := run.StartedAt
		run.HeartbeatAt = &heartbeat
	}
	return r.db.Create(run).Error
}

// StartRun persists a new running run unless another run, possibly owned by a
// different process sharing the database, is still alive within staleAfter.
// The check and the insert happen in one transaction.
// Implements HistoryStore.StartRun.
func (r *Repository) StartRun(run *entities.SyncRun, staleAfter time.Duration) error {
	now := time.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.Status = entities.SyncStatusRunning
	run.HeartbeatAt = &now

	return r.db.Transaction(func(tx *gorm.DB) error {
		var active int64
		err := tx.Model(&entities.SyncRun{}).
			Where("status = ? AND heartbeat_at > ?", entities.SyncStatusRunning, now.Add(-staleAfter)).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrRunActive
		}
		return tx.Create(run).Error
	})
}

// Heartbeat marks a running run as still alive.
// Implements HistoryStore.Heartbeat.
func (r *Repository) Heartbeat(runID string) error {
	result := r.db.Model(&entities.SyncRun{}).
		Where("run_id = ? AND status = ?", runID, entities.SyncStatusRunning).
		Update("heartbeat_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// FinishRun writes the terminal status and counts of a running run.
// A run can only be finished once.
// Implements HistoryStore.FinishRun.
func (r *Repository) FinishRun(run *entities.SyncRun) error {
	if run.CompletedAt == nil {
		now := time.Now()
		run.CompletedAt = &now
	}

	result := r.db.Model(&entities.SyncRun{}).
		Where("run_id = ? AND status = ?", run.RunID, entities.SyncStatusRunning).
		Updates(map[string]any{
			"status":          run.Status,
			"books_processed": run.BooksProcessed,
			"books_synced":    run.BooksSynced,
			"books_skipped":   run.BooksSkipped,
			"books_failed":    run.BooksFailed,
			"error_message":   run.ErrorMessage,
			"completed_at":    run.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// AppendOutcome appends a per-book outcome together with its destination results.
// Implements HistoryStore.AppendOutcome.
func (r *Repository) AppendOutcome(outcome *entities.SyncHistory) error {
	if outcome.SyncedAt.IsZero() {
		outcome.SyncedAt = time.Now()
	}
	return r.db.Create(outcome).Error
}

// GetRun retrieves a run by its run id, or nil if it does not exist.
func (r *Repository) GetRun(runID string) (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestRun returns the most recently started run, or nil if there are none.
func (r *Repository) LatestRun() (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns retrieves paginated runs, most recent first.
func (r *Repository) ListRuns(limit, offset int) ([]entities.SyncRun, int64, error) {
	var runs []entities.SyncRun
	var total int64

	if err := r.db.Model(&entities.SyncRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset = normalizePage(limit, offset)

	err := r.db.Order("started_at DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, total, err
}

// ListRunOutcomes returns every outcome recorded for a run, in the order they were written.
func (r *Repository) ListRunOutcomes(runID string) ([]entities.SyncHistory, error) {
	var outcomes []entities.SyncHistory
	err := r.db.Preload("Destinations").
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&outcomes).Error
	return outcomes, err
}

// ListOutcomes retrieves paginated outcomes, optionally filtered by source book.
func (r *Repository) ListOutcomes(sourceBookID string, limit, offset int) ([]entities.SyncHistory, int64, error) {
	var outcomes []entities.SyncHistory
	var total int64

	query := r.db.Model(&entities.SyncHistory{})
	if sourceBookID != "" {
		query = query.Where("source_book_id = ?", sourceBookID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset = normalizePage(limit, offset)

	err := query.Preload("Destinations").
		Order("synced_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&outcomes).Error
	return outcomes, total, err
}

// IsRunActive reports whether any run is marked running and has sent a heartbeat
// within staleAfter.
func (r *Repository) IsRunActive(staleAfter time.Duration) (bool, error) {
	var count int64
	err := r.db.Model(&entities.SyncRun{}).
		Where("status = ? AND heartbeat_at > ?", entities.SyncStatusRunning, time.Now().Add(-staleAfter)).
		Count(&count).Error
	return count > 0, err
}

// FailInterruptedRuns marks running runs whose heartbeat is older than staleAfter
// as failed. Runs kept alive by another process are left alone.
func (r *Repository) FailInterruptedRuns(staleAfter time.Duration) (int64, error) {
	now := time.Now()
	result := r.db.Model(&entities.SyncRun{}).
		Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at <= ?)", entities.SyncStatusRunning, now.Add(-staleAfter)).
		Updates(map[string]any{
			"status":        entities.SyncStatusFailed,
			"error_message": "sync was interrupted",
			"completed_at":  now,
		})
	return result.RowsAffected, result.Error
}

// Stats aggregates the history for the reporting layer.
type Stats struct {
	TotalRuns        int64                             `json:"total_runs"`
	FailedRuns       int64                             `json:"failed_runs"`
	TotalOutcomes    int64                             `json:"total_outcomes"`
	ByClassification map[entities.Classification]int64 `json:"by_classification"`
	ByDestination    map[string]DestinationStats       `json:"by_destination"`
	LastRun          *entities.SyncRun                 `json:"last_run,omitempty"`
}

// DestinationStats counts push attempts and successes for one destination.
type DestinationStats struct {
	Attempted int64 `json:"attempted"`
	Succeeded int64 `json:"succeeded"`
}

// GetStats computes run and outcome totals.
func (r *Repository) GetStats() (*Stats, error) {
	stats := &Stats{
		ByClassification: make(map[entities.Classification]int64),
		ByDestination:    make(map[string]DestinationStats),
	}

	if err := r.db.Model(&entities.SyncRun{}).Count(&stats.TotalRuns).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&entities.SyncRun{}).Where("status = ?", entities.SyncStatusFailed).Count(&stats.FailedRuns).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&entities.SyncHistory{}).Count(&stats.TotalOutcomes).Error; err != nil {
		return nil, err
	}

	var classRows []struct {
		Classification entities.Classification
		Count          int64
	}
	err := r.db.Model(&entities.SyncHistory{}).
		Select("classification, COUNT(*) AS count").
		Group("classification").
		Scan(&classRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range classRows {
		stats.ByClassification[row.Classification] = row.Count
	}

	var destRows []struct {
		Destination string
		Attempted   int64
		Succeeded   int64
	}
	err = r.db.Model(&entities.SyncDestinationResult{}).
		Select("destination, SUM(CASE WHEN attempted THEN 1 ELSE 0 END) AS attempted, SUM(CASE WHEN succeeded THEN 1 ELSE 0 END) AS succeeded").
		Group("destination").
		Scan(&destRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range destRows {
		stats.ByDestination[row.Destination] = DestinationStats{Attempted: row.Attempted, Succeeded: row.Succeeded}
	}

	stats.LastRun, err = r.LatestRun()
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
