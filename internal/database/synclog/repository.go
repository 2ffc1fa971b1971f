// Package synclog stores the warnings and errors logged during sync runs.
//
// # Interface Implementation
//
//	var _ engine.LogSink = (*Repository)(nil)
//	var _ tasks.SyncLogCleaner = (*Repository)(nil)
package synclog

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/shelfsync/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows ListLogs. Empty fields match everything.
type Filter struct {
	Level string
	RunID string
}

// AppendLog saves a log entry.
func (r *Repository) AppendLog(entry *entities.SyncLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Level = NormalizeLevel(entry.Level)
	return r.db.Create(entry).Error
}

// ListLogs retrieves paginated log entries, most recent first.
func (r *Repository) ListLogs(filter Filter, limit, offset int) ([]entities.SyncLog, int64, error) {
	var logs []entities.SyncLog
	var total int64

	query := r.db.Model(&entities.SyncLog{})
	if filter.Level != "" {
		query = query.Where("level = ?", NormalizeLevel(filter.Level))
	}
	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, total, err
}

// DeleteLogsOlderThan removes entries older than retention and returns how many were deleted.
func (r *Repository) DeleteLogsOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := r.db.Where("created_at < ?", cutoff).Delete(&entities.SyncLog{})
	return result.RowsAffected, result.Error
}

// TrimLogs keeps only the newest maxEntries entries. A non-positive maxEntries keeps everything.
func (r *Repository) TrimLogs(maxEntries int) (int64, error) {
	if maxEntries <= 0 {
		return 0, nil
	}
	newest := r.db.Model(&entities.SyncLog{}).
		Select("id").
		Order("created_at DESC, id DESC").
		Limit(maxEntries)
	result := r.db.Where("id NOT IN (?)", newest).Delete(&entities.SyncLog{})
	return result.RowsAffected, result.Error
}

// NormalizeLevel maps level names to the lower-case names used by the logger,
// accepting the long form "warning".
func NormalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return "warn"
	}
	return level
}
