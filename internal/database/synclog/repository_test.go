package synclog

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/shelfsync/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	dbPath := "./test_synclog_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.SyncLog{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, cleanup
}

func seedLogs(t *testing.T, repo *Repository, n int, runID, level string) {
	for i := 0; i < n; i++ {
		require.NoError(t, repo.AppendLog(&entities.SyncLog{
			RunID:     runID,
			Level:     level,
			Message:   "push failed",
			CreatedAt: time.Now().Add(time.Duration(-i) * time.Hour),
		}))
	}
}

func TestRepository_AppendLog(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	entry := &entities.SyncLog{RunID: "run1", Level: "WARNING", Message: "no match found for book", Details: `{"title":"Dune"}`}
	require.NoError(t, repo.AppendLog(entry))

	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, "warn", entry.Level)
}

func TestRepository_ListLogs(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	seedLogs(t, repo, 3, "run1", "warn")
	seedLogs(t, repo, 2, "run2", "error")

	logs, total, err := repo.ListLogs(Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, logs, 5)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].CreatedAt.After(logs[i-1].CreatedAt), "most recent first")
	}

	logs, total, err = repo.ListLogs(Filter{Level: "ERROR"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, l := range logs {
		assert.Equal(t, "error", l.Level)
	}

	logs, total, err = repo.ListLogs(Filter{RunID: "run1", Level: "warning"}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, logs, 2)

	logs, _, err = repo.ListLogs(Filter{RunID: "unknown"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRepository_DeleteLogsOlderThan(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	seedLogs(t, repo, 5, "run1", "warn")

	deleted, err := repo.DeleteLogsOlderThan(150 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := repo.ListLogs(Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestRepository_TrimLogs(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	seedLogs(t, repo, 5, "run1", "warn")

	deleted, err := repo.TrimLogs(0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.TrimLogs(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	logs, total, err := repo.ListLogs(Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, l := range logs {
		assert.WithinDuration(t, time.Now(), l.CreatedAt, 90*time.Minute, "newest entries are kept")
	}
}

func TestNormalizeLevel(t *testing.T) {
	assert.Equal(t, "warn", NormalizeLevel("WARNING"))
	assert.Equal(t, "warn", NormalizeLevel(" warn "))
	assert.Equal(t, "error", NormalizeLevel("Error"))
	assert.Equal(t, "", NormalizeLevel(""))
}
