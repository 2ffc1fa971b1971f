package history

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
	dbPath := "./test_history_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.SyncRun{}, &entities.SyncHistory{}, &entities.SyncDestinationResult{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, cleanup
}

func outcome(runID, bookID string, class entities.Classification, dests ...entities.SyncDestinationResult) *entities.SyncHistory {
	return &entities.SyncHistory{
		RunID:          runID,
		SourceBookID:   bookID,
		Title:          "Book " + bookID,
		Classification: class,
		Success:        class == entities.ClassificationSynced,
		Destinations:   dests,
	}
}

func TestRepository_CreateRun(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.CreateRun(&entities.SyncRun{RunID: "run00001"})
	require.NoError(t, err)

	run, err := repo.GetRun("run00001")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())
	assert.Nil(t, run.CompletedAt)

	missing, err := repo.GetRun("unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_FinishRun(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	run := &entities.SyncRun{RunID: "run00001"}
	require.NoError(t, repo.CreateRun(run))

	run.Status = entities.SyncStatusCompleted
	run.BooksProcessed = 3
	run.BooksSynced = 1
	run.BooksSkipped = 1
	run.BooksFailed = 1
	require.NoError(t, repo.FinishRun(run))

	loaded, err := repo.GetRun("run00001")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, loaded.Status)
	assert.Equal(t, 3, loaded.BooksProcessed)
	assert.Equal(t, 1, loaded.BooksSynced)
	assert.Equal(t, 1, loaded.BooksSkipped)
	assert.Equal(t, 1, loaded.BooksFailed)
	assert.NotNil(t, loaded.CompletedAt)
}

func TestRepository_FinishRun_OnlyOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	run := &entities.SyncRun{RunID: "run00001"}
	require.NoError(t, repo.CreateRun(run))

	run.Status = entities.SyncStatusFailed
	run.ErrorMessage = "source unreachable"
	require.NoError(t, repo.FinishRun(run))

	run.Status = entities.SyncStatusCompleted
	err := repo.FinishRun(run)
	assert.ErrorIs(t, err, ErrRunNotRunning)

	loaded, err := repo.GetRun("run00001")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, loaded.Status)
	assert.Equal(t, "source unreachable", loaded.ErrorMessage)
}

func TestRepository_AppendOutcome_And_ListRunOutcomes(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.AppendOutcome(outcome("run1", "li_1", entities.ClassificationSynced,
		entities.SyncDestinationResult{Destination: "hardcover", DestinationBookID: "42", Attempted: true, Succeeded: true},
		entities.SyncDestinationResult{Destination: "storygraph"},
	)))
	require.NoError(t, repo.AppendOutcome(outcome("run1", "li_2", entities.ClassificationSkipped)))
	require.NoError(t, repo.AppendOutcome(outcome("run2", "li_1", entities.ClassificationFailed)))

	outcomes, err := repo.ListRunOutcomes("run1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "li_1", outcomes[0].SourceBookID)
	require.Len(t, outcomes[0].Destinations, 2)

	hc, ok := outcomes[0].Destination("hardcover")
	require.True(t, ok)
	assert.True(t, hc.Attempted)
	assert.True(t, hc.Succeeded)

	sg, ok := outcomes[0].Destination("storygraph")
	require.True(t, ok)
	assert.False(t, sg.Attempted)
}

func TestRepository_ListOutcomes_FilterByBook(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.AppendOutcome(outcome("run1", "li_1", entities.ClassificationSynced)))
	require.NoError(t, repo.AppendOutcome(outcome("run2", "li_1", entities.ClassificationSynced)))
	require.NoError(t, repo.AppendOutcome(outcome("run2", "li_2", entities.ClassificationSkipped)))

	outcomes, total, err := repo.ListOutcomes("li_1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, outcomes, 2)

	_, total, err = repo.ListOutcomes("", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestRepository_ListRuns(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	require.NoError(t, repo.CreateRun(&entities.SyncRun{RunID: "older", StartedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.CreateRun(&entities.SyncRun{RunID: "newer", StartedAt: now}))

	runs, total, err := repo.ListRuns(10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].RunID)

	latest, err := repo.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "newer", latest.RunID)
}

func TestRepository_LatestRun_Empty(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	latest, err := repo.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRepository_IsRunActive(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	active, err := repo.IsRunActive(time.Hour)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, repo.CreateRun(&entities.SyncRun{RunID: "stale", StartedAt: time.Now().Add(-2 * time.Hour)}))
	active, err = repo.IsRunActive(time.Hour)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, repo.Heartbeat("stale"))
	active, err = repo.IsRunActive(time.Hour)
	require.NoError(t, err)
	assert.True(t, active, "a heartbeat revives a long running run")
}

func TestRepository_StartRun(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	first := &entities.SyncRun{RunID: "first"}
	require.NoError(t, repo.StartRun(first, time.Minute))
	assert.Equal(t, entities.SyncStatusRunning, first.Status)
	require.NotNil(t, first.HeartbeatAt)

	err := repo.StartRun(&entities.SyncRun{RunID: "second"}, time.Minute)
	assert.ErrorIs(t, err, ErrRunActive)

	second, err := repo.GetRun("second")
	require.NoError(t, err)
	assert.Nil(t, second)

	first.Status = entities.SyncStatusCompleted
	require.NoError(t, repo.FinishRun(first))

	require.NoError(t, repo.StartRun(&entities.SyncRun{RunID: "third"}, time.Minute))
}

func TestRepository_StartRun_IgnoresStaleRuns(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.CreateRun(&entities.SyncRun{RunID: "crashed", StartedAt: time.Now().Add(-time.Hour)}))

	require.NoError(t, repo.StartRun(&entities.SyncRun{RunID: "next"}, time.Minute))
}

func TestRepository_Heartbeat(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	assert.ErrorIs(t, repo.Heartbeat("unknown"), ErrRunNotRunning)

	run := &entities.SyncRun{RunID: "run1", StartedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, repo.CreateRun(run))
	require.NoError(t, repo.Heartbeat("run1"))

	stored, err := repo.GetRun("run1")
	require.NoError(t, err)
	require.NotNil(t, stored.HeartbeatAt)
	assert.WithinDuration(t, time.Now(), *stored.HeartbeatAt, 5*time.Second)

	run.Status = entities.SyncStatusCompleted
	require.NoError(t, repo.FinishRun(run))
	assert.ErrorIs(t, repo.Heartbeat("run1"), ErrRunNotRunning)
}

func TestRepository_FailInterruptedRuns(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, repo.CreateRun(&entities.SyncRun{RunID: "crashed", StartedAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, repo.StartRun(&entities.SyncRun{RunID: "live", StartedAt: time.Now().Add(-time.Hour)}, time.Minute))
	done := &entities.SyncRun{RunID: "done"}
	require.NoError(t, repo.CreateRun(done))
	done.Status = entities.SyncStatusCompleted
	require.NoError(t, repo.FinishRun(done))

	n, err := repo.FailInterruptedRuns(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	crashed, err := repo.GetRun("crashed")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, crashed.Status)
	assert.Equal(t, "sync was interrupted", crashed.ErrorMessage)

	live, err := repo.GetRun("live")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRunning, live.Status, "a run with a fresh heartbeat is left alone")

	live.Status = entities.SyncStatusCompleted
	require.NoError(t, repo.FinishRun(live))

	completed, err := repo.GetRun("done")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, completed.Status)
}

func TestRepository_GetStats(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	run := &entities.SyncRun{RunID: "run1"}
	require.NoError(t, repo.CreateRun(run))
	run.Status = entities.SyncStatusFailed
	require.NoError(t, repo.FinishRun(run))

	require.NoError(t, repo.AppendOutcome(outcome("run1", "li_1", entities.ClassificationSynced,
		entities.SyncDestinationResult{Destination: "hardcover", Attempted: true, Succeeded: true},
		entities.SyncDestinationResult{Destination: "storygraph", Attempted: true, Error: "boom"},
	)))
	require.NoError(t, repo.AppendOutcome(outcome("run1", "li_2", entities.ClassificationSkipped,
		entities.SyncDestinationResult{Destination: "hardcover"},
	)))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.FailedRuns)
	assert.Equal(t, int64(2), stats.TotalOutcomes)
	assert.Equal(t, int64(1), stats.ByClassification[entities.ClassificationSynced])
	assert.Equal(t, int64(1), stats.ByClassification[entities.ClassificationSkipped])
	assert.Equal(t, DestinationStats{Attempted: 1, Succeeded: 1}, stats.ByDestination["hardcover"])
	assert.Equal(t, DestinationStats{Attempted: 1, Succeeded: 0}, stats.ByDestination["storygraph"])
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, "run1", stats.LastRun.RunID)
}
