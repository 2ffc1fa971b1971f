package entrypoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/shelfsync/internal/config"
	"github.com/mrlokans/shelfsync/internal/database/synclog"
	"github.com/mrlokans/shelfsync/internal/entities"
	"github.com/mrlokans/shelfsync/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(t.TempDir(), "shelfsync.db")
	cfg.Sync.Enabled = true
	cfg.Sync.Schedule = "0 * * * *"
	cfg.Sync.MinListenMinutes = 10
	cfg.Hardcover.Enabled = true
	cfg.StoryGraph.Enabled = true
	return cfg
}

func TestBuildDestinations(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		assert.Empty(t, buildDestinations(testConfig(t)))
	})

	t.Run("hardcover only", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Hardcover.APIKey = "key"

		dests := buildDestinations(cfg)
		require.Len(t, dests, 1)
		assert.Equal(t, "hardcover", dests[0].Name())
	})

	t.Run("both in fixed order", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Hardcover.APIKey = "key"
		cfg.StoryGraph.Cookie = "token"

		dests := buildDestinations(cfg)
		require.Len(t, dests, 2)
		assert.Equal(t, "hardcover", dests[0].Name())
		assert.Equal(t, "storygraph", dests[1].Name())
	})

	t.Run("disabled destination is skipped", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Hardcover.APIKey = "key"
		cfg.Hardcover.Enabled = false

		assert.Empty(t, buildDestinations(cfg))
	})
}

func TestBuildSource(t *testing.T) {
	cfg := testConfig(t)
	assert.Nil(t, buildSource(cfg, logging.Discard()))

	cfg.Audiobookshelf.URL = "http://abs.local"
	cfg.Audiobookshelf.Token = "token"
	assert.NotNil(t, buildSource(cfg, logging.Discard()))
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t)

	app, err := NewApp(cfg, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Engine)
	assert.Equal(t, float64(600), app.Engine.Options().MinListenSeconds)
	assert.True(t, app.Engine.Options().UseCache)
	require.NoError(t, app.DB.Ping())
	assert.NotNil(t, app.SyncLogs)
}

func TestNewMaintenance_CleansLogsInProcess(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tasks.LogRetention = time.Hour
	cfg.Tasks.LogMaxEntries = 10

	app, err := NewApp(cfg, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.SyncLogs.AppendLog(&entities.SyncLog{Level: "warn", Message: "old", CreatedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, app.SyncLogs.AppendLog(&entities.SyncLog{Level: "error", Message: "recent"}))

	maintenance, err := newMaintenance(app, nil)
	require.NoError(t, err)
	maintenance.RunAll(context.Background())

	logs, total, err := app.SyncLogs.ListLogs(synclog.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, "recent", logs[0].Message)
}

func TestNewMaintenance_RejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tasks.LogCleanupSchedule = "daily"

	app, err := NewApp(cfg, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	_, err = newMaintenance(app, nil)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cfg := testConfig(t)
	assert.NoError(t, ValidateConfig(cfg))

	cfg.Sync.Schedule = "hourly"
	assert.Error(t, ValidateConfig(cfg))

	cfg.Sync.Enabled = false
	assert.NoError(t, ValidateConfig(cfg))

	cfg.Sync.MinListenMinutes = -1
	assert.Error(t, ValidateConfig(cfg))

	cfg.Sync.MinListenMinutes = 10
	cfg.Tasks.LogCleanupSchedule = "daily"
	assert.Error(t, ValidateConfig(cfg))
}
