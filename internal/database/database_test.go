package database

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/shelfsync/internal/entities"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()
	dbPath := "./test_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := NewQuietDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}
	return db, cleanup
}

func TestNewDatabase_MigratesTables(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for _, table := range []string{"book_mapping", "sync_run", "sync_history", "sync_destination_result", "sync_log"} {
		assert.True(t, db.DB.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestDatabase_Ping(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.Ping())

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping())
}

func TestDatabase_HistoryWithDestinations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	row := &entities.SyncHistory{
		RunID:        "abcd1234",
		SourceBookID: "li_1",
		Title:        "Dune",
		SyncedAt:     time.Now(),
		Destinations: []entities.SyncDestinationResult{
			{Destination: "hardcover", DestinationBookID: "42", Attempted: true, Succeeded: true},
			{Destination: "storygraph"},
		},
	}
	require.NoError(t, db.DB.Create(row).Error)

	var loaded entities.SyncHistory
	require.NoError(t, db.DB.Preload("Destinations").First(&loaded, row.ID).Error)
	assert.Len(t, loaded.Destinations, 2)
}
