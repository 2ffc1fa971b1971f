package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/shelfsync/internal/database"
	"github.com/mrlokans/shelfsync/internal/database/history"
	"github.com/mrlokans/shelfsync/internal/database/mappings"
	"github.com/mrlokans/shelfsync/internal/database/synclog"
	"github.com/mrlokans/shelfsync/internal/destinations"
	"github.com/mrlokans/shelfsync/internal/destinations/hardcover"
	"github.com/mrlokans/shelfsync/internal/destinations/storygraph"
	"github.com/mrlokans/shelfsync/internal/engine"
	"github.com/mrlokans/shelfsync/internal/http"
	"github.com/mrlokans/shelfsync/internal/matcher"
	"github.com/mrlokans/shelfsync/internal/scheduler"
	"github.com/mrlokans/shelfsync/internal/source"
	"github.com/mrlokans/shelfsync/internal/source/audiobookshelf"
	"github.com/mrlokans/shelfsync/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Match cache
var _ matcher.MappingStore = (*mappings.Repository)(nil)
var _ http.MappingReader = (*mappings.Repository)(nil)

// Sync history
var _ engine.HistoryStore = (*history.Repository)(nil)
var _ http.HistoryReader = (*history.Repository)(nil)

// Sync log
var _ engine.LogSink = (*synclog.Repository)(nil)
var _ tasks.SyncLogCleaner = (*synclog.Repository)(nil)
var _ http.LogReader = (*synclog.Repository)(nil)

var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// External Services
// =============================================================================

// Progress source
var _ source.Source = (*audiobookshelf.Client)(nil)

// Destinations
var _ destinations.Destination = (*hardcover.Client)(nil)
var _ destinations.Destination = (*storygraph.Client)(nil)
var _ destinations.CycleScoped = (*hardcover.Client)(nil)
var _ destinations.CycleScoped = (*storygraph.Client)(nil)

// =============================================================================
// Sync Orchestration
// =============================================================================

var _ engine.BookMatcher = (*matcher.Matcher)(nil)

var _ scheduler.CycleRunner = (*engine.Engine)(nil)
var _ tasks.CycleRunner = (*engine.Engine)(nil)
var _ http.SyncRunner = (*engine.Engine)(nil)
var _ http.ConnectionTester = (*engine.Engine)(nil)
var _ http.SyncQueue = (*tasks.Client)(nil)
