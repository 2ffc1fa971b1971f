package http

import (
	"context"
	"encoding/json"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/shelfsync/internal/database/history"
	"github.com/mrlokans/shelfsync/internal/database/synclog"
	"github.com/mrlokans/shelfsync/internal/entities"
)

// Each controller depends on the narrowest interface it needs; the
// repositories in internal/database satisfy them.

// HistoryReader provides read access to runs and per-book outcomes.
type HistoryReader interface {
	GetRun(runID string) (*entities.SyncRun, error)
	ListRuns(limit, offset int) ([]entities.SyncRun, int64, error)
	ListRunOutcomes(runID string) ([]entities.SyncHistory, error)
	ListOutcomes(sourceBookID string, limit, offset int) ([]entities.SyncHistory, int64, error)
	GetStats() (*history.Stats, error)
}

// MappingReader provides read access to the match cache.
type MappingReader interface {
	GetMapping(sourceBookID string) (*entities.BookMapping, error)
	ListMappings(limit, offset int) ([]entities.BookMapping, int64, error)
}

// LogReader lists the warnings and errors recorded during runs.
type LogReader interface {
	ListLogs(filter synclog.Filter, limit, offset int) ([]entities.SyncLog, int64, error)
}

// SyncRunner runs cycles directly when no task queue is configured.
type SyncRunner interface {
	RunCycle(ctx context.Context) (*entities.SyncRun, error)
	Rematch(ctx context.Context) (*entities.SyncRun, error)
	IsRunning() bool
}

// SyncQueue enqueues sync cycles on the task queue.
type SyncQueue interface {
	EnqueueSync(ctx context.Context, rematch bool) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// ConnectionTester checks reachability of the source and every destination.
type ConnectionTester interface {
	TestConnections(ctx context.Context) map[string]error
}

// ItemFetcher returns the raw payload of a source item.
type ItemFetcher interface {
	GetItem(ctx context.Context, id string) (json.RawMessage, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping() error
}
