// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations
//	├── mappings/        # Match cache (source book -> destination ids)
//	├── history/         # Sync runs and per-book sync outcomes
//	└── synclog/         # Warnings and errors logged during runs
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./shelfsync.db")
//
//	mappingRepo := mappings.NewRepository(db.DB)
//	historyRepo := history.NewRepository(db.DB)
//	syncLogRepo := synclog.NewRepository(db.DB)
//
// # Interface Implementations
//
//   - mappings.Repository: implements matcher.MappingStore
//   - history.Repository: implements engine.HistoryStore
//   - synclog.Repository: implements engine.LogSink and tasks.SyncLogCleaner
//
// Compile-time checks live in internal/interfaces/checks.go.
package database
