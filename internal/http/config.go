package http

import "github.com/charmbracelet/log"

// RouterConfig contains all dependencies needed to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database Pinger
	History  HistoryReader
	Mappings MappingReader
	Logs     LogReader

	// Sync engine; nil when the progress source is not configured
	Runner SyncRunner
	Tester ConnectionTester

	// Progress source; nil when not configured
	Source ItemFetcher

	// Task queue (optional)
	Queue SyncQueue

	Logger *log.Logger

	// Application info
	Version string
}
