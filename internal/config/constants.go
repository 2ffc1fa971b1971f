package config

const (
	// DefaultDatabasePath is the default path of the sync database
	DefaultDatabasePath = "./shelfsync.db"

	// DefaultTasksDatabasePath is the default path of the task queue database
	DefaultTasksDatabasePath = "./shelfsync-tasks.db"

	DefaultHardcoverAPIURL  = "https://api.hardcover.app/v1/graphql"
	DefaultStoryGraphURL    = "https://app.thestorygraph.com"
	DefaultSyncSchedule     = "0 * * * *"
	DefaultMinListenMinutes = 10

	// DefaultLogCleanupSchedule prunes the sync log daily at 03:15
	DefaultLogCleanupSchedule = "15 3 * * *"
)
