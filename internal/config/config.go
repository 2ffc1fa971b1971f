package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Logging
		Audiobookshelf
		Hardcover
		StoryGraph
		Sync
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
		HTTPClientTimeout        time.Duration
	}
	Database struct {
		Path string
	}
	Logging struct {
		Level string
	}
	Audiobookshelf struct {
		URL   string
		Token string
	}
	Hardcover struct {
		Enabled   bool
		APIKey    string
		APIURL    string
		RateLimit float64 // Requests per second
	}
	StoryGraph struct {
		Enabled   bool
		Cookie    string // remember_user_token of a signed-in browser session
		Username  string
		BaseURL   string
		RateLimit float64 // Requests per second
	}
	Sync struct {
		Enabled          bool
		Schedule         string // Cron format: "0 * * * *" = hourly
		OnStartup        bool
		MinListenMinutes int
		PushTimeout      time.Duration
		StaleAfter       time.Duration
	}
	Tasks struct {
		Enabled            bool
		DatabasePath       string
		Workers            int
		ReleaseAfter       time.Duration
		CleanupInterval    time.Duration
		LogRetention       time.Duration
		LogMaxEntries      int
		LogCleanupSchedule string
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("http_client_timeout", "30s")
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("log_level", "info")

	v.SetDefault("abs_url", "")
	v.SetDefault("abs_token", "")

	v.SetDefault("hardcover_enabled", true)
	v.SetDefault("hardcover_api_key", "")
	v.SetDefault("hardcover_api_url", DefaultHardcoverAPIURL)
	v.SetDefault("hardcover_rate_limit", 1.0)

	v.SetDefault("storygraph_enabled", true)
	v.SetDefault("storygraph_cookie", "")
	v.SetDefault("storygraph_username", "")
	v.SetDefault("storygraph_base_url", DefaultStoryGraphURL)
	v.SetDefault("storygraph_rate_limit", 0.5)

	v.SetDefault("sync_enabled", true)
	v.SetDefault("sync_schedule", DefaultSyncSchedule)
	v.SetDefault("sync_on_startup", true)
	v.SetDefault("min_listen_minutes", DefaultMinListenMinutes)
	v.SetDefault("push_timeout", "30s")
	v.SetDefault("sync_stale_after", "5m")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_database_path", DefaultTasksDatabasePath)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("sync_log_retention", "720h")
	v.SetDefault("sync_log_max_entries", 5000)
	v.SetDefault("sync_log_cleanup_schedule", DefaultLogCleanupSchedule)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
			HTTPClientTimeout:        v.GetDuration("HTTP_CLIENT_TIMEOUT"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Logging: Logging{
			Level: v.GetString("LOG_LEVEL"),
		},
		Audiobookshelf: Audiobookshelf{
			URL:   v.GetString("ABS_URL"),
			Token: v.GetString("ABS_TOKEN"),
		},
		Hardcover: Hardcover{
			Enabled:   v.GetBool("HARDCOVER_ENABLED"),
			APIKey:    v.GetString("HARDCOVER_API_KEY"),
			APIURL:    v.GetString("HARDCOVER_API_URL"),
			RateLimit: v.GetFloat64("HARDCOVER_RATE_LIMIT"),
		},
		StoryGraph: StoryGraph{
			Enabled:   v.GetBool("STORYGRAPH_ENABLED"),
			Cookie:    v.GetString("STORYGRAPH_COOKIE"),
			Username:  v.GetString("STORYGRAPH_USERNAME"),
			BaseURL:   v.GetString("STORYGRAPH_BASE_URL"),
			RateLimit: v.GetFloat64("STORYGRAPH_RATE_LIMIT"),
		},
		Sync: Sync{
			Enabled:          v.GetBool("SYNC_ENABLED"),
			Schedule:         v.GetString("SYNC_SCHEDULE"),
			OnStartup:        v.GetBool("SYNC_ON_STARTUP"),
			MinListenMinutes: v.GetInt("MIN_LISTEN_MINUTES"),
			PushTimeout:      v.GetDuration("PUSH_TIMEOUT"),
			StaleAfter:       v.GetDuration("SYNC_STALE_AFTER"),
		},
		Tasks: Tasks{
			Enabled:            v.GetBool("TASKS_ENABLED"),
			DatabasePath:       v.GetString("TASKS_DATABASE_PATH"),
			Workers:            v.GetInt("TASK_WORKERS"),
			ReleaseAfter:       v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:    v.GetDuration("TASK_CLEANUP_INTERVAL"),
			LogRetention:       v.GetDuration("SYNC_LOG_RETENTION"),
			LogMaxEntries:      v.GetInt("SYNC_LOG_MAX_ENTRIES"),
			LogCleanupSchedule: v.GetString("SYNC_LOG_CLEANUP_SCHEDULE"),
		},
	}
}

// SourceConfigured reports whether Audiobookshelf can be reached.
func (c *Config) SourceConfigured() bool {
	return c.Audiobookshelf.URL != "" && c.Audiobookshelf.Token != ""
}

// HardcoverConfigured reports whether Hardcover is enabled and has an API key.
func (c *Config) HardcoverConfigured() bool {
	return c.Hardcover.Enabled && c.Hardcover.APIKey != ""
}

// StoryGraphConfigured reports whether StoryGraph is enabled and has a session cookie.
func (c *Config) StoryGraphConfigured() bool {
	return c.StoryGraph.Enabled && c.StoryGraph.Cookie != ""
}

// IsConfigured reports whether there is a source and at least one destination to sync to.
func (c *Config) IsConfigured() bool {
	return c.SourceConfigured() && (c.HardcoverConfigured() || c.StoryGraphConfigured())
}

// MinListenSeconds returns the engagement threshold in seconds.
func (c *Config) MinListenSeconds() float64 {
	return float64(c.Sync.MinListenMinutes) * 60
}
