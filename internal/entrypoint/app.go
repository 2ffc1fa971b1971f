// Package entrypoint assembles the service from configuration and runs it.
package entrypoint

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/mrlokans/shelfsync/internal/config"
	"github.com/mrlokans/shelfsync/internal/database"
	"github.com/mrlokans/shelfsync/internal/database/history"
	"github.com/mrlokans/shelfsync/internal/database/mappings"
	"github.com/mrlokans/shelfsync/internal/database/synclog"
	"github.com/mrlokans/shelfsync/internal/destinations"
	"github.com/mrlokans/shelfsync/internal/destinations/hardcover"
	"github.com/mrlokans/shelfsync/internal/destinations/storygraph"
	"github.com/mrlokans/shelfsync/internal/engine"
	"github.com/mrlokans/shelfsync/internal/matcher"
	"github.com/mrlokans/shelfsync/internal/source"
	"github.com/mrlokans/shelfsync/internal/source/audiobookshelf"
)

// App holds the wired components shared by every command.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	DB       *database.Database
	History  *history.Repository
	Mappings *mappings.Repository
	SyncLogs *synclog.Repository
	Engine   *engine.Engine

	// Source is nil when Audiobookshelf is not configured.
	Source source.Source
}

// NewApp opens the database and wires the source, destinations, matcher and engine.
// Adapters are only created for services that are configured.
func NewApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	historyRepo := history.NewRepository(db.DB)
	mappingsRepo := mappings.NewRepository(db.DB)
	syncLogRepo := synclog.NewRepository(db.DB)

	src := buildSource(cfg, logger)
	dests := buildDestinations(cfg)
	if src == nil {
		logger.Warn("Audiobookshelf is not configured, set ABS_URL and ABS_TOKEN to enable syncing")
	}
	if len(dests) == 0 {
		logger.Warn("no destinations configured, set HARDCOVER_API_KEY or STORYGRAPH_COOKIE")
	}
	for _, d := range dests {
		logger.Info("destination enabled", "name", d.Name())
	}

	bookMatcher := matcher.New(mappingsRepo, dests, logger.WithPrefix("matcher"))

	opts := engine.DefaultOptions()
	opts.MinListenSeconds = cfg.MinListenSeconds()
	if cfg.Sync.PushTimeout > 0 {
		opts.PushTimeout = cfg.Sync.PushTimeout
	}
	if cfg.Sync.StaleAfter > 0 {
		opts.StaleAfter = cfg.Sync.StaleAfter
	}

	eng := engine.New(src, bookMatcher, dests, historyRepo, opts, logger.WithPrefix("sync"))
	eng.SetLogSink(syncLogRepo)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		History:  historyRepo,
		Mappings: mappingsRepo,
		SyncLogs: syncLogRepo,
		Engine:   eng,
		Source:   src,
	}, nil
}

// Close releases the database connection.
func (a *App) Close() {
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("error closing database", "err", err)
	}
}

// buildSource returns nil when Audiobookshelf is not configured.
func buildSource(cfg *config.Config, logger *log.Logger) source.Source {
	if !cfg.SourceConfigured() {
		return nil
	}
	return audiobookshelf.NewClient(audiobookshelf.Config{
		URL:     cfg.Audiobookshelf.URL,
		Token:   cfg.Audiobookshelf.Token,
		Timeout: cfg.Global.HTTPClientTimeout,
	}, logger.WithPrefix("audiobookshelf"))
}

func buildDestinations(cfg *config.Config) []destinations.Destination {
	var dests []destinations.Destination

	if cfg.HardcoverConfigured() {
		dests = append(dests, hardcover.NewClient(hardcover.Config{
			APIKey:    cfg.Hardcover.APIKey,
			APIURL:    cfg.Hardcover.APIURL,
			Timeout:   cfg.Global.HTTPClientTimeout,
			RateLimit: cfg.Hardcover.RateLimit,
		}))
	}

	if cfg.StoryGraphConfigured() {
		dests = append(dests, storygraph.NewClient(storygraph.Config{
			Cookie:    cfg.StoryGraph.Cookie,
			Username:  cfg.StoryGraph.Username,
			BaseURL:   cfg.StoryGraph.BaseURL,
			Timeout:   cfg.Global.HTTPClientTimeout,
			RateLimit: cfg.StoryGraph.RateLimit,
		}))
	}

	return dests
}
