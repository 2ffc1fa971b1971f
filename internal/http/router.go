package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Runner, cfg.Version)
	runs := NewRunsController(cfg.History)
	mappings := NewMappingsController(cfg.Mappings)
	sync := NewSyncController(cfg.Runner, cfg.Queue, cfg.Tester, cfg.Logger)
	items := NewSourceController(cfg.Source)
	logs := NewLogsController(cfg.Logs)

	router.GET("/health", health.Status)

	api := router.Group("/api")
	{
		api.GET("/runs", runs.ListRuns)
		api.GET("/runs/:run_id", runs.GetRun)
		api.GET("/runs/:run_id/history", runs.GetRunHistory)
		api.GET("/history", runs.ListHistory)
		api.GET("/stats", runs.GetStats)

		api.GET("/mappings", mappings.ListMappings)
		api.GET("/mappings/:book_id", mappings.GetMapping)

		api.GET("/logs", logs.ListLogs)

		api.POST("/sync", sync.TriggerSync)
		api.GET("/sync/tasks/:id", sync.GetTaskStatus)
		api.GET("/connections", sync.TestConnections)

		api.GET("/source/items/:id", items.GetItem)
	}

	return router
}
