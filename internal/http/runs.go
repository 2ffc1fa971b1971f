package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunsController serves the sync run history.
type RunsController struct {
	store HistoryReader
}

func NewRunsController(store HistoryReader) *RunsController {
	return &RunsController{store: store}
}

// ListRuns handles GET /api/runs
func (rc *RunsController) ListRuns(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	runs, total, err := rc.store.ListRuns(limit, offset)
	if err != nil {
		respondInternalError(c, err, "list runs")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(runs, total, limit, offset))
}

// GetRun handles GET /api/runs/:run_id
func (rc *RunsController) GetRun(c *gin.Context) {
	run, err := rc.store.GetRun(c.Param("run_id"))
	if err != nil {
		respondInternalError(c, err, "get run")
		return
	}
	if run == nil {
		respondNotFound(c, "run")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":         run,
		"duration_ms": run.Duration().Milliseconds(),
	})
}

// GetRunHistory handles GET /api/runs/:run_id/history
// Returns every per-book outcome written by the run.
func (rc *RunsController) GetRunHistory(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := rc.store.GetRun(runID)
	if err != nil {
		respondInternalError(c, err, "get run")
		return
	}
	if run == nil {
		respondNotFound(c, "run")
		return
	}

	outcomes, err := rc.store.ListRunOutcomes(runID)
	if err != nil {
		respondInternalError(c, err, "list run outcomes")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"history": outcomes,
		"count":   len(outcomes),
	})
}

// ListHistory handles GET /api/history?book_id=&limit=&offset=
func (rc *RunsController) ListHistory(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	outcomes, total, err := rc.store.ListOutcomes(c.Query("book_id"), limit, offset)
	if err != nil {
		respondInternalError(c, err, "list history")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(outcomes, total, limit, offset))
}

// GetStats handles GET /api/stats
func (rc *RunsController) GetStats(c *gin.Context) {
	stats, err := rc.store.GetStats()
	if err != nil {
		respondInternalError(c, err, "get stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
