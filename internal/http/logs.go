package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfsync/internal/database/synclog"
)

// LogsController serves the warnings and errors recorded during sync runs.
type LogsController struct {
	store LogReader
}

func NewLogsController(store LogReader) *LogsController {
	return &LogsController{store: store}
}

// ListLogs handles GET /api/logs?level=&run_id=&limit=&offset=
func (lc *LogsController) ListLogs(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	filter := synclog.Filter{RunID: c.Query("run_id")}
	if raw := c.Query("level"); raw != "" {
		filter.Level = synclog.NormalizeLevel(raw)
		if filter.Level != "warn" && filter.Level != "error" {
			respondBadRequest(c, "invalid level")
			return
		}
	}

	logs, total, err := lc.store.ListLogs(filter, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list logs")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(logs, total, limit, offset))
}
