package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/shelfsync/internal/engine"
)

const connectionTestTimeout = 30 * time.Second

// SyncController triggers sync cycles and reports connection status.
type SyncController struct {
	runner SyncRunner
	queue  SyncQueue
	tester ConnectionTester
	logger *log.Logger
}

// NewSyncController creates a SyncController. queue may be nil, in which case
// triggered cycles run in a background goroutine.
func NewSyncController(runner SyncRunner, queue SyncQueue, tester ConnectionTester, logger *log.Logger) *SyncController {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncController{
		runner: runner,
		queue:  queue,
		tester: tester,
		logger: logger,
	}
}

// TriggerSync handles POST /api/sync?rematch=true
// Answers 202 when a cycle was queued and 409 when one is already running.
func (sc *SyncController) TriggerSync(c *gin.Context) {
	rematch, ok := parseBoolQuery(c, "rematch")
	if !ok {
		return
	}

	if sc.runner == nil {
		respondError(c, http.StatusServiceUnavailable, "sync_unavailable", "sync engine is not configured")
		return
	}
	if sc.runner.IsRunning() {
		respondError(c, http.StatusConflict, "sync_running", engine.ErrCycleInProgress.Error())
		return
	}

	if sc.queue != nil {
		taskID, err := sc.queue.EnqueueSync(c.Request.Context(), rematch)
		if err != nil {
			respondInternalError(c, err, "enqueue sync")
			return
		}
		respondAccepted(c, "sync enqueued", gin.H{"task_id": taskID, "rematch": rematch})
		return
	}

	go sc.runDetached(rematch)
	respondAccepted(c, "sync started", gin.H{"rematch": rematch})
}

func (sc *SyncController) runDetached(rematch bool) {
	ctx := context.Background()

	var err error
	if rematch {
		_, err = sc.runner.Rematch(ctx)
	} else {
		_, err = sc.runner.RunCycle(ctx)
	}
	if errors.Is(err, engine.ErrCycleInProgress) {
		sc.logger.Info("triggered sync dropped, a cycle is already running")
	}
}

// GetTaskStatus handles GET /api/sync/tasks/:id
func (sc *SyncController) GetTaskStatus(c *gin.Context) {
	if sc.queue == nil {
		respondError(c, http.StatusNotFound, "tasks_disabled", "task queue is not enabled")
		return
	}

	taskID := c.Param("id")
	if taskID == "" {
		respondBadRequest(c, "task ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := sc.queue.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// ConnectionStatus is the result of testing one connection.
type ConnectionStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TestConnections handles GET /api/connections
func (sc *SyncController) TestConnections(c *gin.Context) {
	if sc.tester == nil {
		respondError(c, http.StatusServiceUnavailable, "sync_unavailable", "sync engine is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), connectionTestTimeout)
	defer cancel()

	results := sc.tester.TestConnections(ctx)

	connections := make([]ConnectionStatus, 0, len(results))
	allOK := true
	for name, err := range results {
		status := ConnectionStatus{Name: name, OK: err == nil}
		if err != nil {
			status.Error = err.Error()
			allOK = false
		}
		connections = append(connections, status)
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].Name < connections[j].Name
	})

	c.JSON(http.StatusOK, gin.H{
		"ok":          allOK,
		"connections": connections,
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
