package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/shelfsync/internal/logging"
)

// Client wraps backlite to provide task queue functionality.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config
	logger *log.Logger

	mu      sync.RWMutex
	started bool
}

// NewClient creates a new task queue client backed by a dedicated SQLite database.
func NewClient(dbPath string, cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &queueLogger{logger: logger},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	return &Client{
		client: client,
		db:     db,
		config: cfg,
		logger: logger,
	}, nil
}

// Register registers task queues with the client.
// Must be called before Start().
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start begins processing tasks. It does not block.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("task queue started", "workers", c.config.Workers)
	c.client.Start(ctx)
}

// Stop gracefully shuts down the task queue, waiting for active tasks to complete.
// Returns true if all workers finished before the context deadline.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.RLock()
	if !c.started {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	c.logger.Info("stopping task queue")
	success := c.client.Stop(ctx)
	if success {
		c.logger.Info("task queue stopped gracefully")
	} else {
		c.logger.Warn("task queue stopped with timeout, some tasks may not have completed")
	}
	return success
}

// Close releases all resources. Should be called after Stop().
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Add starts an operation to enqueue one or more tasks.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.client.Add(tasks...)
}

// EnqueueSync queues a manual sync and returns the task id.
func (c *Client) EnqueueSync(ctx context.Context, rematch bool) (string, error) {
	ids, err := c.client.Add(SyncTask{Rematch: rematch, Trigger: TriggerManual}).Ctx(ctx).Save()
	if err != nil {
		return "", fmt.Errorf("enqueue sync task: %w", err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("enqueue sync task: no task id returned")
	}
	return ids[0], nil
}

// EnqueueLogCleanup queues a sync log cleanup and returns the task id.
func (c *Client) EnqueueLogCleanup(ctx context.Context, retention time.Duration, maxEntries int) (string, error) {
	task := CleanupSyncLogsTask{RetentionHours: int(retention / time.Hour), MaxEntries: maxEntries}
	ids, err := c.client.Add(task).Ctx(ctx).Save()
	if err != nil {
		return "", fmt.Errorf("enqueue log cleanup task: %w", err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("enqueue log cleanup task: no task id returned")
	}
	return ids[0], nil
}

// Status returns the status of a task by ID.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.client.Status(ctx, taskID)
}

// queueLogger forwards backlite's log lines to the service logger.
type queueLogger struct {
	logger *log.Logger
}

func (l *queueLogger) Info(message string, params ...any) {
	l.logger.Info("[task] "+message, params...)
}

func (l *queueLogger) Error(message string, params ...any) {
	l.logger.Error("[task] "+message, params...)
}
