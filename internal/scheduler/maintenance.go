package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/shelfsync/internal/logging"
)

// Job is a housekeeping job run by the MaintenanceScheduler.
type Job func(ctx context.Context) error

type namedJob struct {
	name     string
	schedule string
	run      Job
}

// MaintenanceScheduler runs housekeeping jobs, such as sync log cleanup, on cron schedules.
type MaintenanceScheduler struct {
	logger *log.Logger
	cron   *cron.Cron

	mu         sync.Mutex
	jobs       []namedJob
	ctx        context.Context
	cancelFunc context.CancelFunc
	isRunning  bool
}

func NewMaintenanceScheduler(logger *log.Logger) *MaintenanceScheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MaintenanceScheduler{
		logger: logger,
		cron:   cron.New(cron.WithParser(cronParser)),
	}
}

// Add registers a job. Jobs must be added before Start.
func (m *MaintenanceScheduler) Add(name, schedule string, job Job) error {
	if err := ValidateCronSchedule(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", schedule, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return fmt.Errorf("cannot add %s: scheduler already started", name)
	}
	m.jobs = append(m.jobs, namedJob{name: name, schedule: schedule, run: job})
	return nil
}

// Start schedules every registered job.
func (m *MaintenanceScheduler) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return nil
	}

	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	for _, job := range m.jobs {
		job := job
		if _, err := m.cron.AddFunc(job.schedule, func() { m.runJob(m.ctx, job) }); err != nil {
			m.cancelFunc()
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		m.logger.Info("maintenance job scheduled", "job", job.name, "description", GetCronDescription(job.schedule))
	}

	m.cron.Start()
	m.isRunning = true
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (m *MaintenanceScheduler) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	m.cancelFunc()
	stopCtx := m.cron.Stop()
	m.mu.Unlock()

	<-stopCtx.Done()
}

// RunAll runs every registered job once, synchronously.
func (m *MaintenanceScheduler) RunAll(ctx context.Context) {
	m.mu.Lock()
	jobs := append([]namedJob(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.runJob(ctx, job)
	}
}

func (m *MaintenanceScheduler) runJob(ctx context.Context, job namedJob) {
	if err := job.run(ctx); err != nil {
		m.logger.Error("maintenance job failed", "job", job.name, "err", err)
		return
	}
	m.logger.Debug("maintenance job finished", "job", job.name)
}
