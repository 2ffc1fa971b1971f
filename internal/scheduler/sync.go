// Package scheduler triggers sync cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/shelfsync/internal/engine"
	"github.com/mrlokans/shelfsync/internal/entities"
	"github.com/mrlokans/shelfsync/internal/logging"
)

// CycleRunner runs one sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*entities.SyncRun, error)
}

// SyncScheduler runs sync cycles periodically
type SyncScheduler struct {
	runner   CycleRunner
	schedule string
	logger   *log.Logger

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewSyncScheduler creates a new scheduler instance
func NewSyncScheduler(runner CycleRunner, schedule string, logger *log.Logger) *SyncScheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SyncScheduler{
		runner:   runner,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start begins the scheduler
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateCronSchedule(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)
	s.ctx = cancelCtx

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runSync(cancelCtx, "schedule")
	})
	if err != nil {
		s.cancelFunc()
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := GetNextRunTime(s.schedule, time.Now())
	s.logger.Info("sync scheduler started",
		"schedule", s.schedule,
		"description", GetCronDescription(s.schedule),
		"next_run", nextRun)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler and waits for a running cycle to finish
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}

	stopCtx := s.cron.Stop()
	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.mu.Unlock()

	<-stopCtx.Done()
	s.wg.Wait()

	s.logger.Info("sync scheduler stopped")
}

// RunNow triggers an immediate cycle in the background
func (s *SyncScheduler) RunNow() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(ctx, "manual")
	}()
}

// IsRunning returns whether the scheduler is active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sync will occur
func (s *SyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runSync runs a cycle, dropping the trigger when one is already in progress
func (s *SyncScheduler) runSync(ctx context.Context, trigger string) {
	run, err := s.runner.RunCycle(ctx)
	if errors.Is(err, engine.ErrCycleInProgress) {
		s.logger.Info("sync skipped, previous cycle still running", "trigger", trigger)
		return
	}
	if err != nil {
		s.logger.Error("sync failed", "trigger", trigger, "err", err)
		return
	}

	if run.Status == entities.SyncStatusFailed {
		s.logger.Warn("sync finished with failure", "trigger", trigger, "run_id", run.RunID, "err", run.ErrorMessage)
		return
	}
	s.logger.Info("sync finished", "trigger", trigger, "run_id", run.RunID,
		"processed", run.BooksProcessed, "synced", run.BooksSynced)
}
