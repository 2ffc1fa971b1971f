// Package engine runs synchronization cycles: it reads in-progress books from the
// progress source, resolves them through the matcher, pushes progress to every
// destination with a resolved identifier and records the outcome of each book.
//
// A cycle never reports failure through its error return. Failures are captured in
// the returned run's Status and ErrorMessage; the only error RunCycle returns is
// ErrCycleInProgress.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mrlokans/shelfsync/internal/database/history"
	"github.com/mrlokans/shelfsync/internal/destinations"
	"github.com/mrlokans/shelfsync/internal/entities"
	"github.com/mrlokans/shelfsync/internal/logging"
	"github.com/mrlokans/shelfsync/internal/source"
)

var (
	// ErrCycleInProgress is returned when a cycle is triggered while another one is running.
	ErrCycleInProgress = errors.New("sync already running")
	// ErrSourceNotConfigured is reported on runs attempted without a progress source.
	ErrSourceNotConfigured = errors.New("progress source is not configured")
)

// SourceKey is the TestConnections key of the progress source.
const SourceKey = "source"

const (
	DefaultMinListenSeconds = 600
	DefaultPushTimeout      = 30 * time.Second
	DefaultStaleAfter       = 5 * time.Minute
)

// HistoryStore records run summaries and per-book outcomes. StartRun returns
// history.ErrRunActive while another run, in this or another process, is alive.
type HistoryStore interface {
	StartRun(run *entities.SyncRun, staleAfter time.Duration) error
	Heartbeat(runID string) error
	FinishRun(run *entities.SyncRun) error
	AppendOutcome(outcome *entities.SyncHistory) error
}

// BookMatcher resolves a progress record to destination identifiers.
type BookMatcher interface {
	Match(ctx context.Context, record entities.ProgressRecord, useCache bool) entities.MatchResult
}

// Options tune a single cycle.
type Options struct {
	// MinListenSeconds excludes books listened to for less than this.
	MinListenSeconds float64
	// PushTimeout bounds every destination push of a single book.
	PushTimeout time.Duration
	// UseCache lets the matcher answer from cached mappings.
	UseCache bool
	// StaleAfter is how long a running run may go without a heartbeat before it is
	// considered dead. Heartbeats are sent every StaleAfter/5.
	StaleAfter time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MinListenSeconds: DefaultMinListenSeconds,
		PushTimeout:      DefaultPushTimeout,
		UseCache:         true,
		StaleAfter:       DefaultStaleAfter,
	}
}

// Engine orchestrates sync cycles. At most one cycle runs at a time.
type Engine struct {
	source       source.Source
	matcher      BookMatcher
	destinations []destinations.Destination
	store        HistoryStore
	opts         Options
	logger       *log.Logger
	logs         LogSink

	mu       sync.Mutex
	running  atomic.Bool
	newRunID func() string
}

// New creates an engine. src may be nil when no source is configured; every cycle
// then finishes as failed without doing any I/O.
func New(src source.Source, matcher BookMatcher, dests []destinations.Destination, store HistoryStore, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Engine{
		source:       src,
		matcher:      matcher,
		destinations: dests,
		store:        store,
		opts:         opts,
		logger:       logger,
		newRunID:     generateRunID,
	}
}

// SetLogSink makes every run persist its warnings and errors to sink.
// It must be called before the first cycle.
func (e *Engine) SetLogSink(sink LogSink) {
	e.logs = sink
}

// Options returns the engine's default cycle options.
func (e *Engine) Options() Options {
	return e.opts
}

// IsRunning reports whether a cycle is currently executing.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// RunCycle executes one cycle with the engine's default options.
func (e *Engine) RunCycle(ctx context.Context) (*entities.SyncRun, error) {
	return e.RunCycleWithOptions(ctx, e.opts)
}

// Rematch executes one cycle that ignores cached mappings.
func (e *Engine) Rematch(ctx context.Context) (*entities.SyncRun, error) {
	opts := e.opts
	opts.UseCache = false
	return e.RunCycleWithOptions(ctx, opts)
}

// RunCycleWithOptions executes one cycle. It returns ErrCycleInProgress without
// recording a run if another cycle is running, either in this engine or in another
// process sharing the history database.
func (e *Engine) RunCycleWithOptions(ctx context.Context, opts Options) (*entities.SyncRun, error) {
	if !e.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.mu.Unlock()

	e.running.Store(true)
	defer e.running.Store(false)

	if opts.PushTimeout <= 0 {
		opts.PushTimeout = e.opts.PushTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = e.opts.StaleAfter
	}

	runID := e.newRunID()
	logger := &runLogger{Logger: logging.With(e.logger, "run_id", runID), runID: runID}

	if e.source == nil {
		now := time.Now()
		logger.Error("sync not started", "err", ErrSourceNotConfigured)
		return &entities.SyncRun{
			RunID:        runID,
			Status:       entities.SyncStatusFailed,
			ErrorMessage: ErrSourceNotConfigured.Error(),
			StartedAt:    now,
			CompletedAt:  &now,
		}, nil
	}

	logger.sink = e.logs

	run := &entities.SyncRun{
		RunID:     runID,
		Status:    entities.SyncStatusRunning,
		StartedAt: time.Now(),
	}
	if err := e.store.StartRun(run, opts.StaleAfter); err != nil {
		if errors.Is(err, history.ErrRunActive) {
			logger.Info("sync not started, another run is active")
			return nil, ErrCycleInProgress
		}
		logger.Error("failed to record sync run", "err", err)
	}

	logger.Info("starting sync run", "min_listen_minutes", opts.MinListenSeconds/60, "use_cache", opts.UseCache)

	stopHeartbeat := e.keepAlive(runID, opts.StaleAfter/5, logger)
	endCycle := e.beginCycle()
	err := e.processCandidates(ctx, run, opts, logger)
	endCycle()
	stopHeartbeat()

	now := time.Now()
	run.CompletedAt = &now
	if err != nil {
		run.Status = entities.SyncStatusFailed
		run.ErrorMessage = err.Error()
		logger.Error("sync run failed", "err", err, "processed", run.BooksProcessed)
	} else {
		run.Status = entities.SyncStatusCompleted
		logger.Info("sync run completed",
			"processed", run.BooksProcessed,
			"synced", run.BooksSynced,
			"skipped", run.BooksSkipped,
			"failed", run.BooksFailed,
			"duration", run.Duration(),
		)
	}

	if err := e.store.FinishRun(run); err != nil {
		logger.Error("failed to finish sync run", "err", err)
	}

	return run, nil
}

// keepAlive refreshes the run's heartbeat until the returned stop function is called.
func (e *Engine) keepAlive(runID string, every time.Duration, logger *runLogger) func() {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := e.store.Heartbeat(runID); err != nil {
					logger.Warn("failed to refresh run heartbeat", "err", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// beginCycle notifies cycle-scoped destinations and returns the matching end call.
func (e *Engine) beginCycle() func() {
	var scoped []destinations.CycleScoped
	for _, dest := range e.destinations {
		if cs, ok := dest.(destinations.CycleScoped); ok {
			cs.BeginCycle()
			scoped = append(scoped, cs)
		}
	}
	return func() {
		for _, cs := range scoped {
			cs.EndCycle()
		}
	}
}

// processCandidates lists the candidates and syncs them one by one. A listing failure,
// cancellation or panic aborts the loop; outcomes already appended are kept.
func (e *Engine) processCandidates(ctx context.Context, run *entities.SyncRun, opts Options, logger *runLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync aborted: %v", r)
		}
	}()

	records, err := e.source.ListInProgress(ctx, opts.MinListenSeconds)
	if err != nil {
		return fmt.Errorf("failed to list books in progress: %w", err)
	}

	logger.Info("retrieved books in progress", "count", len(records))

	for _, record := range records {
		if !record.MeetsEngagement(opts.MinListenSeconds) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync cancelled: %w", err)
		}

		outcome := e.syncBook(ctx, run.RunID, record, opts, logger)

		run.BooksProcessed++
		switch outcome.Classification {
		case entities.ClassificationSynced:
			run.BooksSynced++
		case entities.ClassificationFailed:
			run.BooksFailed++
		default:
			run.BooksSkipped++
		}

		if err := e.store.AppendOutcome(outcome); err != nil {
			logger.Error("failed to save sync history", "book_id", record.SourceBookID, "err", err)
		}
	}

	return nil
}

// syncBook matches one record and pushes it to every destination with a resolved id.
func (e *Engine) syncBook(ctx context.Context, runID string, record entities.ProgressRecord, opts Options, logger *runLogger) *entities.SyncHistory {
	logger.Debug("processing book", "title", record.Title, "progress", record.ProgressPercent)

	match := e.matcher.Match(ctx, record, opts.UseCache)

	outcome := &entities.SyncHistory{
		RunID:           runID,
		SourceBookID:    record.SourceBookID,
		Title:           record.Title,
		Author:          record.Author,
		ISBN:            record.ISBN,
		ASIN:            record.ASIN,
		ProgressPercent: roundPercent(record.ProgressPercent),
		IsFinished:      record.IsFinished,
		MatchMethod:     match.Method,
		MatchConfidence: match.Confidence,
		SyncedAt:        time.Now(),
	}

	results := make([]entities.SyncDestinationResult, len(e.destinations))
	for i, dest := range e.destinations {
		results[i].Destination = dest.Name()
		if id, ok := match.DestinationID(dest.Name()); ok {
			results[i].DestinationBookID = id
		}
	}

	if !match.HasAnyMatch() {
		logger.Warn("no match found for book", "title", record.Title, "isbn", record.ISBN, "asin", record.ASIN)
		outcome.Classification = entities.ClassificationSkipped
		outcome.Destinations = results
		return outcome
	}

	var wg sync.WaitGroup
	for i, dest := range e.destinations {
		catalogID := results[i].DestinationBookID
		if catalogID == "" {
			continue
		}
		results[i].Attempted = true

		wg.Add(1)
		go func(slot *entities.SyncDestinationResult, dest destinations.Destination, catalogID string) {
			defer wg.Done()
			if err := e.pushWithTimeout(ctx, dest, catalogID, record, opts.PushTimeout); err != nil {
				slot.Error = err.Error()
				logger.Warn("push failed", "destination", dest.Name(), "title", record.Title, "err", err)
				return
			}
			slot.Succeeded = true
		}(&results[i], dest, catalogID)
	}
	wg.Wait()

	outcome.Destinations = results
	outcome.Classification, outcome.Success = classify(results)

	if outcome.Success {
		logger.Info("synced book", "title", record.Title, "progress", outcome.ProgressPercent, "finished", record.IsFinished)
	}

	return outcome
}

// pushWithTimeout bounds a push even when the destination ignores its context.
func (e *Engine) pushWithTimeout(ctx context.Context, dest destinations.Destination, catalogID string, record entities.ProgressRecord, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &destinations.PushError{Destination: dest.Name(), Op: "push", Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- e.push(ctx, dest, catalogID, record)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &destinations.PushError{Destination: dest.Name(), Op: "push", Err: ctx.Err()}
	}
}

// push resolves the library entry for catalogID and sends the progress to it.
func (e *Engine) push(ctx context.Context, dest destinations.Destination, catalogID string, record entities.ProgressRecord) error {
	libraryID, err := e.libraryEntry(ctx, dest, catalogID, record)
	if err != nil {
		return &destinations.PushError{Destination: dest.Name(), Op: "add_to_library", Err: err}
	}

	if record.IsFinished {
		if err := dest.MarkFinished(ctx, libraryID); err != nil {
			return &destinations.PushError{Destination: dest.Name(), Op: "mark_finished", Err: err}
		}
		return nil
	}

	percent := int(record.ProgressPercent)
	if err := dest.UpdateProgress(ctx, libraryID, percent, destinations.StatusForPercent(percent)); err != nil {
		return &destinations.PushError{Destination: dest.Name(), Op: "update_progress", Err: err}
	}
	return nil
}

// libraryEntry returns the user's library entry for catalogID, adding the book first
// when it is not in the library yet.
func (e *Engine) libraryEntry(ctx context.Context, dest destinations.Destination, catalogID string, record entities.ProgressRecord) (string, error) {
	entry, err := dest.FindInLibrary(ctx, destinations.LibraryQuery{
		ISBN:   record.ISBN,
		ASIN:   record.ASIN,
		Title:  record.Title,
		Author: record.Author,
	})
	if err != nil {
		e.logger.Debug("library lookup failed", "destination", dest.Name(), "title", record.Title, "err", err)
	} else if entry != nil && entry.LibraryID != "" && (entry.CatalogID == "" || entry.CatalogID == catalogID) {
		return entry.LibraryID, nil
	}

	status := destinations.StatusCurrentlyReading
	if record.IsFinished {
		status = destinations.StatusFinished
	}

	libraryID, err := dest.AddToLibrary(ctx, catalogID, status)
	if err != nil {
		return "", err
	}
	if libraryID == "" {
		return "", fmt.Errorf("no library entry created for book %s", catalogID)
	}
	return libraryID, nil
}

// TestConnections checks the source and every destination. A nil error means reachable.
func (e *Engine) TestConnections(ctx context.Context) map[string]error {
	results := make(map[string]error, len(e.destinations)+1)

	if e.source == nil {
		results[SourceKey] = ErrSourceNotConfigured
	} else {
		results[SourceKey] = e.source.TestConnection(ctx)
	}

	for _, dest := range e.destinations {
		results[dest.Name()] = dest.TestConnection(ctx)
	}

	return results
}

// classify folds per-destination results into the book classification and overall success.
func classify(results []entities.SyncDestinationResult) (entities.Classification, bool) {
	anyError := false
	for _, r := range results {
		if r.Succeeded {
			return entities.ClassificationSynced, true
		}
		if r.Attempted && r.Error != "" {
			anyError = true
		}
	}
	if anyError {
		return entities.ClassificationFailed, false
	}
	return entities.ClassificationSkipped, false
}

func roundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}

func generateRunID() string {
	return uuid.New().String()[:8]
}
