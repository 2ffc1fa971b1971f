// Package interfaces documents the core abstractions used throughout the application.
//
// This package consolidates interface documentation to help contributors find
// extension points and see how to implement new functionality.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - MappingStore: Match cache read/write (internal/matcher/matcher.go)
//   - HistoryStore: Run summaries and per-book outcomes (internal/engine/engine.go)
//   - LogSink: Persists warnings and errors of a run (internal/engine/runlog.go)
//   - SyncLogCleaner: Sync log retention (internal/tasks/cleanup_logs.go)
//   - HistoryReader, MappingReader, LogReader: Reporting queries (internal/http/stores.go)
//
// ## External Service Interfaces
//
//   - Source: Listening progress source of truth (internal/source/source.go)
//   - Destination: Book tracking service (internal/destinations/destination.go)
//   - CycleScoped: Optional per-cycle caching for destinations (internal/destinations/destination.go)
//
// ## Orchestration Interfaces
//
//   - BookMatcher: Resolves a progress record to destination ids (internal/engine/engine.go)
//   - CycleRunner: Anything that runs a sync cycle (internal/scheduler, internal/tasks)
//   - SyncRunner, SyncQueue, ConnectionTester: HTTP trigger endpoints (internal/http/stores.go)
//
// # Adding a New Destination
//
// To push progress to another tracking service (e.g., Goodreads):
//
//  1. Create a client in internal/destinations/goodreads/
//
//     type Client struct {
//         httpClient *http.Client
//         limiter    *rate.Limiter
//     }
//
//     func (c *Client) Name() string { return "goodreads" }
//     func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*destinations.Match, error)
//     ...
//
//     var _ destinations.Destination = (*Client)(nil)
//
//     Lookups return (nil, nil) when nothing matches. Wrap connection and
//     auth failures with destinations.ErrUnavailable.
//
//  2. Add configuration keys in internal/config/config.go
//
//  3. Append the client in buildDestinations (internal/entrypoint/app.go).
//     The order of that list is the order used for matching and pushing.
//
// # Adding a New Progress Source
//
//  1. Implement source.Source in internal/source/<name>/
//
//     func (c *Client) ListInProgress(ctx context.Context, minListenSeconds float64) ([]entities.ProgressRecord, error)
//     func (c *Client) GetItem(ctx context.Context, id string) (json.RawMessage, error)
//     func (c *Client) TestConnection(ctx context.Context) error
//
//     var _ source.Source = (*Client)(nil)
//
//  2. Select it in buildSource (internal/entrypoint/app.go)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the checks of this codebase.
package interfaces
