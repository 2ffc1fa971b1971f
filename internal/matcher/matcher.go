// Package matcher resolves source books to destination catalog identifiers.
//
// Resolution consults the match cache first and then queries every destination
// independently, strongest identifier first: ISBN, then ASIN, then title and author.
// Lookup failures are logged and treated as "not found"; Match never fails.
package matcher

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/mrlokans/shelfsync/internal/destinations"
	"github.com/mrlokans/shelfsync/internal/entities"
	"github.com/mrlokans/shelfsync/internal/logging"
)

// MappingStore persists match decisions between cycles.
type MappingStore interface {
	GetMapping(sourceBookID string) (*entities.BookMapping, error)
	SaveMapping(mapping *entities.BookMapping) error
}

// Matcher resolves progress records against a fixed list of destinations.
type Matcher struct {
	store        MappingStore
	destinations []destinations.Destination
	logger       *log.Logger
}

// New creates a matcher. A nil logger discards output.
func New(store MappingStore, dests []destinations.Destination, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Matcher{
		store:        store,
		destinations: dests,
		logger:       logger,
	}
}

// Match resolves a record to destination identifiers.
// With useCache set, a cached mapping is returned as-is without contacting any destination.
func (m *Matcher) Match(ctx context.Context, record entities.ProgressRecord, useCache bool) entities.MatchResult {
	result := entities.MatchResult{
		SourceBookID:   record.SourceBookID,
		Title:          record.Title,
		Author:         record.Author,
		ISBN:           record.ISBN,
		ASIN:           record.ASIN,
		DestinationIDs: make(map[string]string),
		Confidence:     entities.ConfidenceNone,
		Method:         entities.MatchMethodNone,
	}

	if useCache {
		if cached := m.cached(record); cached != nil {
			for name, id := range cached.DestinationIDs {
				result.DestinationIDs[name] = id
			}
			result.Confidence = cached.MatchConfidence
			result.Method = entities.MatchMethodCache
			m.logger.Debug("using cached mapping", "book_id", record.SourceBookID, "title", record.Title)
			return result
		}
	}

	var best entities.MatchMethod = entities.MatchMethodNone
	for _, dest := range m.destinations {
		match, method := m.lookup(ctx, dest, record)
		if match == nil || match.CatalogID == "" {
			m.logger.Debug("no match found", "destination", dest.Name(), "title", record.Title)
			continue
		}
		result.DestinationIDs[dest.Name()] = match.CatalogID
		if strength(method) > strength(best) {
			best = method
		}
	}

	result.Method = best
	result.Confidence = confidenceFor(best)

	if result.HasAnyMatch() {
		m.save(result)
	}

	return result
}

// lookup runs the strategies against one destination and returns the first hit.
func (m *Matcher) lookup(ctx context.Context, dest destinations.Destination, record entities.ProgressRecord) (*destinations.Match, entities.MatchMethod) {
	name := dest.Name()

	if record.ISBN != "" {
		match, err := dest.SearchByISBN(ctx, record.ISBN)
		if err != nil {
			m.logger.Warn("isbn lookup failed", "destination", name, "isbn", record.ISBN, "err", err)
		} else if match != nil {
			m.logger.Debug("matched by isbn", "destination", name, "title", record.Title)
			return match, entities.MatchMethodISBN
		}
	}

	if record.ASIN != "" {
		match, err := dest.SearchByASIN(ctx, record.ASIN)
		if err != nil {
			m.logger.Warn("asin lookup failed", "destination", name, "asin", record.ASIN, "err", err)
		} else if match != nil {
			m.logger.Debug("matched by asin", "destination", name, "title", record.Title)
			return match, entities.MatchMethodASIN
		}
	}

	if record.Title == "" {
		return nil, entities.MatchMethodNone
	}

	match, err := dest.SearchByTitleAuthor(ctx, record.Title, record.Author)
	if err != nil {
		m.logger.Warn("title lookup failed", "destination", name, "title", record.Title, "err", err)
		return nil, entities.MatchMethodNone
	}
	if match != nil {
		m.logger.Debug("matched by title and author", "destination", name, "title", record.Title)
		return match, entities.MatchMethodTitleAuthor
	}
	return nil, entities.MatchMethodNone
}

func (m *Matcher) cached(record entities.ProgressRecord) *entities.BookMapping {
	if m.store == nil {
		return nil
	}
	mapping, err := m.store.GetMapping(record.SourceBookID)
	if err != nil {
		m.logger.Error("failed to read cached mapping", "book_id", record.SourceBookID, "err", err)
		return nil
	}
	return mapping
}

func (m *Matcher) save(result entities.MatchResult) {
	if m.store == nil {
		return
	}
	mapping := &entities.BookMapping{
		SourceBookID:    result.SourceBookID,
		DestinationIDs:  result.DestinationIDs,
		Title:           result.Title,
		Author:          result.Author,
		ISBN:            result.ISBN,
		ASIN:            result.ASIN,
		MatchConfidence: result.Confidence,
		MatchMethod:     result.Method,
	}
	if err := m.store.SaveMapping(mapping); err != nil {
		m.logger.Error("failed to save mapping", "book_id", result.SourceBookID, "err", err)
	}
}

func strength(method entities.MatchMethod) int {
	switch method {
	case entities.MatchMethodISBN:
		return 3
	case entities.MatchMethodASIN:
		return 2
	case entities.MatchMethodTitleAuthor:
		return 1
	default:
		return 0
	}
}

func confidenceFor(method entities.MatchMethod) float64 {
	switch method {
	case entities.MatchMethodISBN:
		return entities.ConfidenceISBN
	case entities.MatchMethodASIN:
		return entities.ConfidenceASIN
	case entities.MatchMethodTitleAuthor:
		return entities.ConfidenceTitleAuthor
	default:
		return entities.ConfidenceNone
	}
}
