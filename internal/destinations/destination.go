// Package destinations defines the capability contract every progress tracking
// service must satisfy to receive synced progress.
//
// Lookups return (nil, nil) when nothing matches. A non-nil error always means the
// lookup itself failed (transport, auth, protocol), never "not found".
//
// # Implementations
//
//	var _ destinations.Destination = (*hardcover.Client)(nil)
//	var _ destinations.Destination = (*storygraph.Client)(nil)
package destinations

import "context"

// ReadingStatus is the reading shelf a book sits on in a destination.
type ReadingStatus string

const (
	StatusNone             ReadingStatus = ""
	StatusWantToRead       ReadingStatus = "want_to_read"
	StatusCurrentlyReading ReadingStatus = "currently_reading"
	StatusFinished         ReadingStatus = "finished"
	StatusDidNotFinish     ReadingStatus = "did_not_finish"
)

// StatusForPercent derives the status implied by a progress percentage.
func StatusForPercent(percent int) ReadingStatus {
	switch {
	case percent >= 100:
		return StatusFinished
	case percent > 0:
		return StatusCurrentlyReading
	default:
		return StatusNone
	}
}

// Match is a destination catalog entry found by a lookup.
// LibraryID is set only when the entry is already in the user's library.
type Match struct {
	CatalogID string
	LibraryID string
	Title     string
	Author    string
	ISBN      string
	ASIN      string
}

// LibraryQuery identifies a book in the user's library. Empty fields are ignored.
type LibraryQuery struct {
	ISBN   string
	ASIN   string
	Title  string
	Author string
}

// Destination is a progress tracking service that mirrors the source's progress.
type Destination interface {
	Name() string
	TestConnection(ctx context.Context) error

	SearchByISBN(ctx context.Context, isbn string) (*Match, error)
	SearchByASIN(ctx context.Context, asin string) (*Match, error)
	SearchByTitleAuthor(ctx context.Context, title, author string) (*Match, error)
	FindInLibrary(ctx context.Context, query LibraryQuery) (*Match, error)

	AddToLibrary(ctx context.Context, catalogID string, status ReadingStatus) (string, error)
	UpdateProgress(ctx context.Context, libraryID string, percent int, status ReadingStatus) error
	MarkFinished(ctx context.Context, libraryID string) error
}

// CycleScoped is implemented by destinations that keep state for the duration of a
// sync cycle, such as a snapshot of the user's library. The engine calls BeginCycle
// before the first push of a cycle and EndCycle after the last.
type CycleScoped interface {
	BeginCycle()
	EndCycle()
}
