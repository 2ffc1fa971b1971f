package entities

type MatchMethod string

const (
	MatchMethodCache       MatchMethod = "cache"
	MatchMethodISBN        MatchMethod = "isbn"
	MatchMethodASIN        MatchMethod = "asin"
	MatchMethodTitleAuthor MatchMethod = "title_author"
	MatchMethodNone        MatchMethod = "none"
)

// Confidence scores by the strongest identifier that produced a match.
const (
	ConfidenceISBN        = 0.95
	ConfidenceASIN        = 0.9
	ConfidenceTitleAuthor = 0.7
	ConfidenceNone        = 0.0
)

// MatchResult is the resolution of one source book against every configured destination.
// DestinationIDs is keyed by destination name; a missing key means no match on that destination.
type MatchResult struct {
	SourceBookID   string
	Title          string
	Author         string
	ISBN           string
	ASIN           string
	DestinationIDs map[string]string
	Confidence     float64
	Method         MatchMethod
}

// DestinationID returns the resolved identifier for a destination, if any.
func (m MatchResult) DestinationID(destination string) (string, bool) {
	id, ok := m.DestinationIDs[destination]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// HasAnyMatch reports whether at least one destination identifier was resolved.
func (m MatchResult) HasAnyMatch() bool {
	for _, id := range m.DestinationIDs {
		if id != "" {
			return true
		}
	}
	return false
}
