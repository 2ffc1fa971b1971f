package destinations

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// AuthorMatches reports whether want is a case-insensitive substring of got.
// An empty want matches anything.
func AuthorMatches(want, got string) bool {
	if want == "" {
		return true
	}
	return strings.Contains(strings.ToLower(got), strings.ToLower(want))
}

// TitleScore ranks how well candidate matches the wanted title. Lower is better;
// -1 means the candidate does not match at all.
func TitleScore(want, candidate string) int {
	want = strings.ToLower(strings.TrimSpace(want))
	candidate = strings.ToLower(strings.TrimSpace(candidate))

	switch {
	case want == "" || candidate == "":
		return -1
	case candidate == want:
		return 0
	case strings.HasPrefix(candidate, want):
		return 10
	case strings.Contains(candidate, want):
		return 50
	case fuzzy.MatchNormalizedFold(want, candidate):
		return 100 + fuzzy.LevenshteinDistance(want, candidate)
	default:
		return -1
	}
}

// BestTitleMatch picks the candidate whose title best matches title. Candidates by a
// matching author win over better titles by someone else. Returns nil when nothing matches.
func BestTitleMatch(title, author string, candidates []Match) *Match {
	type ranked struct {
		match  Match
		score  int
		author bool
	}

	var pool []ranked
	for _, c := range candidates {
		score := TitleScore(title, c.Title)
		if score < 0 {
			continue
		}
		pool = append(pool, ranked{
			match:  c,
			score:  score,
			author: author != "" && c.Author != "" && AuthorMatches(author, c.Author),
		})
	}
	if len(pool) == 0 {
		return nil
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].author != pool[j].author {
			return pool[i].author
		}
		return pool[i].score < pool[j].score
	})

	best := pool[0].match
	return &best
}
