package intelligence

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// matchThreshold is the minimum similarity ratio for a candidate to count.
const matchThreshold = 0.72

// tieMargin is how close the top two scores must be to count as ambiguous.
const tieMargin = 0.05

// Candidate is a named entity the resolver can match against.
type Candidate struct {
	ID   string
	Name string
}

// Match is a scored candidate.
type Match struct {
	Candidate
	Score float64
}

// Ratio returns a similarity in [0, 1] based on Levenshtein distance over the
// longer string. Comparison is case-insensitive.
func Ratio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// RankMatches scores all candidates against the query and returns those at or
// above the threshold, best first.
func RankMatches(query string, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score := Ratio(query, c.Name)
		// A containment hit ("marta" in "Marta Suarez") beats pure edit
		// distance for partial names.
		if score < matchThreshold && containsFold(c.Name, query) {
			score = matchThreshold
		}
		if score >= matchThreshold {
			matches = append(matches, Match{Candidate: c, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Resolve picks the best candidate. ok is false when nothing clears the
// threshold; ambiguous is true when the top two are too close to call.
func Resolve(query string, candidates []Candidate) (best Match, ambiguous bool, ok bool) {
	matches := RankMatches(query, candidates)
	if len(matches) == 0 {
		return Match{}, false, false
	}
	if len(matches) > 1 && matches[0].Score-matches[1].Score < tieMargin {
		return matches[0], true, true
	}
	return matches[0], false, true
}

func containsFold(haystack, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), needle)
}
