// Package scan implements the monitor scan pipeline: run the query against
// the search provider, rank the results by threat relevance, persist the
// search and report records, store the full listing as an S3 artifact, and
// hand off to the notification queue.
package scan

import (
	"sort"
	"strings"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// Scoring constants. Every item starts at baseScore; each occurrence of a
// vocabulary keyword in its title or snippet adds keywordIncrement, with no
// cap, so repeated mentions keep raising the score.
const (
	baseScore        = 1.0
	keywordIncrement = 0.5
)

// threatVocabulary is the curated keyword set used for relevance scoring.
// Entries are lowercase; matching is case-insensitive substring, so "leak"
// also catches "leaked" and "hack" catches "hacked".
var threatVocabulary = []string{
	"breach",
	"leak",
	"ransomware",
	"hack",
	"exploit",
	"exposed",
	"vulnerability",
	"phishing",
	"malware",
	"stolen",
	"compromised",
	"credential",
	"dark web",
	"zero-day",
}

// Score computes the relevance score for a single result item.
func Score(item types.ResultItem) float64 {
	haystack := strings.ToLower(item.Title + " " + item.Snippet)
	score := baseScore
	for _, kw := range threatVocabulary {
		score += keywordIncrement * float64(strings.Count(haystack, kw))
	}
	return score
}

// Rank scores all items and orders them by descending score. Ties keep the
// provider's original order, and positions are assigned after sorting
// starting at 1.
func Rank(items []types.ResultItem) []types.RankedItem {
	ranked := make([]types.RankedItem, len(items))
	for i, item := range items {
		ranked[i] = types.RankedItem{
			ResultItem: item,
			Score:      Score(item),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}
