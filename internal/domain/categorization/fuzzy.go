package categorization

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// CategoryMatch is a category label ranked against a search query.
type CategoryMatch struct {
	Category string `json:"category"`
	Score    int    `json:"score"`    // 0-100, higher is closer
	Distance int    `json:"distance"` // Levenshtein distance on the folded strings
}

// RankCategories ranks labels by similarity to query and drops those below
// threshold. Ties keep alphabetical order. limit <= 0 means no limit.
func RankCategories(query string, labels []string, threshold, limit int) []CategoryMatch {
	q := normalizeLabel(query)
	if q == "" {
		return []CategoryMatch{}
	}

	results := make([]CategoryMatch, 0, len(labels))
	for _, label := range labels {
		l := normalizeLabel(label)
		score := fuzzyScore(q, l)
		if score < threshold {
			continue
		}
		results = append(results, CategoryMatch{
			Category: label,
			Score:    score,
			Distance: fuzzy.LevenshteinDistance(q, l),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Category < results[j].Category
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// fuzzyScore combines containment, subsequence, and edit distance into 0-100.
func fuzzyScore(query, label string) int {
	if query == label {
		return 100
	}

	// "personal" inside "personalkosten"
	if strings.Contains(label, query) {
		return 75 + (25 * len(query) / len(label))
	}

	maxLen := len([]rune(query))
	if n := len([]rune(label)); n > maxLen {
		maxLen = n
	}
	distance := fuzzy.LevenshteinDistance(query, label)
	levenshteinScore := 100 * (maxLen - distance) / maxLen

	// "pskn" is a subsequence of "personalkosten"
	subsequenceScore := 0
	if fuzzy.MatchNormalizedFold(query, label) {
		subsequenceScore = 50 + (25 * len(query) / len(label))
	}

	if levenshteinScore > subsequenceScore {
		return levenshteinScore
	}
	return subsequenceScore
}
