package ui

import (
	"sort"
	"strings"
)

// MaxSuggestions bounds the names offered for a misspelled model or relationship
const MaxSuggestions = 3

// Suggest returns up to MaxSuggestions candidates within maxDistance edits of
// target, closest first. Matching ignores case.
func Suggest(target string, candidates []string, maxDistance int) []string {
	type scored struct {
		name string
		dist int
	}

	lower := strings.ToLower(target)
	var matches []scored
	for _, c := range candidates {
		if d := Distance(lower, strings.ToLower(c)); d <= maxDistance {
			matches = append(matches, scored{name: c, dist: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].dist < matches[j].dist
	})

	var out []string
	for i := 0; i < len(matches) && i < MaxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// Distance is the Levenshtein edit distance between two strings, computed
// over runes with a single rolling row
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			next := min(row[j]+1, row[j-1]+1, diag+cost)
			diag = row[j]
			row[j] = next
		}
	}
	return row[len(rb)]
}
