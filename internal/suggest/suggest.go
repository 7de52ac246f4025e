// Package suggest finds names close to one a user typed, for "did you
// mean" hints when a dish or item lookup fails.
package suggest

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// maxSuggestions caps how many names Names returns.
const maxSuggestions = 3

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Names returns up to three candidates similar to query, best first.
// Fuzzy subsequence matches ("stk" for "Stock") rank ahead of names that
// are only a few edits away ("Stcok").
func Names(query string, candidates []string) []string {
	query = strings.TrimSpace(query)
	if query == "" || len(candidates) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(name string) bool {
		if seen[name] {
			return len(out) < maxSuggestions
		}
		seen[name] = true
		out = append(out, name)
		return len(out) < maxSuggestions
	}

	matches := fuzzy.Find(strings.ToLower(query), lowered(candidates))
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	for _, m := range matches {
		if !add(candidates[m.Index]) {
			return out
		}
	}

	type scored struct {
		name string
		dist int
	}
	var close []scored
	q := strings.ToLower(query)
	maxDist := max(2, len(q)/3)
	for _, c := range candidates {
		if d := levenshtein(q, strings.ToLower(c)); d <= maxDist {
			close = append(close, scored{c, d})
		}
	}
	sort.SliceStable(close, func(i, j int) bool { return close[i].dist < close[j].dist })
	for _, c := range close {
		if !add(c.name) {
			break
		}
	}
	return out
}

// Hint formats suggestions as " (did you mean X or Y?)", or "" when there
// are none.
func Hint(query string, candidates []string) string {
	names := Names(query, candidates)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return " (did you mean " + names[0] + "?)"
	}
	return " (did you mean " + strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1] + "?)"
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
