package diag

import (
	"fmt"
	"strings"
)

// SuggestName proposes the closest candidate to an unknown identifier.
func SuggestName(unknown string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	best, bestDist := "", 1000
	for _, c := range candidates {
		if d := levenshtein(unknown, c); d < bestDist {
			best, bestDist = c, d
		}
	}

	if bestDist < 5 {
		return fmt.Sprintf("did you mean '%s'?", best)
	}
	return fmt.Sprintf("valid names: %s", strings.Join(candidates, ", "))
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
