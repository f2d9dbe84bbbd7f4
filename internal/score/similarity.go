package score

// similarityCap bounds the quadratic comparison; chat messages longer
// than this are compared by their prefix.
const similarityCap = 512

// sequenceSimilarity returns a normalized similarity ratio in [0,1]
// for two strings: 2*LCS / (len(a)+len(b)) over runes. Identical
// strings score 1, disjoint strings 0.
func sequenceSimilarity(a, b string) float64 {
	ra := truncateRunes([]rune(a), similarityCap)
	rb := truncateRunes([]rune(b), similarityCap)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

func truncateRunes(r []rune, n int) []rune {
	if len(r) > n {
		return r[:n]
	}
	return r
}
