package score

import (
	"math"
	"testing"
)

func TestSequenceSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "buy my product now", "buy my product now", 1},
		{"both empty", "", "", 1},
		{"one empty", "hello", "", 0},
		{"disjoint", "abab", "cdcd", 0},
		{"partial overlap", "hello world", "hello", 0.625},
		{"unicode identical", "привет мир", "привет мир", 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := sequenceSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("sequenceSimilarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSequenceSimilarityIsSymmetric(t *testing.T) {
	t.Parallel()

	a, b := "free money today", "free crypto today"
	if x, y := sequenceSimilarity(a, b), sequenceSimilarity(b, a); x != y {
		t.Fatalf("asymmetric similarity: %v vs %v", x, y)
	}
}
