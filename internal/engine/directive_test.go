package engine

import "testing"

func TestStateOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		count, max  int
		want        State
	}{
		{"no warnings", 0, 3, StateClean},
		{"negative count", -1, 3, StateClean},
		{"below limit", 1, 3, StateWarned},
		{"one below limit", 2, 3, StateWarned},
		{"at limit", 3, 3, StateMaxReached},
		{"above limit", 4, 3, StateMaxReached},
		{"limit of one", 1, 1, StateMaxReached},
	}
	for _, tc := range cases {
		if got := StateOf(tc.count, tc.max); got != tc.want {
			t.Fatalf("%s: StateOf(%d, %d) = %q, want %q", tc.name, tc.count, tc.max, got, tc.want)
		}
	}
}
