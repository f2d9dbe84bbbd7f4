package bot

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestParseRestrictionDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"45", 45 * time.Second},
		{" 10M ", 10 * time.Minute},
	}
	for _, tc := range cases {
		got, err := ParseRestrictionDuration(tc.input)
		if err != nil {
			t.Fatalf("ParseRestrictionDuration(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRestrictionDuration(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseRestrictionDurationRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "abc", "-5m", "0s", "5x5", "m"} {
		if _, err := ParseRestrictionDuration(input); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("ParseRestrictionDuration(%q): got %v, want ErrInvalidDuration", input, err)
		}
	}
}
