package bot

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidDuration = errors.New("invalid duration format")

var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseRestrictionDuration parses admin-supplied durations like "30s",
// "5m", "2h", "1d", "1w". A bare number means seconds.
func ParseRestrictionDuration(input string) (time.Duration, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return 0, errors.Wrap(ErrInvalidDuration, "empty")
	}

	unit := time.Second
	if multiplier, ok := durationUnits[input[len(input)-1]]; ok {
		unit = multiplier
		input = input[:len(input)-1]
	}

	value, err := strconv.Atoi(input)
	if err != nil || value <= 0 {
		return 0, errors.Wrapf(ErrInvalidDuration, "%q", input)
	}
	return time.Duration(value) * unit, nil
}
