package score

import (
	"strings"
	"unicode"
)

const (
	weightCaps       = 0.3
	weightSymbols    = 0.2
	weightRepeats    = 0.2
	weightSpamPhrase = 0.4
	weightLinkSpam   = 0.4

	capsRatioLimit     = 0.5
	capsMinLength      = 10
	symbolDensityLimit = 0.3
	repeatRunLimit     = 5
	linkCountLimit     = 2

	heuristicViolationLimit = 0.5
)

var linkMarkers = []string{"http://", "https://", "www.", "t.me/"}

// heuristicScore applies the advisory spam-pattern heuristics and
// returns the summed confidence (clamped to 1) with triggered reasons.
// Short messages are deliberately hard to flag on caps alone.
func heuristicScore(rules *Rules, text string) (float64, []string) {
	if text == "" {
		return 0, nil
	}

	var confidence float64
	var reasons []string

	runes := []rune(text)
	total := len(runes)

	upper := 0
	nonASCII := 0
	longestRun, run := 1, 1
	for i, r := range runes {
		if unicode.IsUpper(r) {
			upper++
		}
		if r > 127 {
			nonASCII++
		}
		if i > 0 && runes[i] == runes[i-1] {
			run++
			if run > longestRun {
				longestRun = run
			}
		} else {
			run = 1
		}
	}

	if total > capsMinLength && float64(upper)/float64(total) > capsRatioLimit {
		reasons = append(reasons, "excessive_caps")
		confidence += weightCaps
	}
	if float64(nonASCII)/float64(total) > symbolDensityLimit {
		reasons = append(reasons, "excessive_symbols")
		confidence += weightSymbols
	}
	if longestRun >= repeatRunLimit {
		reasons = append(reasons, "repetitive_chars")
		confidence += weightRepeats
	}

	lower := strings.ToLower(text)
	for _, phrase := range rules.SpamPhrases {
		if strings.Contains(lower, phrase) {
			reasons = append(reasons, "spam_phrase")
			confidence += weightSpamPhrase
			break
		}
	}

	if countLinks(lower) > linkCountLimit {
		reasons = append(reasons, "link_spam")
		confidence += weightLinkSpam
	}

	if confidence > 1 {
		confidence = 1
	}
	return confidence, reasons
}

func countLinks(lower string) int {
	count := 0
	for _, marker := range linkMarkers {
		count += strings.Count(lower, marker)
	}
	for _, field := range strings.Fields(lower) {
		if len(field) > 1 && strings.HasPrefix(field, "@") {
			count++
		}
	}
	return count
}
