package score

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Rules holds the configured lexical ban list and the heuristic spam
// phrase set. Terms are matched case-insensitively as substrings.
type Rules struct {
	BannedTerms []string `yaml:"banned_terms"`
	SpamPhrases []string `yaml:"spam_phrases"`
}

var defaultRules = Rules{
	BannedTerms: []string{
		"spam", "scam", "fake", "fraud", "porn", "adult", "xxx",
		"gambling", "casino", "bet", "lottery", "investment", "crypto",
	},
	SpamPhrases: []string{
		"click here", "free money", "earn money", "join now", "limited time",
	},
}

// LoadRules reads the rules file, seeding it with defaults when absent.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "read rules file")
		}
		if err := seedRules(path); err != nil {
			return nil, err
		}
		log.WithField("path", path).Info("seeded default rules file")
		rules := defaultRules
		return rules.normalize(), nil
	}

	rules := &Rules{}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, errors.Wrap(err, "parse rules file")
	}
	return rules.normalize(), nil
}

func seedRules(path string) error {
	data, err := yaml.Marshal(defaultRules)
	if err != nil {
		return errors.Wrap(err, "marshal default rules")
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return errors.Wrap(err, "create rules dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write default rules")
	}
	return nil
}

func (r Rules) normalize() *Rules {
	normalized := &Rules{
		BannedTerms: make([]string, 0, len(r.BannedTerms)),
		SpamPhrases: make([]string, 0, len(r.SpamPhrases)),
	}
	for _, term := range r.BannedTerms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			normalized.BannedTerms = append(normalized.BannedTerms, term)
		}
	}
	for _, phrase := range r.SpamPhrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" {
			normalized.SpamPhrases = append(normalized.SpamPhrases, phrase)
		}
	}
	return normalized
}
