package score

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/guardbot/internal/adapters/llm"
	"github.com/iamwavecut/guardbot/internal/config"
	"github.com/iamwavecut/guardbot/internal/db"
)

// Verdict is the merged risk assessment for one message. It is
// ephemeral and never persisted.
type Verdict struct {
	IsViolation bool
	Confidence  float64
	Reasons     []string
}

// Scorer combines the lexical ban list, the spam-pattern heuristics,
// the near-duplicate detector and an optional semantic classifier.
// A violation from any detector makes the merged verdict a violation;
// confidence is the maximum across detectors.
type Scorer struct {
	rules      *Rules
	history    *historyStore
	classifier llm.Classifier

	classifyTimeout     time.Duration
	similarityThreshold float64
	spamThreshold       float64
	toxicityThreshold   float64
}

func NewScorer(rules *Rules, classifier llm.Classifier, llmCfg config.LLM, modCfg config.Moderation) *Scorer {
	return &Scorer{
		rules:               rules,
		history:             newHistoryStore(modCfg.HistoryDepth),
		classifier:          classifier,
		classifyTimeout:     llmCfg.Timeout,
		similarityThreshold: modCfg.SimilarityThreshold,
		spamThreshold:       llmCfg.SpamThreshold,
		toxicityThreshold:   llmCfg.ToxicityThreshold,
	}
}

func (s *Scorer) Score(ctx context.Context, key db.UserKey, text string) Verdict {
	verdict := s.ScoreContent(text)
	if text == "" {
		return verdict
	}

	if similarity := s.history.Observe(key, text); similarity > s.similarityThreshold {
		verdict.merge(true, similarity, "near_duplicate")
	}

	if analysis := s.classify(ctx, key, text); analysis != nil {
		semanticConfidence := analysis.SpamScore
		if analysis.ToxicityScore > semanticConfidence {
			semanticConfidence = analysis.ToxicityScore
		}
		if analysis.SpamScore > s.spamThreshold {
			verdict.merge(true, semanticConfidence, "semantic_spam")
		}
		if analysis.ToxicityScore > s.toxicityThreshold {
			verdict.merge(true, semanticConfidence, "semantic_toxicity")
		}
		if !analysis.IsAppropriate {
			verdict.merge(true, semanticConfidence, "inappropriate")
		}
	}

	return verdict
}

// ScoreContent runs only the stateless detectors, lexical and
// heuristic. It is used to re-check edited messages without advancing
// the per-key history or calling the semantic backend.
func (s *Scorer) ScoreContent(text string) Verdict {
	verdict := Verdict{}
	if text == "" {
		return verdict
	}

	// Lexical filter is deterministic and authoritative.
	lower := strings.ToLower(text)
	for _, term := range s.rules.BannedTerms {
		if strings.Contains(lower, term) {
			verdict.merge(true, 1.0, "lexical")
			break
		}
	}

	confidence, reasons := heuristicScore(s.rules, text)
	verdict.merge(confidence > heuristicViolationLimit, confidence, reasons...)

	return verdict
}

// ResetHistory drops the near-duplicate buffer for a key, e.g. after
// the user was restricted.
func (s *Scorer) ResetHistory(key db.UserKey) {
	s.history.Reset(key)
}

// classify calls the semantic backend with a bounded timeout. Failures
// degrade to a neutral verdict and are never surfaced to the caller.
func (s *Scorer) classify(ctx context.Context, key db.UserKey, text string) *llm.Analysis {
	if s.classifier == nil {
		return nil
	}

	classifyCtx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()

	analysis, err := s.classifier.Classify(classifyCtx, text)
	if err != nil {
		log.WithError(err).WithField("key", key.String()).Warn("semantic classification failed, using neutral verdict")
		return llm.Neutral()
	}
	return analysis
}

func (v *Verdict) merge(violation bool, confidence float64, reasons ...string) {
	if violation {
		v.IsViolation = true
	}
	if confidence > v.Confidence {
		v.Confidence = confidence
	}
	for _, reason := range reasons {
		if !v.hasReason(reason) {
			v.Reasons = append(v.Reasons, reason)
		}
	}
}

func (v *Verdict) hasReason(reason string) bool {
	for _, existing := range v.Reasons {
		if existing == reason {
			return true
		}
	}
	return false
}
