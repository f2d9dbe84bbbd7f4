package llm

import "context"

// Analysis is the semantic verdict for one message, as returned by an
// external classification backend.
type Analysis struct {
	SpamScore     float64 `json:"spam_score"`
	ToxicityScore float64 `json:"toxicity_score"`
	IsAppropriate bool    `json:"is_appropriate"`
}

// Classifier scores message text for spam and toxicity. Backends are
// best-effort: callers treat errors and timeouts as a neutral verdict.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Analysis, error)
}

// Neutral is the verdict used when classification is unavailable.
func Neutral() *Analysis {
	return &Analysis{IsAppropriate: true}
}

const SystemPrompt = `You are a chat moderation classifier. Analyze the user message and respond with a JSON object containing exactly these fields:
- "spam_score": number from 0.0 to 1.0, likelihood of being spam
- "toxicity_score": number from 0.0 to 1.0, toxicity level
- "is_appropriate": boolean, whether the message is suitable for a group chat
Respond with the JSON object only.`
