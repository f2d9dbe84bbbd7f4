package local

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/zeroshotclassifier"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/guardbot/internal/adapters/llm"
)

// API classifies in-process with a zero-shot model, for deployments
// that cannot call an external scoring service.
type API struct {
	model  zeroshotclassifier.Interface
	logger *log.Entry
}

const DefaultModel = "MoritzLaurer/mDeBERTa-v3-base-mnli-xnli"

var candidateLabels = []string{"spam", "toxic", "acceptable"}

func NewLocal(modelsDir, modelName string, logger *log.Entry) (*API, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	model, err := tasks.Load[zeroshotclassifier.Interface](&tasks.Config{
		ModelsDir:           modelsDir,
		ModelName:           modelName,
		DownloadPolicy:      tasks.DownloadMissing,
		ConversionPolicy:    tasks.ConvertMissing,
		ConversionPrecision: tasks.F32,
	})
	if err != nil {
		return nil, fmt.Errorf("load zero-shot model: %w", err)
	}
	return &API{model: model, logger: logger}, nil
}

func (a *API) Classify(ctx context.Context, text string) (*llm.Analysis, error) {
	result, err := a.model.Classify(ctx, text, zeroshotclassifier.Parameters{
		CandidateLabels:    candidateLabels,
		HypothesisTemplate: "This chat message is {}.",
		MultiLabel:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	analysis := llm.Neutral()
	for i, label := range result.Labels {
		if i >= len(result.Scores) {
			break
		}
		switch label {
		case "spam":
			analysis.SpamScore = result.Scores[i]
		case "toxic":
			analysis.ToxicityScore = result.Scores[i]
		}
	}
	analysis.IsAppropriate = analysis.SpamScore < 0.5 && analysis.ToxicityScore < 0.5
	return analysis, nil
}
