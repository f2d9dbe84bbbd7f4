package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/iamwavecut/guardbot/internal/adapters/llm"
)

type API struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *log.Entry
}

const DefaultModel = "gemini-2.5-flash-lite"

func NewGemini(apiKey, model string, logger *log.Entry) *API {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		logger.Fatalf("Error creating client: %v", err)
	}
	if model == "" {
		model = DefaultModel
	}
	generativeModel := client.GenerativeModel(model)
	generativeModel.ResponseMIMEType = "application/json"
	generativeModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt)},
	}
	return &API{
		client: client,
		model:  generativeModel,
		logger: logger,
	}
}

func (g *API) Classify(ctx context.Context, text string) (*llm.Analysis, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates available")
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			builder.WriteString(string(textPart))
		}
	}

	analysis := &llm.Analysis{}
	content := strings.TrimSpace(builder.String())
	if err := json.Unmarshal([]byte(content), analysis); err != nil {
		g.logger.WithField("content", content).Debug("unparseable classification response")
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	return analysis, nil
}
