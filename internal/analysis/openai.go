package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Defaults for the OpenAI adapter.
const (
	DefaultOpenAIModel   = openai.ChatModelGPT4oMini
	DefaultOpenAICost    = 0.002
	DefaultOpenAITimeout = 15 * time.Second
)

// OpenAIProvider analyzes records through the OpenAI chat completions API.
type OpenAIProvider struct {
	client  openai.Client
	model   openai.ChatModel
	cost    float64
	timeout time.Duration
}

// NewOpenAIProvider creates an OpenAI-backed provider. Zero cost or timeout
// fall back to the adapter defaults.
func NewOpenAIProvider(apiKey string, cost float64, timeout time.Duration) *OpenAIProvider {
	if cost <= 0 {
		cost = DefaultOpenAICost
	}
	if timeout <= 0 {
		timeout = DefaultOpenAITimeout
	}
	return &OpenAIProvider{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultOpenAIModel,
		cost:    cost,
		timeout: timeout,
	}
}

func (p *OpenAIProvider) Name() string            { return "openai" }
func (p *OpenAIProvider) CostPerRequest() float64 { return p.cost }
func (p *OpenAIProvider) Timeout() time.Duration  { return p.timeout }

// Analyze issues one chat completion and parses the structured result.
func (p *OpenAIProvider) Analyze(ctx context.Context, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(analysisType)),
			openai.UserMessage(userPrompt(payload)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	result, confidence := parseModelOutput(resp.Choices[0].Message.Content)
	return &models.AIAnalysis{Result: result, Confidence: confidence}, nil
}
