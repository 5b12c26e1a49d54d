package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Defaults for the Claude adapter.
const (
	DefaultClaudeModel     = anthropic.ModelClaude3_5HaikuLatest
	DefaultClaudeCost      = 0.003
	DefaultClaudeTimeout   = 15 * time.Second
	defaultClaudeMaxTokens = 1024
)

// ClaudeProvider analyzes records through the Anthropic messages API.
type ClaudeProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	cost    float64
	timeout time.Duration
}

// NewClaudeProvider creates a Claude-backed provider. Zero cost or timeout
// fall back to the adapter defaults.
func NewClaudeProvider(apiKey string, cost float64, timeout time.Duration) *ClaudeProvider {
	if cost <= 0 {
		cost = DefaultClaudeCost
	}
	if timeout <= 0 {
		timeout = DefaultClaudeTimeout
	}
	return &ClaudeProvider{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultClaudeModel,
		cost:    cost,
		timeout: timeout,
	}
}

func (p *ClaudeProvider) Name() string            { return "claude" }
func (p *ClaudeProvider) CostPerRequest() float64 { return p.cost }
func (p *ClaudeProvider) Timeout() time.Duration  { return p.timeout }

// Analyze issues one message request and parses the structured result.
func (p *ClaudeProvider) Analyze(ctx context.Context, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: defaultClaudeMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(analysisType)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(payload))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic message: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		text += block.Text
	}
	if text == "" {
		return nil, fmt.Errorf("anthropic returned no text content")
	}

	result, confidence := parseModelOutput(text)
	return &models.AIAnalysis{Result: result, Confidence: confidence}, nil
}
