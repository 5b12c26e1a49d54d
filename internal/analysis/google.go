package analysis

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Defaults for the Gemini adapter.
const (
	DefaultGoogleModel   = "gemini-2.0-flash"
	DefaultGoogleCost    = 0.001
	DefaultGoogleTimeout = 15 * time.Second
)

// GoogleProvider analyzes records through the Gemini API.
type GoogleProvider struct {
	client  *genai.Client
	model   string
	cost    float64
	timeout time.Duration
}

// NewGoogleProvider creates a Gemini-backed provider. Zero cost or timeout
// fall back to the adapter defaults.
func NewGoogleProvider(ctx context.Context, apiKey string, cost float64, timeout time.Duration) (*GoogleProvider, error) {
	if cost <= 0 {
		cost = DefaultGoogleCost
	}
	if timeout <= 0 {
		timeout = DefaultGoogleTimeout
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GoogleProvider{client: cli, model: DefaultGoogleModel, cost: cost, timeout: timeout}, nil
}

func (p *GoogleProvider) Name() string            { return "google" }
func (p *GoogleProvider) CostPerRequest() float64 { return p.cost }
func (p *GoogleProvider) Timeout() time.Duration  { return p.timeout }

// Analyze issues one generation request and parses the structured result.
func (p *GoogleProvider) Analyze(ctx context.Context, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error) {
	full := systemPrompt(analysisType) + "\n\n" + userPrompt(payload)
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned no text")
	}

	result, confidence := parseModelOutput(text)
	return &models.AIAnalysis{Result: result, Confidence: confidence}, nil
}
