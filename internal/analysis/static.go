package analysis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// StaticProvider returns deterministic canned analyses without calling any
// external service. It backs local development and environments with no API
// keys configured.
type StaticProvider struct {
	cost       float64
	confidence float64
}

// NewStaticProvider creates an offline provider with the given confidence.
func NewStaticProvider(confidence float64) *StaticProvider {
	if confidence <= 0 {
		confidence = 0.95
	}
	return &StaticProvider{confidence: confidence}
}

func (p *StaticProvider) Name() string            { return "static" }
func (p *StaticProvider) CostPerRequest() float64 { return p.cost }
func (p *StaticProvider) Timeout() time.Duration  { return time.Second }

func (p *StaticProvider) Analyze(_ context.Context, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error) {
	var result any
	switch analysisType {
	case models.AnalysisTypeFoodRecognition:
		result = map[string]any{"items": payload.Data.FoodItems, "colors": payload.Data.Colors, "confidence": p.confidence}
	case models.AnalysisTypeDIIScoring:
		result = map[string]any{"dii_score": payload.Data.DIIScore, "drivers": payload.Data.FoodItems, "confidence": p.confidence}
	case models.AnalysisTypeRiskDetection:
		result = map[string]any{"warnings": []string{}, "severity": "none", "confidence": p.confidence}
	default:
		result = map[string]any{"confidence": p.confidence}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &models.AIAnalysis{Result: raw, Confidence: p.confidence}, nil
}
