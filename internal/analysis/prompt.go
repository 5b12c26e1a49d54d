package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// DefaultProviderConfidence is assumed when a model response carries no
// usable confidence field.
const DefaultProviderConfidence = 0.8

// systemPrompt returns the instruction for one analysis type. All prompts
// demand a JSON object with a top-level "confidence" between 0 and 1.
func systemPrompt(at models.AnalysisType) string {
	switch at {
	case models.AnalysisTypeFoodRecognition:
		return "You are a nutrition assistant. Identify the food items and their color categories " +
			"(red, orange, yellow, green, purple) from the submission. " +
			`Respond with JSON: {"items": [...], "colors": [...], "confidence": 0-1}.`
	case models.AnalysisTypeDIIScoring:
		return "You are a dietary inflammatory index (DII) estimator. Estimate the daily DII score " +
			"from the listed food items. " +
			`Respond with JSON: {"dii_score": number, "drivers": [...], "confidence": 0-1}.`
	case models.AnalysisTypeRiskDetection:
		return "You are a clinical safety screener for fasting programs. Flag warning signs in the " +
			"reported condition and symptoms. " +
			`Respond with JSON: {"warnings": [...], "severity": "none|low|high", "confidence": 0-1}.`
	default:
		return `Analyze the submission. Respond with JSON including a "confidence" between 0 and 1.`
	}
}

// userPrompt serializes the payload for the model.
func userPrompt(p Payload) string {
	data, _ := json.Marshal(p.Data)
	var b strings.Builder
	fmt.Fprintf(&b, "Challenge type: %s\nRecord data: %s\n", p.RecordType, data)
	if p.Notes != "" {
		fmt.Fprintf(&b, "Patient notes: %s\n", p.Notes)
	}
	return b.String()
}

// parseModelOutput extracts a JSON result and confidence from raw model
// text. Non-JSON output is wrapped so the result stays structured; a
// missing or invalid confidence falls back to the provider default.
func parseModelOutput(text string) (json.RawMessage, float64) {
	text = strings.TrimSpace(text)
	// Models occasionally fence their JSON.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		wrapped, _ := json.Marshal(map[string]string{"text": text})
		return wrapped, DefaultProviderConfidence
	}

	confidence := DefaultProviderConfidence
	if c, ok := parsed["confidence"].(float64); ok && c >= 0 && c <= 1 {
		confidence = c
	}
	return json.RawMessage(text), confidence
}
