package models

import (
	"encoding/json"
	"time"
)

// AnalysisType identifies what kind of AI annotation is requested.
type AnalysisType string

const (
	// AnalysisTypeFoodRecognition identifies food items and color categories from a meal description.
	AnalysisTypeFoodRecognition AnalysisType = "food_recognition"
	// AnalysisTypeDIIScoring computes a dietary inflammatory index estimate.
	AnalysisTypeDIIScoring AnalysisType = "dii_scoring"
	// AnalysisTypeRiskDetection screens a submission for health warning signs.
	AnalysisTypeRiskDetection AnalysisType = "risk_detection"
)

// AIAnalysis is the value object attached to a DailyRecord after a provider
// call succeeds. It never exists independently of its record.
type AIAnalysis struct {
	Provider       string          `json:"provider"`
	AnalysisType   AnalysisType    `json:"analysis_type"`
	Result         json.RawMessage `json:"result,omitempty"`
	Confidence     float64         `json:"confidence"` // 0-1
	LowConfidence  bool            `json:"low_confidence,omitempty"`
	ProcessingTime time.Duration   `json:"processing_time"`
	Cost           float64         `json:"cost"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AnalysisStatus reports the outcome of the auxiliary AI annotation step.
// The record write itself always has a definite success/failure; this is metadata.
type AnalysisStatus string

const (
	// AnalysisAttached indicates an annotation was produced and stored.
	AnalysisAttached AnalysisStatus = "attached"
	// AnalysisLowConfidence indicates an annotation was stored but flagged for doctor review.
	AnalysisLowConfidence AnalysisStatus = "low_confidence"
	// AnalysisSkipped indicates the record type has no configured analysis.
	AnalysisSkipped AnalysisStatus = "skipped"
	// AnalysisSkippedRisk indicates annotation was bypassed because the submission triggered a risk halt.
	AnalysisSkippedRisk AnalysisStatus = "skipped_risk"
	// AnalysisCostLimited indicates the cost ceiling blocked all provider calls.
	AnalysisCostLimited AnalysisStatus = "cost_limited"
	// AnalysisUnavailable indicates every provider failed; eligible for later backfill.
	AnalysisUnavailable AnalysisStatus = "unavailable"
)
