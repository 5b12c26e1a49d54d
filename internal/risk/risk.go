// Package risk scores health checklists and daily submissions against
// configured risk criteria.
//
// Evaluation is pure and idempotent: identical inputs always yield identical
// output, and no state is mutated. The lifecycle manager decides what to do
// with a verdict.
package risk

import (
	"fmt"
	"strings"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Criteria holds the configurable risk thresholds and match lists.
// The numeric defaults are configuration, not fixed business law.
type Criteria struct {
	HighRiskConditions  []string
	HighRiskMedications []string
	RiskSymptoms        []string
	MinAge              int     // below this, hard challenges are high-risk
	MaxAge              int     // above this, hard challenges are high-risk
	UnderweightBMI      float64 // below this, caloric-restriction types are high-risk
	MinConditionScore   int     // at or below this (1-10), a fasting day is high-risk
}

// DefaultCriteria returns the engine's default risk configuration.
func DefaultCriteria() Criteria {
	return Criteria{
		HighRiskConditions: []string{
			"diabetes", "heart disease", "kidney disease", "liver disease",
			"eating disorder", "hypertension", "pregnancy",
		},
		HighRiskMedications: []string{
			"insulin", "warfarin", "lithium", "diuretic", "beta blocker",
		},
		RiskSymptoms: []string{
			"dizziness", "fainting", "chest pain", "severe headache",
			"palpitations", "nausea", "blurred vision",
		},
		MinAge:            18,
		MaxAge:            65,
		UnderweightBMI:    18.5,
		MinConditionScore: 3,
	}
}

// Assessment is the outcome of a risk evaluation.
type Assessment struct {
	IsHighRisk       bool     `json:"is_high_risk"`
	TriggeredReasons []string `json:"triggered_reasons,omitempty"`
}

// Evaluate scores a health checklist against the criteria for a given challenge.
// It covers the enrollment-time rules: condition/medication matches, age bounds
// for hard challenges, and underweight BMI for caloric-restriction types.
func (c Criteria) Evaluate(checklist models.HealthChecklist, challenge models.Challenge) Assessment {
	var reasons []string

	if match := matchAny(checklist.MedicalConditions, c.HighRiskConditions); match != "" {
		reasons = append(reasons, fmt.Sprintf("high-risk medical condition: %s", match))
	}
	if match := matchAny(checklist.Medications, c.HighRiskMedications); match != "" {
		reasons = append(reasons, fmt.Sprintf("high-risk medication: %s", match))
	}

	if challenge.DifficultyLevel == models.DifficultyHard {
		if checklist.Age < c.MinAge {
			reasons = append(reasons, fmt.Sprintf("age %d below %d for a hard challenge", checklist.Age, c.MinAge))
		}
		if checklist.Age > c.MaxAge {
			reasons = append(reasons, fmt.Sprintf("age %d above %d for a hard challenge", checklist.Age, c.MaxAge))
		}
	}

	if challenge.Type.CaloricRestriction() {
		if bmi := checklist.BMI(); bmi > 0 && bmi < c.UnderweightBMI {
			reasons = append(reasons, fmt.Sprintf("BMI %.1f below %.1f for a caloric-restriction challenge", bmi, c.UnderweightBMI))
		}
	}

	return Assessment{IsHighRisk: len(reasons) > 0, TriggeredReasons: reasons}
}

// EvaluateSubmission scores one day's submission together with the checklist.
// For intermittent fasting it additionally applies the condition-score floor
// and the reported-symptom list.
func (c Criteria) EvaluateSubmission(checklist models.HealthChecklist, challenge models.Challenge, data models.RecordData) Assessment {
	base := c.Evaluate(checklist, challenge)
	reasons := base.TriggeredReasons

	if challenge.Type == models.ChallengeTypeIntermittentFasting {
		if data.ConditionScore > 0 && data.ConditionScore <= c.MinConditionScore {
			reasons = append(reasons, fmt.Sprintf("condition score %d at or below %d", data.ConditionScore, c.MinConditionScore))
		}
		if match := matchAny(data.Symptoms, c.RiskSymptoms); match != "" {
			reasons = append(reasons, fmt.Sprintf("reported risk symptom: %s", match))
		}
	}

	return Assessment{IsHighRisk: len(reasons) > 0, TriggeredReasons: reasons}
}

// matchAny returns the first entry that matches the configured list,
// case-insensitively and on substrings in either direction, or "".
func matchAny(entries, configured []string) string {
	for _, e := range entries {
		le := strings.ToLower(strings.TrimSpace(e))
		if le == "" {
			continue
		}
		for _, cfg := range configured {
			lc := strings.ToLower(cfg)
			if strings.Contains(le, lc) || strings.Contains(lc, le) {
				return e
			}
		}
	}
	return ""
}
