// Package progress computes per-challenge-type completion from daily records.
//
// Every calculator is a pure function over the full record set: nothing is
// incremented, so recomputation after a late or corrected submission is safe
// and deterministic.
package progress

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Snapshot is the derived progress state for an enrollment.
type Snapshot struct {
	// CurrentProgress has per-type semantics: today's ml sum for water,
	// goal-met day count for colorful diet and fasting, rolling average DII
	// for dii_analysis.
	CurrentProgress float64
	// CompletionRate is 0-100, a pure function of records and target metrics.
	CompletionRate float64
	// GoalDays counts days where the daily goal was met.
	GoalDays int
	// RainbowDays counts colorful-diet days covering every color category.
	RainbowDays int
	// Score is the derived point total (colorful diet applies the rainbow bonus here).
	Score float64
}

// Calculator turns an ordered record set and target metrics into a Snapshot.
type Calculator interface {
	Compute(challenge models.Challenge, records []models.DailyRecord) Snapshot
	// DayGoals maps each record date to whether the daily goal was met.
	DayGoals(challenge models.Challenge, records []models.DailyRecord) map[string]bool
}

var registry = make(map[models.ChallengeType]Calculator)

// Register associates a ChallengeType with a Calculator implementation.
func Register(ct models.ChallengeType, c Calculator) {
	registry[ct] = c
}

// Get retrieves the Calculator for a given ChallengeType.
func Get(ct models.ChallengeType) (Calculator, bool) {
	c, ok := registry[ct]
	return c, ok
}

// Compute finds and runs the Calculator for the challenge's type.
func Compute(challenge models.Challenge, records []models.DailyRecord) (Snapshot, error) {
	slog.Debug("Progress Compute invoked", "type", challenge.Type, "records", len(records))
	calc, ok := Get(challenge.Type)
	if !ok {
		slog.Error("No calculator registered for challenge type", "type", challenge.Type)
		return Snapshot{}, fmt.Errorf("no calculator registered for challenge type %s", challenge.Type)
	}
	return calc.Compute(challenge, records), nil
}

// DayGoals finds and runs the per-day goal map for the challenge's type.
func DayGoals(challenge models.Challenge, records []models.DailyRecord) (map[string]bool, error) {
	calc, ok := Get(challenge.Type)
	if !ok {
		return nil, fmt.Errorf("no calculator registered for challenge type %s", challenge.Type)
	}
	return calc.DayGoals(challenge, records), nil
}

// byDate groups records by calendar day, preserving ascending date order in
// the returned key slice.
func byDate(records []models.DailyRecord) (map[string][]models.DailyRecord, []string) {
	grouped := make(map[string][]models.DailyRecord)
	var dates []string
	for _, r := range records {
		if _, seen := grouped[r.RecordDate]; !seen {
			dates = append(dates, r.RecordDate)
		}
		grouped[r.RecordDate] = append(grouped[r.RecordDate], r)
	}
	sort.Strings(dates)
	return grouped, dates
}

// rate converts a met-day count and duration into a clamped 0-100 percentage.
func rate(goalDays, durationDays int) float64 {
	if durationDays <= 0 {
		return 0
	}
	r := float64(goalDays) / float64(durationDays) * 100
	return clamp(r, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Register default calculators
func init() {
	Register(models.ChallengeTypeWaterIntake, &WaterIntakeCalculator{})
	Register(models.ChallengeTypeColorfulDiet, &ColorfulDietCalculator{})
	Register(models.ChallengeTypeDIIAnalysis, &DIICalculator{})
	Register(models.ChallengeTypeIntermittentFasting, &FastingCalculator{})
}
