package progress

import (
	"strings"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Scoring constants for derived point totals.
const (
	// GoalDayPoints is the base score contributed by a goal-met day.
	GoalDayPoints = 10
	// RainbowBonusMultiplier is applied to a day's score when every color
	// category was covered ("rainbow day"). It never affects CompletionRate.
	RainbowBonusMultiplier = 1.5
	// DefaultRequiredColors is the full color-category set size.
	DefaultRequiredColors = 5
)

// WaterIntakeCalculator scores daily water consumption against a ml target.
type WaterIntakeCalculator struct{}

// DayGoals marks a date as met when its records sum to at least the daily target.
func (c *WaterIntakeCalculator) DayGoals(challenge models.Challenge, records []models.DailyRecord) map[string]bool {
	grouped, _ := byDate(records)
	goals := make(map[string]bool, len(grouped))
	for date, day := range grouped {
		total := 0
		for _, r := range day {
			total += r.Data.AmountMl
		}
		goals[date] = total >= challenge.TargetMetrics.DailyTargetMl
	}
	return goals
}

// Compute reports the current day's ml sum and the target-met day ratio.
func (c *WaterIntakeCalculator) Compute(challenge models.Challenge, records []models.DailyRecord) Snapshot {
	grouped, dates := byDate(records)
	goals := c.DayGoals(challenge, records)

	var snap Snapshot
	for _, met := range goals {
		if met {
			snap.GoalDays++
		}
	}
	if len(dates) > 0 {
		current := 0
		for _, r := range grouped[dates[len(dates)-1]] {
			current += r.Data.AmountMl
		}
		snap.CurrentProgress = float64(current)
	}
	snap.CompletionRate = rate(snap.GoalDays, challenge.DurationDays)
	snap.Score = float64(snap.GoalDays * GoalDayPoints)
	return snap
}

// ColorfulDietCalculator scores color-category coverage of daily meals.
type ColorfulDietCalculator struct{}

func requiredColors(challenge models.Challenge) int {
	if n := challenge.TargetMetrics.RequiredColors; n > 0 {
		return n
	}
	return DefaultRequiredColors
}

// distinctColors counts unique, case-folded color categories across a day's records.
func distinctColors(day []models.DailyRecord) int {
	seen := make(map[string]struct{})
	for _, r := range day {
		for _, col := range r.Data.Colors {
			col = strings.ToLower(strings.TrimSpace(col))
			if col != "" {
				seen[col] = struct{}{}
			}
		}
	}
	return len(seen)
}

// DayGoals marks a date as met when it covers at least the required color categories.
func (c *ColorfulDietCalculator) DayGoals(challenge models.Challenge, records []models.DailyRecord) map[string]bool {
	grouped, _ := byDate(records)
	required := requiredColors(challenge)
	goals := make(map[string]bool, len(grouped))
	for date, day := range grouped {
		goals[date] = distinctColors(day) >= required
	}
	return goals
}

// Compute reports goal-met days, rainbow days, and the bonus-weighted score.
func (c *ColorfulDietCalculator) Compute(challenge models.Challenge, records []models.DailyRecord) Snapshot {
	grouped, _ := byDate(records)
	required := requiredColors(challenge)

	var snap Snapshot
	for _, day := range grouped {
		n := distinctColors(day)
		if n < required {
			continue
		}
		snap.GoalDays++
		points := float64(GoalDayPoints)
		if n >= DefaultRequiredColors {
			snap.RainbowDays++
			points *= RainbowBonusMultiplier
		}
		snap.Score += points
	}
	snap.CurrentProgress = float64(snap.GoalDays)
	snap.CompletionRate = rate(snap.GoalDays, challenge.DurationDays)
	return snap
}

// DIICalculator tracks the rolling average dietary inflammatory index toward
// a target. CompletionRate is recomputed from scratch each call, so a
// regressing average lowers it rather than letting it drift upward.
type DIICalculator struct{}

// DayGoals marks a date as met when its average DII is at or below the target.
func (c *DIICalculator) DayGoals(challenge models.Challenge, records []models.DailyRecord) map[string]bool {
	grouped, _ := byDate(records)
	goals := make(map[string]bool, len(grouped))
	for date, day := range grouped {
		sum, n := 0.0, 0
		for _, r := range day {
			if r.Data.DIIScore != nil {
				sum += *r.Data.DIIScore
				n++
			}
		}
		goals[date] = n > 0 && sum/float64(n) <= challenge.TargetMetrics.TargetDII
	}
	return goals
}

// Compute reports the rolling average DII and how far it has moved from the
// initial DII toward the target, clamped to [0,100].
func (c *DIICalculator) Compute(challenge models.Challenge, records []models.DailyRecord) Snapshot {
	var snap Snapshot
	sum, n := 0.0, 0
	for _, r := range records {
		if r.Data.DIIScore != nil {
			sum += *r.Data.DIIScore
			n++
		}
	}
	if n == 0 {
		return snap
	}
	avg := sum / float64(n)
	snap.CurrentProgress = avg

	initial := challenge.TargetMetrics.InitialDII
	target := challenge.TargetMetrics.TargetDII
	if initial == target {
		snap.CompletionRate = 100
	} else {
		snap.CompletionRate = clamp((initial-avg)/(initial-target)*100, 0, 100)
	}
	for _, met := range c.DayGoals(challenge, records) {
		if met {
			snap.GoalDays++
		}
	}
	snap.Score = float64(snap.GoalDays * GoalDayPoints)
	return snap
}

// FastingCalculator counts days meeting the fasting-hours target. A day
// flagged high-risk never counts, regardless of duration (risk override).
type FastingCalculator struct{}

// DayGoals marks a date as met when any record reaches the fasting target
// and no record of that date was risk-flagged.
func (c *FastingCalculator) DayGoals(challenge models.Challenge, records []models.DailyRecord) map[string]bool {
	grouped, _ := byDate(records)
	goals := make(map[string]bool, len(grouped))
	for date, day := range grouped {
		met, flagged := false, false
		for _, r := range day {
			if r.RiskFlagged {
				flagged = true
			}
			if r.Data.FastingHours >= challenge.TargetMetrics.FastingHours {
				met = true
			}
		}
		goals[date] = met && !flagged
	}
	return goals
}

// Compute reports the goal-met day count and ratio.
func (c *FastingCalculator) Compute(challenge models.Challenge, records []models.DailyRecord) Snapshot {
	var snap Snapshot
	for _, met := range c.DayGoals(challenge, records) {
		if met {
			snap.GoalDays++
		}
	}
	snap.CurrentProgress = float64(snap.GoalDays)
	snap.CompletionRate = rate(snap.GoalDays, challenge.DurationDays)
	snap.Score = float64(snap.GoalDays * GoalDayPoints)
	return snap
}
