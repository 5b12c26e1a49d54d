// Package milestone tracks goal-met streaks and unlocks achievements when
// configured day-thresholds are crossed.
//
// Each milestone unlocks at most once per enrollment: crossing a threshold
// emits an achievement event the first time only.
package milestone

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lumohealth/challenge-engine/internal/models"
	"github.com/lumohealth/challenge-engine/internal/notify"
	"github.com/lumohealth/challenge-engine/internal/store"
)

// DefaultThresholds are the streak lengths that unlock achievements.
var DefaultThresholds = []int{3, 7, 14, 30}

// Tracker evaluates streaks against milestone thresholds and records unlocks.
type Tracker struct {
	st         store.Store
	emitter    notify.Emitter
	thresholds []int
}

// NewTracker creates a Tracker. Nil thresholds fall back to DefaultThresholds.
func NewTracker(st store.Store, emitter notify.Emitter, thresholds []int) *Tracker {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	sorted := make([]int, len(thresholds))
	copy(sorted, thresholds)
	sort.Ints(sorted)
	return &Tracker{st: st, emitter: emitter, thresholds: sorted}
}

// CurrentStreak returns the consecutive run of goal-met days ending at the
// latest recorded date. If the latest day missed its goal the streak is 0.
func CurrentStreak(goals map[string]bool) int {
	if len(goals) == 0 {
		return 0
	}
	var latest time.Time
	for date := range goals {
		d, err := time.Parse(models.DateLayout, date)
		if err != nil {
			continue
		}
		if d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return 0
	}

	streak := 0
	for d := latest; ; d = d.AddDate(0, 0, -1) {
		met, recorded := goals[d.Format(models.DateLayout)]
		if !recorded || !met {
			break
		}
		streak++
	}
	return streak
}

// Evaluate compares the current streak against the thresholds and persists
// and announces any newly crossed milestones. Already unlocked milestones
// are never re-emitted.
func (t *Tracker) Evaluate(ctx context.Context, e models.CustomerChallenge, goals map[string]bool) ([]models.Achievement, int, error) {
	streak := CurrentStreak(goals)
	slog.Debug("Milestone Evaluate", "enrollmentID", e.ID, "streak", streak)

	existing, err := t.st.GetAchievements(e.ID)
	if err != nil {
		slog.Error("Milestone Evaluate failed to load achievements", "error", err, "enrollmentID", e.ID)
		return nil, streak, fmt.Errorf("failed to load achievements: %w", err)
	}
	unlocked := make(map[int]bool, len(existing))
	for _, a := range existing {
		unlocked[a.MilestoneDays] = true
	}

	var newly []models.Achievement
	for _, threshold := range t.thresholds {
		if streak < threshold || unlocked[threshold] {
			continue
		}
		a := models.Achievement{
			ID:                  uuid.NewString(),
			CustomerChallengeID: e.ID,
			MilestoneDays:       threshold,
			UnlockedAt:          time.Now(),
		}
		if err := t.st.SaveAchievement(a); err != nil {
			slog.Error("Milestone Evaluate failed to save achievement", "error", err, "enrollmentID", e.ID, "milestone", threshold)
			return newly, streak, fmt.Errorf("failed to save achievement: %w", err)
		}
		newly = append(newly, a)
		t.emitter.Emit(ctx, models.ChallengeNotification{
			RecipientID:        e.CustomerID,
			RecipientType:      models.RecipientPatient,
			Type:               models.NotificationAchievement,
			RelatedChallengeID: e.ID,
			Priority:           models.PriorityNormal,
			Message:            fmt.Sprintf("%d-day streak unlocked", threshold),
			CreatedAt:          time.Now(),
		})
		slog.Info("Milestone unlocked", "enrollmentID", e.ID, "milestone", threshold, "streak", streak)
	}
	return newly, streak, nil
}

// Next returns the smallest threshold above the current streak, or 0 when
// every milestone is already within reach of the streak.
func (t *Tracker) Next(streak int) int {
	for _, threshold := range t.thresholds {
		if threshold > streak {
			return threshold
		}
	}
	return 0
}
