package store

import (
	"log/slog"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// DefaultCatalog returns the built-in challenge catalog. The catalog is
// immutable at runtime; the engine only reads it.
func DefaultCatalog() []models.Challenge {
	return []models.Challenge{
		{
			ID:              "water-30",
			Type:            models.ChallengeTypeWaterIntake,
			Title:           "30-Day Hydration",
			Description:     "Drink at least 2 liters of water every day for 30 days.",
			DurationDays:    30,
			DifficultyLevel: models.DifficultyEasy,
			TargetMetrics:   models.TargetMetrics{DailyTargetMl: 2000},
			IsActive:        true,
		},
		{
			ID:              "rainbow-21",
			Type:            models.ChallengeTypeColorfulDiet,
			Title:           "21-Day Rainbow Plate",
			Description:     "Cover five color categories of fruits and vegetables each day.",
			DurationDays:    21,
			DifficultyLevel: models.DifficultyMedium,
			TargetMetrics:   models.TargetMetrics{RequiredColors: 5},
			IsActive:        true,
		},
		{
			ID:                     "dii-28",
			Type:                   models.ChallengeTypeDIIAnalysis,
			Title:                  "28-Day Anti-Inflammatory Diet",
			Description:            "Lower your dietary inflammatory index toward the target score.",
			DurationDays:           28,
			RequiresDoctorApproval: true,
			DifficultyLevel:        models.DifficultyMedium,
			TargetMetrics:          models.TargetMetrics{InitialDII: 3, TargetDII: -1},
			IsActive:               true,
		},
		{
			ID:                     "fasting-16-8",
			Type:                   models.ChallengeTypeIntermittentFasting,
			Title:                  "14-Day 16:8 Fasting",
			Description:            "Fast 16 hours a day for two weeks with daily wellbeing check-ins.",
			DurationDays:           14,
			RequiresDoctorApproval: true,
			DifficultyLevel:        models.DifficultyHard,
			TargetMetrics:          models.TargetMetrics{FastingHours: 16},
			IsActive:               true,
		},
	}
}

// SeedChallenges writes the given catalog entries into the store,
// replacing existing entries with the same IDs.
func SeedChallenges(st Store, catalog []models.Challenge) error {
	for _, c := range catalog {
		if err := st.SaveChallenge(c); err != nil {
			slog.Error("SeedChallenges failed", "error", err, "challengeID", c.ID)
			return err
		}
	}
	slog.Info("Challenge catalog seeded", "count", len(catalog))
	return nil
}
