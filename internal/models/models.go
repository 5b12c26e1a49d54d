// Package models defines the core data structures for the challenge engine.
//
// It includes the challenge catalog, enrollments, daily records, AI analysis
// results, and notification events shared across modules.
package models

import (
	"errors"
	"time"
)

// ChallengeType identifies the kind of habit challenge.
type ChallengeType string

const (
	// ChallengeTypeWaterIntake tracks daily water consumption against a ml target.
	ChallengeTypeWaterIntake ChallengeType = "water_intake"
	// ChallengeTypeColorfulDiet tracks color-category coverage of daily meals.
	ChallengeTypeColorfulDiet ChallengeType = "colorful_diet"
	// ChallengeTypeDIIAnalysis tracks the dietary inflammatory index toward a target.
	ChallengeTypeDIIAnalysis ChallengeType = "dii_analysis"
	// ChallengeTypeIntermittentFasting tracks daily fasting duration.
	ChallengeTypeIntermittentFasting ChallengeType = "intermittent_fasting"
)

// IsValidChallengeType checks if the given challenge type is supported.
func IsValidChallengeType(ct ChallengeType) bool {
	switch ct {
	case ChallengeTypeWaterIntake, ChallengeTypeColorfulDiet, ChallengeTypeDIIAnalysis, ChallengeTypeIntermittentFasting:
		return true
	default:
		return false
	}
}

// CaloricRestriction reports whether the challenge type restricts caloric
// intake. Underweight patients must not enroll in these without review.
func (ct ChallengeType) CaloricRestriction() bool {
	return ct == ChallengeTypeDIIAnalysis || ct == ChallengeTypeIntermittentFasting
}

// DifficultyLevel grades how demanding a challenge is.
type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// EnrollmentStatus is the state of a CustomerChallenge.
type EnrollmentStatus string

const (
	// StatusPending indicates the enrollment awaits doctor approval.
	StatusPending EnrollmentStatus = "pending"
	// StatusApproved indicates a doctor approved but the start date is not reached.
	StatusApproved EnrollmentStatus = "approved"
	// StatusActive indicates the challenge window is open and records are accepted.
	StatusActive EnrollmentStatus = "active"
	// StatusCompleted indicates the challenge finished at or above the success threshold.
	StatusCompleted EnrollmentStatus = "completed"
	// StatusCancelled indicates the enrollment was withdrawn or rejected.
	StatusCancelled EnrollmentStatus = "cancelled"
	// StatusFailed indicates a risk halt or an unmet threshold at the end date.
	StatusFailed EnrollmentStatus = "failed"
)

// Terminal reports whether the status is immutable thereafter.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// DateLayout is the calendar-day format used for daily record keys.
const DateLayout = "2006-01-02"

// Error variables for better error handling and testability
var (
	ErrChallengeNotFound        = errors.New("challenge not found")
	ErrChallengeInactive        = errors.New("challenge is not active in the catalog")
	ErrEnrollmentNotFound       = errors.New("enrollment not found")
	ErrAlreadyParticipating     = errors.New("customer already participating in this challenge")
	ErrNotPending               = errors.New("enrollment is not pending approval")
	ErrChallengeNotActive       = errors.New("enrollment is not accepting records")
	ErrDailyRecordExists        = errors.New("daily record already exists for this date and type")
	ErrInvalidRecordData        = errors.New("invalid record data")
	ErrInsufficientPermissions  = errors.New("doctor is not assigned to this enrollment")
	ErrInvalidStatusTransition  = errors.New("invalid enrollment status transition")
	ErrRecordTypeMismatch       = errors.New("record type does not match challenge type")
	ErrMissingCustomerID        = errors.New("customer id is required")
	ErrMissingChallengeID       = errors.New("challenge id is required")
	ErrMissingEnrollmentID      = errors.New("enrollment id is required")
	ErrNonPositiveAmount        = errors.New("water amount must be positive")
	ErrNoColors                 = errors.New("at least one color category is required")
	ErrMissingDIIScore          = errors.New("dii score is required")
	ErrNonPositiveFastingHours  = errors.New("fasting hours must be positive")
	ErrConditionScoreOutOfRange = errors.New("condition score must be between 1 and 10")
)

// TargetMetrics is the type-specific parameter bag of a challenge.
// Only the fields relevant to the challenge type are set.
type TargetMetrics struct {
	DailyTargetMl  int     `json:"daily_target_ml,omitempty"` // water_intake
	RequiredColors int     `json:"required_colors,omitempty"` // colorful_diet
	InitialDII     float64 `json:"initial_dii,omitempty"`     // dii_analysis
	TargetDII      float64 `json:"target_dii,omitempty"`      // dii_analysis
	FastingHours   float64 `json:"fasting_hours,omitempty"`   // intermittent_fasting
}

// Challenge is a catalog entry. Seeded at startup and never mutated by the engine.
type Challenge struct {
	ID                     string          `json:"id"`
	Type                   ChallengeType   `json:"type"`
	Title                  string          `json:"title"`
	Description            string          `json:"description,omitempty"`
	DurationDays           int             `json:"duration_days"`
	RequiresDoctorApproval bool            `json:"requires_doctor_approval"`
	DifficultyLevel        DifficultyLevel `json:"difficulty_level"`
	TargetMetrics          TargetMetrics   `json:"target_metrics"`
	IsActive               bool            `json:"is_active"`
}

// HealthChecklist is the patient's health snapshot captured at enrollment.
// It is immutable once the enrollment leaves pending; a later change
// requires a new enrollment.
type HealthChecklist struct {
	Age                 int      `json:"age"`
	WeightKg            float64  `json:"weight_kg"`
	HeightCm            float64  `json:"height_cm"`
	MedicalConditions   []string `json:"medical_conditions,omitempty"`
	Medications         []string `json:"medications,omitempty"`
	Allergies           []string `json:"allergies,omitempty"`
	ExerciseLevel       string   `json:"exercise_level,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	HasExperience       bool     `json:"has_experience"`
}

// BMI computes body mass index from the checklist. Returns 0 when height is unset.
func (h HealthChecklist) BMI() float64 {
	if h.HeightCm <= 0 {
		return 0
	}
	m := h.HeightCm / 100
	return h.WeightKg / (m * m)
}

// CustomerChallenge is one patient's attempt at one challenge — the aggregate root.
// Only the lifecycle manager may change Status.
type CustomerChallenge struct {
	ID              string           `json:"id"`
	CustomerID      string           `json:"customer_id"`
	ChallengeID     string           `json:"challenge_id"`
	DoctorID        string           `json:"doctor_id,omitempty"`
	Status          EnrollmentStatus `json:"status"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	TargetValue     float64          `json:"target_value,omitempty"`
	CurrentProgress float64          `json:"current_progress"`
	CompletionRate  float64          `json:"completion_rate"`
	HealthChecklist HealthChecklist  `json:"health_checklist"`
	DoctorNotes     string           `json:"doctor_notes,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// RecordData is the type-specific payload of a daily record. Only the
// fields matching the record type are populated.
type RecordData struct {
	// water_intake
	AmountMl int    `json:"amount_ml,omitempty"`
	Time     string `json:"time,omitempty"` // HH:MM, optional

	// colorful_diet
	Colors []string `json:"colors,omitempty"`

	// dii_analysis
	DIIScore  *float64 `json:"dii_score,omitempty"`
	FoodItems []string `json:"food_items,omitempty"`

	// intermittent_fasting
	FastingHours   float64  `json:"fasting_hours,omitempty"`
	ConditionScore int      `json:"condition_score,omitempty"` // 1-10 self-reported wellbeing
	Symptoms       []string `json:"symptoms,omitempty"`
}

// Validate checks the payload against the requirements of the record type.
func (d RecordData) Validate(rt ChallengeType) error {
	switch rt {
	case ChallengeTypeWaterIntake:
		if d.AmountMl <= 0 {
			return ErrNonPositiveAmount
		}
		if d.Time != "" {
			if _, err := time.Parse("15:04", d.Time); err != nil {
				return errors.New("time must be in HH:MM format")
			}
		}
	case ChallengeTypeColorfulDiet:
		if len(d.Colors) == 0 {
			return ErrNoColors
		}
	case ChallengeTypeDIIAnalysis:
		if d.DIIScore == nil {
			return ErrMissingDIIScore
		}
	case ChallengeTypeIntermittentFasting:
		if d.FastingHours <= 0 {
			return ErrNonPositiveFastingHours
		}
		if d.ConditionScore < 1 || d.ConditionScore > 10 {
			return ErrConditionScoreOutOfRange
		}
	default:
		return ErrInvalidRecordData
	}
	return nil
}

// DailyRecord is one day's submission for an enrollment. Records are
// append-only; corrections are new records, never edits.
type DailyRecord struct {
	ID                  string        `json:"id"`
	CustomerChallengeID string        `json:"customer_challenge_id"`
	RecordDate          string        `json:"record_date"` // calendar day, DateLayout
	RecordType          ChallengeType `json:"record_type"`
	Data                RecordData    `json:"data"`
	Analysis            *AIAnalysis   `json:"ai_analysis,omitempty"`
	ProgressValue       float64       `json:"progress_value"`
	RiskFlagged         bool          `json:"risk_flagged"`
	Notes               string        `json:"notes,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Achievement marks a milestone streak unlocked for an enrollment.
// Unlocked at most once per (enrollment, milestone).
type Achievement struct {
	ID                  string    `json:"id"`
	CustomerChallengeID string    `json:"customer_challenge_id"`
	MilestoneDays       int       `json:"milestone_days"`
	UnlockedAt          time.Time `json:"unlocked_at"`
}

// DayProgress is one day's contribution within a progress report.
type DayProgress struct {
	Date    string  `json:"date"`
	Value   float64 `json:"value"`
	GoalMet bool    `json:"goal_met"`
}

// ChallengeProgress is the full progress view returned by GetProgress.
type ChallengeProgress struct {
	CustomerChallengeID string           `json:"customer_challenge_id"`
	Status              EnrollmentStatus `json:"status"`
	CurrentProgress     float64          `json:"current_progress"`
	CompletionRate      float64          `json:"completion_rate"`
	DailyRecords        []DailyRecord    `json:"daily_records"`
	WeeklyTrend         []DayProgress    `json:"weekly_trend"`
	Achievements        []Achievement    `json:"achievements"`
	CurrentStreak       int              `json:"current_streak"`
	NextMilestone       int              `json:"next_milestone,omitempty"` // 0 when all milestones unlocked
}
