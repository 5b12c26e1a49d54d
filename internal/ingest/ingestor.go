// Package ingest accepts daily record submissions and assembles progress
// views.
//
// A submission is risk-screened, persisted, and reflected in the
// enrollment's progress before the optional AI annotation runs. The record
// write is never lost to an annotation failure.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumohealth/challenge-engine/internal/analysis"
	"github.com/lumohealth/challenge-engine/internal/lifecycle"
	"github.com/lumohealth/challenge-engine/internal/milestone"
	"github.com/lumohealth/challenge-engine/internal/models"
	"github.com/lumohealth/challenge-engine/internal/progress"
	"github.com/lumohealth/challenge-engine/internal/risk"
	"github.com/lumohealth/challenge-engine/internal/store"
)

// Ingestor coordinates record submission across risk screening, storage,
// progress, milestones, and AI annotation.
type Ingestor struct {
	st           store.Store
	manager      *lifecycle.Manager
	tracker      *milestone.Tracker
	orchestrator *analysis.Orchestrator // nil disables annotation
	criteria     risk.Criteria

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngestor creates an Ingestor. A nil orchestrator disables AI annotation;
// records are then stored with AnalysisSkipped.
func NewIngestor(st store.Store, manager *lifecycle.Manager, tracker *milestone.Tracker, orchestrator *analysis.Orchestrator, criteria risk.Criteria) *Ingestor {
	return &Ingestor{
		st:           st,
		manager:      manager,
		tracker:      tracker,
		orchestrator: orchestrator,
		criteria:     criteria,
		locks:        make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing submissions for one
// (enrollment, date, type) key, so concurrent duplicates resolve to exactly
// one stored record.
func (in *Ingestor) lockFor(key string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	l, ok := in.locks[key]
	if !ok {
		l = &sync.Mutex{}
		in.locks[key] = l
	}
	return l
}

// SubmitDailyRecord validates, risk-screens, and stores one day's submission.
//
// High-risk fasting submissions are still persisted, then halt the
// enrollment and skip annotation. Otherwise progress and milestones are
// recomputed and the AI annotation runs last; its outcome is reported in
// AnalysisStatus and never fails the submission.
func (in *Ingestor) SubmitDailyRecord(ctx context.Context, req models.SubmitRecordRequest) (*models.SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e, err := in.st.GetEnrollment(req.CustomerChallengeID)
	if err != nil {
		slog.Error("SubmitDailyRecord failed to load enrollment", "error", err, "enrollmentID", req.CustomerChallengeID)
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if e == nil {
		return nil, models.ErrEnrollmentNotFound
	}
	if e.Status != models.StatusActive {
		return nil, models.ErrChallengeNotActive
	}

	challenge, err := in.st.GetChallenge(e.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil {
		return nil, models.ErrChallengeNotFound
	}
	if req.RecordType != challenge.Type {
		return nil, models.ErrRecordTypeMismatch
	}
	if err := req.Data.Validate(req.RecordType); err != nil {
		return nil, err
	}

	date := req.RecordDate
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad record date %q", models.ErrInvalidRecordData, req.RecordDate)
	}
	// A record may be backfilled within the enrollment window but never
	// dated in the future; date strings in this layout compare lexically.
	start, end := e.StartDate.Format(models.DateLayout), e.EndDate.Format(models.DateLayout)
	if today := time.Now().Format(models.DateLayout); date < start || date > end || date > today {
		return nil, fmt.Errorf("%w: record date %s outside the challenge window %s to %s", models.ErrInvalidRecordData, date, start, end)
	}

	result, err := in.storeSubmission(ctx, e, *challenge, req, date)
	if err != nil {
		return nil, err
	}
	if result.RiskHalted {
		return result, nil
	}

	in.annotate(ctx, *challenge, result)
	return result, nil
}

// storeSubmission risk-screens and persists one record and refreshes the
// enrollment's progress, serialized per (enrollment, date, type) key. The
// lock is released before any AI provider is contacted, so a concurrent
// duplicate resolves as soon as the write lands.
func (in *Ingestor) storeSubmission(ctx context.Context, e *models.CustomerChallenge, challenge models.Challenge, req models.SubmitRecordRequest, date string) (*models.SubmitResult, error) {
	key := fmt.Sprintf("%s|%s|%s", e.ID, date, req.RecordType)
	lock := in.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	assessment := in.criteria.EvaluateSubmission(e.HealthChecklist, challenge, req.Data)

	record := models.DailyRecord{
		ID:                  uuid.NewString(),
		CustomerChallengeID: e.ID,
		RecordDate:          date,
		RecordType:          req.RecordType,
		Data:                req.Data,
		ProgressValue:       progressValue(req.RecordType, req.Data),
		RiskFlagged:         assessment.IsHighRisk,
		Notes:               req.Notes,
		CreatedAt:           time.Now(),
	}
	if err := in.st.AddDailyRecord(record); err != nil {
		if errors.Is(err, models.ErrDailyRecordExists) {
			return nil, err
		}
		slog.Error("SubmitDailyRecord failed to store record", "error", err, "enrollmentID", e.ID, "date", date)
		return nil, fmt.Errorf("failed to store record: %w", err)
	}
	slog.Debug("Daily record stored", "recordID", record.ID, "enrollmentID", e.ID, "date", date, "riskFlagged", record.RiskFlagged)

	result := &models.SubmitResult{Record: record, AnalysisStatus: models.AnalysisSkipped}

	if assessment.IsHighRisk {
		if err := in.manager.FailForRisk(ctx, e, assessment.TriggeredReasons); err != nil {
			slog.Error("Risk halt failed", "error", err, "enrollmentID", e.ID)
			return nil, fmt.Errorf("failed to halt enrollment: %w", err)
		}
		result.RiskHalted = true
		result.AnalysisStatus = models.AnalysisSkippedRisk
		return result, nil
	}

	if err := in.refreshProgress(ctx, e, challenge); err != nil {
		return nil, err
	}
	return result, nil
}

// refreshProgress recomputes the enrollment's snapshot from the full record
// set and re-evaluates milestone streaks.
func (in *Ingestor) refreshProgress(ctx context.Context, e *models.CustomerChallenge, challenge models.Challenge) error {
	records, err := in.st.GetDailyRecords(e.ID)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	snap, err := progress.Compute(challenge, records)
	if err != nil {
		return err
	}
	if err := in.manager.RecordProgress(ctx, e, challenge, snap); err != nil {
		return err
	}

	goals, err := progress.DayGoals(challenge, records)
	if err != nil {
		return err
	}
	if _, _, err := in.tracker.Evaluate(ctx, *e, goals); err != nil {
		slog.Error("Milestone evaluation failed", "error", err, "enrollmentID", e.ID)
	}
	return nil
}

// annotate runs the AI annotation for the stored record and reflects the
// outcome in the result. Annotation failures never propagate.
func (in *Ingestor) annotate(ctx context.Context, challenge models.Challenge, result *models.SubmitResult) {
	analysisType := analysis.AnalysisTypeFor(challenge.Type)
	if in.orchestrator == nil || analysisType == "" {
		return
	}

	record := &result.Record
	payload := analysis.Payload{RecordType: record.RecordType, Data: record.Data, Notes: record.Notes}
	a, err := in.orchestrator.Annotate(ctx, payload, analysisType)
	switch {
	case errors.Is(err, analysis.ErrCostLimitExceeded):
		result.AnalysisStatus = models.AnalysisCostLimited
		return
	case err != nil:
		result.AnalysisStatus = models.AnalysisUnavailable
		return
	}

	if err := in.st.AttachAnalysis(record.ID, *a); err != nil {
		slog.Error("Failed to attach analysis", "error", err, "recordID", record.ID)
		result.AnalysisStatus = models.AnalysisUnavailable
		return
	}
	record.Analysis = a
	if a.LowConfidence {
		result.AnalysisStatus = models.AnalysisLowConfidence
		return
	}
	result.AnalysisStatus = models.AnalysisAttached
}

// GetProgress assembles the full progress view for an enrollment.
func (in *Ingestor) GetProgress(ctx context.Context, enrollmentID string) (*models.ChallengeProgress, error) {
	e, err := in.st.GetEnrollment(enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if e == nil {
		return nil, models.ErrEnrollmentNotFound
	}
	challenge, err := in.st.GetChallenge(e.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil {
		return nil, models.ErrChallengeNotFound
	}
	records, err := in.st.GetDailyRecords(e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	snap, err := progress.Compute(*challenge, records)
	if err != nil {
		return nil, err
	}
	goals, err := progress.DayGoals(*challenge, records)
	if err != nil {
		return nil, err
	}
	achievements, err := in.st.GetAchievements(e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievements: %w", err)
	}
	streak := milestone.CurrentStreak(goals)

	return &models.ChallengeProgress{
		CustomerChallengeID: e.ID,
		Status:              e.Status,
		CurrentProgress:     snap.CurrentProgress,
		CompletionRate:      snap.CompletionRate,
		DailyRecords:        records,
		WeeklyTrend:         weeklyTrend(records, goals),
		Achievements:        achievements,
		CurrentStreak:       streak,
		NextMilestone:       in.tracker.Next(streak),
	}, nil
}

// weeklyTrend summarizes the last seven calendar days ending today. Days
// without a record appear with a zero value and an unmet goal.
func weeklyTrend(records []models.DailyRecord, goals map[string]bool) []models.DayProgress {
	byDate := make(map[string]float64)
	for _, r := range records {
		byDate[r.RecordDate] += r.ProgressValue
	}

	trend := make([]models.DayProgress, 0, 7)
	today := time.Now()
	for i := 6; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(models.DateLayout)
		trend = append(trend, models.DayProgress{
			Date:    date,
			Value:   byDate[date],
			GoalMet: goals[date],
		})
	}
	return trend
}

// progressValue extracts the per-record numeric contribution for its type.
func progressValue(rt models.ChallengeType, data models.RecordData) float64 {
	switch rt {
	case models.ChallengeTypeWaterIntake:
		return float64(data.AmountMl)
	case models.ChallengeTypeColorfulDiet:
		return float64(len(data.Colors))
	case models.ChallengeTypeDIIAnalysis:
		if data.DIIScore != nil {
			return *data.DIIScore
		}
		return 0
	case models.ChallengeTypeIntermittentFasting:
		return data.FastingHours
	default:
		return 0
	}
}
