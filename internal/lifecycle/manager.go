// Package lifecycle owns the enrollment state machine.
//
// Every status change goes through the Manager; no other module writes
// Status. Transitions outside the allowed graph return
// models.ErrInvalidStatusTransition.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumohealth/challenge-engine/internal/models"
	"github.com/lumohealth/challenge-engine/internal/notify"
	"github.com/lumohealth/challenge-engine/internal/progress"
	"github.com/lumohealth/challenge-engine/internal/risk"
	"github.com/lumohealth/challenge-engine/internal/store"
)

// DefaultSuccessThreshold is the completion rate (percent) required to close
// an enrollment as completed.
const DefaultSuccessThreshold = 70.0

// allowedTransitions is the enrollment state graph. Terminal states have no
// outgoing edges.
var allowedTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.StatusPending:  {models.StatusApproved, models.StatusActive, models.StatusCancelled},
	models.StatusApproved: {models.StatusActive, models.StatusCancelled},
	models.StatusActive:   {models.StatusCompleted, models.StatusFailed, models.StatusCancelled},
}

// Manager drives enrollment lifecycle operations against the store.
type Manager struct {
	st        store.Store
	emitter   notify.Emitter
	criteria  risk.Criteria
	threshold float64
	now       func() time.Time
}

// NewManager creates a Manager. A zero threshold falls back to
// DefaultSuccessThreshold.
func NewManager(st store.Store, emitter notify.Emitter, criteria risk.Criteria, successThreshold float64) *Manager {
	if successThreshold <= 0 {
		successThreshold = DefaultSuccessThreshold
	}
	return &Manager{
		st:        st,
		emitter:   emitter,
		criteria:  criteria,
		threshold: successThreshold,
		now:       time.Now,
	}
}

// SuccessThreshold returns the configured completion threshold in percent.
func (m *Manager) SuccessThreshold() float64 { return m.threshold }

// transition moves the enrollment to a new status if the state graph allows
// it, stamping UpdatedAt and CompletedAt as appropriate.
func (m *Manager) transition(e *models.CustomerChallenge, to models.EnrollmentStatus) error {
	for _, allowed := range allowedTransitions[e.Status] {
		if allowed == to {
			now := m.now()
			e.Status = to
			e.UpdatedAt = now
			if to == models.StatusCompleted || to == models.StatusFailed {
				e.CompletedAt = &now
			}
			return nil
		}
	}
	slog.Error("Rejected status transition", "enrollmentID", e.ID, "from", e.Status, "to", to)
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidStatusTransition, e.Status, to)
}

// Join enrolls a customer in a catalog challenge.
//
// The health checklist is risk-screened at enrollment time. Challenges that
// require doctor approval, and any enrollment that screens high-risk, start
// pending; everything else activates immediately.
func (m *Manager) Join(ctx context.Context, req models.JoinRequest) (*models.CustomerChallenge, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	challenge, err := m.st.GetChallenge(req.ChallengeID)
	if err != nil {
		slog.Error("Join failed to load challenge", "error", err, "challengeID", req.ChallengeID)
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil {
		return nil, models.ErrChallengeNotFound
	}
	if !challenge.IsActive {
		return nil, models.ErrChallengeInactive
	}

	existing, err := m.st.ListEnrollmentsByCustomer(req.CustomerID)
	if err != nil {
		slog.Error("Join failed to list enrollments", "error", err, "customerID", req.CustomerID)
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	for _, e := range existing {
		if e.ChallengeID == req.ChallengeID && !e.Status.Terminal() {
			return nil, models.ErrAlreadyParticipating
		}
	}

	assessment := m.criteria.Evaluate(req.HealthChecklist, *challenge)

	now := m.now()
	start := now.Truncate(24 * time.Hour)
	e := models.CustomerChallenge{
		ID:              uuid.NewString(),
		CustomerID:      req.CustomerID,
		ChallengeID:     req.ChallengeID,
		DoctorID:        req.DoctorID,
		Status:          models.StatusPending,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, challenge.DurationDays),
		HealthChecklist: req.HealthChecklist,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	needsReview := challenge.RequiresDoctorApproval || assessment.IsHighRisk
	if !needsReview {
		if err := m.transition(&e, models.StatusActive); err != nil {
			return nil, err
		}
	}

	if err := m.st.SaveEnrollment(e); err != nil {
		slog.Error("Join failed to save enrollment", "error", err, "enrollmentID", e.ID)
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}

	if needsReview {
		priority := models.PriorityNormal
		msg := fmt.Sprintf("Enrollment in %q awaits your approval", challenge.Title)
		if assessment.IsHighRisk {
			priority = models.PriorityHigh
			msg = fmt.Sprintf("%s (risk screening: %s)", msg, strings.Join(assessment.TriggeredReasons, "; "))
		}
		m.emitter.Emit(ctx, models.ChallengeNotification{
			RecipientID:        e.DoctorID,
			RecipientType:      models.RecipientDoctor,
			Type:               models.NotificationApprovalRequest,
			RelatedChallengeID: e.ID,
			Priority:           priority,
			Message:            msg,
			CreatedAt:          now,
		})
	}

	slog.Info("Customer joined challenge", "enrollmentID", e.ID, "customerID", e.CustomerID, "challengeID", e.ChallengeID, "status", e.Status, "highRisk", assessment.IsHighRisk)
	return &e, nil
}

// Approve records a doctor's decision on a pending enrollment.
//
// A rejection cancels the enrollment. An approval stamps ApprovedAt and
// activates immediately when the start date is already reached.
func (m *Manager) Approve(ctx context.Context, req models.ApprovalRequest) (*models.CustomerChallenge, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e, err := m.st.GetEnrollment(req.CustomerChallengeID)
	if err != nil {
		slog.Error("Approve failed to load enrollment", "error", err, "enrollmentID", req.CustomerChallengeID)
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if e == nil {
		return nil, models.ErrEnrollmentNotFound
	}
	if e.Status != models.StatusPending {
		return nil, models.ErrNotPending
	}
	if e.DoctorID != "" && e.DoctorID != req.DoctorID {
		return nil, models.ErrInsufficientPermissions
	}
	// An unassigned enrollment is claimed by the first doctor to review it.
	if e.DoctorID == "" {
		e.DoctorID = req.DoctorID
	}

	now := m.now()
	if req.Notes != "" {
		e.DoctorNotes = req.Notes
	}

	if !req.Approved {
		if err := m.transition(e, models.StatusCancelled); err != nil {
			return nil, err
		}
		if err := m.st.SaveEnrollment(*e); err != nil {
			return nil, fmt.Errorf("failed to save enrollment: %w", err)
		}
		m.emitter.Emit(ctx, models.ChallengeNotification{
			RecipientID:        e.CustomerID,
			RecipientType:      models.RecipientPatient,
			Type:               models.NotificationCancellation,
			RelatedChallengeID: e.ID,
			Priority:           models.PriorityNormal,
			Message:            "Your enrollment was not approved",
			CreatedAt:          now,
		})
		slog.Info("Enrollment rejected", "enrollmentID", e.ID, "doctorID", req.DoctorID)
		return e, nil
	}

	e.ApprovedAt = &now
	if err := m.transition(e, models.StatusApproved); err != nil {
		return nil, err
	}
	// Activate eagerly when the start date has already arrived.
	if !m.now().Before(e.StartDate) {
		if err := m.transition(e, models.StatusActive); err != nil {
			return nil, err
		}
	}
	if err := m.st.SaveEnrollment(*e); err != nil {
		slog.Error("Approve failed to save enrollment", "error", err, "enrollmentID", e.ID)
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}

	m.emitter.Emit(ctx, models.ChallengeNotification{
		RecipientID:        e.CustomerID,
		RecipientType:      models.RecipientPatient,
		Type:               models.NotificationApproval,
		RelatedChallengeID: e.ID,
		Priority:           models.PriorityNormal,
		Message:            "Your enrollment was approved",
		CreatedAt:          now,
	})
	slog.Info("Enrollment approved", "enrollmentID", e.ID, "doctorID", req.DoctorID, "status", e.Status)
	return e, nil
}

// Cancel withdraws a non-terminal enrollment.
func (m *Manager) Cancel(ctx context.Context, enrollmentID string) (*models.CustomerChallenge, error) {
	e, err := m.st.GetEnrollment(enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if e == nil {
		return nil, models.ErrEnrollmentNotFound
	}
	if err := m.transition(e, models.StatusCancelled); err != nil {
		return nil, err
	}
	if err := m.st.SaveEnrollment(*e); err != nil {
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}
	m.emitter.Emit(ctx, models.ChallengeNotification{
		RecipientID:        e.CustomerID,
		RecipientType:      models.RecipientPatient,
		Type:               models.NotificationCancellation,
		RelatedChallengeID: e.ID,
		Priority:           models.PriorityNormal,
		Message:            "Challenge cancelled",
		CreatedAt:          m.now(),
	})
	slog.Info("Enrollment cancelled", "enrollmentID", e.ID)
	return e, nil
}

// FailForRisk halts an active enrollment after a high-risk submission and
// alerts both the patient and the assigned doctor.
func (m *Manager) FailForRisk(ctx context.Context, e *models.CustomerChallenge, reasons []string) error {
	if err := m.transition(e, models.StatusFailed); err != nil {
		return err
	}
	if err := m.st.SaveEnrollment(*e); err != nil {
		slog.Error("FailForRisk failed to save enrollment", "error", err, "enrollmentID", e.ID)
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	now := m.now()
	msg := "Challenge halted for safety: " + strings.Join(reasons, "; ")
	for _, recipient := range []struct {
		id string
		rt models.RecipientType
	}{
		{e.DoctorID, models.RecipientDoctor},
		{e.CustomerID, models.RecipientPatient},
	} {
		if recipient.id == "" {
			continue
		}
		m.emitter.Emit(ctx, models.ChallengeNotification{
			RecipientID:        recipient.id,
			RecipientType:      recipient.rt,
			Type:               models.NotificationRiskAlert,
			RelatedChallengeID: e.ID,
			Priority:           models.PriorityUrgent,
			Message:            msg,
			CreatedAt:          now,
		})
	}
	slog.Warn("Enrollment halted for risk", "enrollmentID", e.ID, "reasons", reasons)
	return nil
}

// RecordProgress stores a freshly computed snapshot on the enrollment and
// fails it early when the success threshold is mathematically out of reach
// even with a perfect remainder.
func (m *Manager) RecordProgress(ctx context.Context, e *models.CustomerChallenge, challenge models.Challenge, snap progress.Snapshot) error {
	e.CurrentProgress = snap.CurrentProgress
	e.CompletionRate = snap.CompletionRate
	e.UpdatedAt = m.now()

	// The projection below assumes day-count completion; a rolling DII
	// average can still recover late, so it is exempt.
	if e.Status == models.StatusActive && challenge.DurationDays > 0 && challenge.Type != models.ChallengeTypeDIIAnalysis {
		remaining := m.remainingDays(e)
		maxRate := float64(snap.GoalDays+remaining) / float64(challenge.DurationDays) * 100
		if maxRate < m.threshold {
			if err := m.transition(e, models.StatusFailed); err != nil {
				return err
			}
			if err := m.st.SaveEnrollment(*e); err != nil {
				return fmt.Errorf("failed to save enrollment: %w", err)
			}
			m.emitter.Emit(ctx, models.ChallengeNotification{
				RecipientID:        e.CustomerID,
				RecipientType:      models.RecipientPatient,
				Type:               models.NotificationRiskAlert,
				RelatedChallengeID: e.ID,
				Priority:           models.PriorityHigh,
				Message:            fmt.Sprintf("The success threshold of %.0f%% can no longer be reached", m.threshold),
				CreatedAt:          m.now(),
			})
			slog.Info("Enrollment failed early", "enrollmentID", e.ID, "maxRate", maxRate, "threshold", m.threshold)
			return nil
		}
	}

	if err := m.st.SaveEnrollment(*e); err != nil {
		slog.Error("RecordProgress failed to save enrollment", "error", err, "enrollmentID", e.ID)
		return fmt.Errorf("failed to save enrollment: %w", err)
	}
	return nil
}

// remainingDays counts the calendar days from today through the end date
// that could still produce a goal-met record.
func (m *Manager) remainingDays(e *models.CustomerChallenge) int {
	days := int(e.EndDate.Sub(m.now().Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ActivateDue moves approved enrollments whose start date has arrived to
// active. Called by the sweeper.
func (m *Manager) ActivateDue(ctx context.Context) error {
	approved, err := m.st.ListEnrollmentsByStatus(models.StatusApproved)
	if err != nil {
		return fmt.Errorf("failed to list approved enrollments: %w", err)
	}
	now := m.now()
	for i := range approved {
		e := &approved[i]
		if now.Before(e.StartDate) {
			continue
		}
		if err := m.transition(e, models.StatusActive); err != nil {
			slog.Error("ActivateDue transition failed", "error", err, "enrollmentID", e.ID)
			continue
		}
		if err := m.st.SaveEnrollment(*e); err != nil {
			slog.Error("ActivateDue failed to save enrollment", "error", err, "enrollmentID", e.ID)
			continue
		}
		slog.Info("Enrollment activated", "enrollmentID", e.ID)
	}
	return nil
}

// CloseDue finalizes active enrollments whose end date has passed: completed
// at or above the success threshold, failed below it. Called by the sweeper.
func (m *Manager) CloseDue(ctx context.Context) error {
	active, err := m.st.ListEnrollmentsByStatus(models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to list active enrollments: %w", err)
	}
	now := m.now()
	for i := range active {
		e := &active[i]
		if now.Before(e.EndDate) {
			continue
		}

		final := models.StatusFailed
		notifType := models.NotificationProgressUpdate
		msg := fmt.Sprintf("Challenge ended at %.1f%%, below the %.0f%% success threshold", e.CompletionRate, m.threshold)
		if e.CompletionRate >= m.threshold {
			final = models.StatusCompleted
			notifType = models.NotificationCompletion
			msg = fmt.Sprintf("Challenge completed at %.1f%%", e.CompletionRate)
		}

		if err := m.transition(e, final); err != nil {
			slog.Error("CloseDue transition failed", "error", err, "enrollmentID", e.ID)
			continue
		}
		if err := m.st.SaveEnrollment(*e); err != nil {
			slog.Error("CloseDue failed to save enrollment", "error", err, "enrollmentID", e.ID)
			continue
		}
		m.emitter.Emit(ctx, models.ChallengeNotification{
			RecipientID:        e.CustomerID,
			RecipientType:      models.RecipientPatient,
			Type:               notifType,
			RelatedChallengeID: e.ID,
			Priority:           models.PriorityNormal,
			Message:            msg,
			CreatedAt:          now,
		})
		slog.Info("Enrollment closed", "enrollmentID", e.ID, "status", final, "completionRate", e.CompletionRate)
	}
	return nil
}
