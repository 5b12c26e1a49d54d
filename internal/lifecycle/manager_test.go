package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumohealth/challenge-engine/internal/models"
	"github.com/lumohealth/challenge-engine/internal/notify"
	"github.com/lumohealth/challenge-engine/internal/progress"
	"github.com/lumohealth/challenge-engine/internal/risk"
	"github.com/lumohealth/challenge-engine/internal/store"
)

func healthyChecklist() models.HealthChecklist {
	return models.HealthChecklist{Age: 35, WeightKg: 80, HeightCm: 178}
}

func newTestManager(t *testing.T) (*Manager, store.Store, *notify.MemoryEmitter) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := store.SeedChallenges(st, store.DefaultCatalog()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	emitter := notify.NewMemoryEmitter()
	m := NewManager(st, emitter, risk.DefaultCriteria(), 0)
	return m, st, emitter
}

func TestJoinActivatesImmediatelyWithoutApproval(t *testing.T) {
	m, _, emitter := newTestManager(t)

	e, err := m.Join(context.Background(), models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "water-30",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if e.Status != models.StatusActive {
		t.Errorf("expected immediate activation, got %s", e.Status)
	}
	if e.EndDate.Sub(e.StartDate) != 30*24*time.Hour {
		t.Errorf("unexpected challenge window: %s to %s", e.StartDate, e.EndDate)
	}
	if got := emitter.EventsOfType(models.NotificationApprovalRequest); len(got) != 0 {
		t.Errorf("no approval request expected, got %d", len(got))
	}
}

func TestJoinApprovalRequiredGoesPending(t *testing.T) {
	m, _, emitter := newTestManager(t)

	e, err := m.Join(context.Background(), models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "dii-28",
		DoctorID:        "doc-1",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if e.Status != models.StatusPending {
		t.Errorf("expected pending, got %s", e.Status)
	}
	reqs := emitter.EventsOfType(models.NotificationApprovalRequest)
	if len(reqs) != 1 || reqs[0].RecipientID != "doc-1" || reqs[0].RecipientType != models.RecipientDoctor {
		t.Fatalf("expected one approval request to doc-1, got %+v", reqs)
	}
	if reqs[0].Priority != models.PriorityNormal {
		t.Errorf("healthy checklist should yield normal priority, got %s", reqs[0].Priority)
	}
}

func TestJoinHighRiskForcesReview(t *testing.T) {
	m, _, emitter := newTestManager(t)

	// Water intake needs no approval, but a high-risk condition forces review.
	e, err := m.Join(context.Background(), models.JoinRequest{
		CustomerID:  "cust-1",
		ChallengeID: "water-30",
		DoctorID:    "doc-1",
		HealthChecklist: models.HealthChecklist{
			Age: 35, WeightKg: 80, HeightCm: 178,
			MedicalConditions: []string{"type 2 diabetes"},
		},
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if e.Status != models.StatusPending {
		t.Errorf("high-risk join should be pending, got %s", e.Status)
	}
	reqs := emitter.EventsOfType(models.NotificationApprovalRequest)
	if len(reqs) != 1 || reqs[0].Priority != models.PriorityHigh {
		t.Fatalf("expected one high-priority approval request, got %+v", reqs)
	}
}

func TestJoinRejectsDuplicateParticipation(t *testing.T) {
	m, _, _ := newTestManager(t)
	req := models.JoinRequest{CustomerID: "cust-1", ChallengeID: "water-30", HealthChecklist: healthyChecklist()}

	if _, err := m.Join(context.Background(), req); err != nil {
		t.Fatalf("first Join error: %v", err)
	}
	if _, err := m.Join(context.Background(), req); !errors.Is(err, models.ErrAlreadyParticipating) {
		t.Fatalf("expected ErrAlreadyParticipating, got %v", err)
	}
}

func TestJoinAfterTerminalEnrollmentAllowed(t *testing.T) {
	m, _, _ := newTestManager(t)
	req := models.JoinRequest{CustomerID: "cust-1", ChallengeID: "water-30", HealthChecklist: healthyChecklist()}

	e, err := m.Join(context.Background(), req)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if _, err := m.Cancel(context.Background(), e.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if _, err := m.Join(context.Background(), req); err != nil {
		t.Fatalf("rejoining after cancellation should work, got %v", err)
	}
}

func TestJoinUnknownOrInactiveChallenge(t *testing.T) {
	m, st, _ := newTestManager(t)

	_, err := m.Join(context.Background(), models.JoinRequest{CustomerID: "c", ChallengeID: "nope", HealthChecklist: healthyChecklist()})
	if !errors.Is(err, models.ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}

	retired := models.Challenge{ID: "retired", Type: models.ChallengeTypeWaterIntake, DurationDays: 7, IsActive: false}
	if err := st.SaveChallenge(retired); err != nil {
		t.Fatalf("SaveChallenge error: %v", err)
	}
	_, err = m.Join(context.Background(), models.JoinRequest{CustomerID: "c", ChallengeID: "retired", HealthChecklist: healthyChecklist()})
	if !errors.Is(err, models.ErrChallengeInactive) {
		t.Fatalf("expected ErrChallengeInactive, got %v", err)
	}
}

func TestApproveActivatesWhenStartDateReached(t *testing.T) {
	m, _, emitter := newTestManager(t)

	e, err := m.Join(context.Background(), models.JoinRequest{
		CustomerID: "cust-1", ChallengeID: "dii-28", DoctorID: "doc-1",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	got, err := m.Approve(context.Background(), models.ApprovalRequest{
		CustomerChallengeID: e.ID, DoctorID: "doc-1", Approved: true, Notes: "cleared for the program",
	})
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if got.Status != models.StatusActive {
		t.Errorf("start date already reached, expected active, got %s", got.Status)
	}
	if got.ApprovedAt == nil || got.DoctorNotes != "cleared for the program" {
		t.Errorf("approval metadata not recorded: %+v", got)
	}
	if n := emitter.EventsOfType(models.NotificationApproval); len(n) != 1 || n[0].RecipientID != "cust-1" {
		t.Fatalf("expected one approval notification to the patient, got %+v", n)
	}
}

func TestApprovePermissionAndStateChecks(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{
		CustomerID: "cust-1", ChallengeID: "dii-28", DoctorID: "doc-1",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	_, err = m.Approve(ctx, models.ApprovalRequest{CustomerChallengeID: e.ID, DoctorID: "doc-other", Approved: true})
	if !errors.Is(err, models.ErrInsufficientPermissions) {
		t.Fatalf("expected ErrInsufficientPermissions, got %v", err)
	}

	if _, err := m.Approve(ctx, models.ApprovalRequest{CustomerChallengeID: e.ID, DoctorID: "doc-1", Approved: true}); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	_, err = m.Approve(ctx, models.ApprovalRequest{CustomerChallengeID: e.ID, DoctorID: "doc-1", Approved: true})
	if !errors.Is(err, models.ErrNotPending) {
		t.Fatalf("expected ErrNotPending on second approval, got %v", err)
	}

	_, err = m.Approve(ctx, models.ApprovalRequest{CustomerChallengeID: "ghost", DoctorID: "doc-1", Approved: true})
	if !errors.Is(err, models.ErrEnrollmentNotFound) {
		t.Fatalf("expected ErrEnrollmentNotFound, got %v", err)
	}
}

func TestApproveClaimsUnassignedEnrollment(t *testing.T) {
	m, st, _ := newTestManager(t)

	e, err := m.Join(context.Background(), models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "dii-28",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if e.DoctorID != "" {
		t.Fatalf("expected unassigned enrollment, got doctor %q", e.DoctorID)
	}

	approved, err := m.Approve(context.Background(), models.ApprovalRequest{
		CustomerChallengeID: e.ID, DoctorID: "doc-9", Approved: true,
	})
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if approved.DoctorID != "doc-9" {
		t.Errorf("approving doctor must be stamped, got %q", approved.DoctorID)
	}
	saved, _ := st.GetEnrollment(e.ID)
	if saved.DoctorID != "doc-9" {
		t.Errorf("stamped doctor must persist, got %q", saved.DoctorID)
	}
}

func TestRejectCancelsEnrollment(t *testing.T) {
	m, _, emitter := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{
		CustomerID: "cust-1", ChallengeID: "fasting-16-8", DoctorID: "doc-1",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	got, err := m.Approve(ctx, models.ApprovalRequest{CustomerChallengeID: e.ID, DoctorID: "doc-1", Approved: false})
	if err != nil {
		t.Fatalf("Approve(reject) error: %v", err)
	}
	if got.Status != models.StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if n := emitter.EventsOfType(models.NotificationCancellation); len(n) != 1 {
		t.Fatalf("expected one cancellation notification, got %d", len(n))
	}
}

func TestCancelTerminalEnrollmentRejected(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-1", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if _, err := m.Cancel(ctx, e.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if _, err := m.Cancel(ctx, e.ID); !errors.Is(err, models.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestFailForRiskAlertsDoctorAndPatient(t *testing.T) {
	m, st, emitter := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{
		CustomerID: "cust-1", ChallengeID: "water-30", DoctorID: "doc-1",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	if err := m.FailForRisk(ctx, e, []string{"reported risk symptom: dizziness"}); err != nil {
		t.Fatalf("FailForRisk error: %v", err)
	}
	saved, _ := st.GetEnrollment(e.ID)
	if saved.Status != models.StatusFailed || saved.CompletedAt == nil {
		t.Errorf("enrollment not failed: %+v", saved)
	}
	alerts := emitter.EventsOfType(models.NotificationRiskAlert)
	if len(alerts) != 2 {
		t.Fatalf("expected alerts to doctor and patient, got %d", len(alerts))
	}
	for _, a := range alerts {
		if a.Priority != models.PriorityUrgent {
			t.Errorf("risk alerts must be urgent, got %s", a.Priority)
		}
	}
}

func TestRecordProgressEarlyFailure(t *testing.T) {
	m, st, emitter := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-1", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	challenge, _ := st.GetChallenge("water-30")

	// Day 25 of 30 with 10 goal days: even a perfect remainder tops out at
	// 50%, below the 70% threshold.
	m.now = func() time.Time { return e.StartDate.AddDate(0, 0, 25) }
	snap := progress.Snapshot{GoalDays: 10, CompletionRate: 33.3}
	if err := m.RecordProgress(ctx, e, *challenge, snap); err != nil {
		t.Fatalf("RecordProgress error: %v", err)
	}
	if e.Status != models.StatusFailed {
		t.Errorf("expected early failure, got %s", e.Status)
	}
	if n := emitter.EventsOfType(models.NotificationRiskAlert); len(n) != 1 {
		t.Fatalf("expected one unreachable-threshold alert, got %d", len(n))
	}
}

func TestRecordProgressKeepsReachableEnrollmentActive(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-1", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	challenge, _ := st.GetChallenge("water-30")

	m.now = func() time.Time { return e.StartDate.AddDate(0, 0, 5) }
	snap := progress.Snapshot{GoalDays: 3, CurrentProgress: 2100, CompletionRate: 10}
	if err := m.RecordProgress(ctx, e, *challenge, snap); err != nil {
		t.Fatalf("RecordProgress error: %v", err)
	}
	if e.Status != models.StatusActive {
		t.Errorf("enrollment should stay active, got %s", e.Status)
	}
	saved, _ := st.GetEnrollment(e.ID)
	if saved.CompletionRate != 10 || saved.CurrentProgress != 2100 {
		t.Errorf("snapshot not persisted: %+v", saved)
	}
}

func TestActivateDue(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	e, err := m.Join(ctx, models.JoinRequest{
		CustomerID: "cust-1", ChallengeID: "dii-28", DoctorID: "doc-1",
		HealthChecklist: healthyChecklist(),
	})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	// Approve before the start date so the enrollment parks in approved.
	m.now = func() time.Time { return e.StartDate.Add(-48 * time.Hour) }
	got, err := m.Approve(ctx, models.ApprovalRequest{CustomerChallengeID: e.ID, DoctorID: "doc-1", Approved: true})
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Fatalf("expected approved before start date, got %s", got.Status)
	}

	m.now = func() time.Time { return e.StartDate.Add(time.Hour) }
	if err := m.ActivateDue(ctx); err != nil {
		t.Fatalf("ActivateDue error: %v", err)
	}
	saved, _ := st.GetEnrollment(e.ID)
	if saved.Status != models.StatusActive {
		t.Errorf("expected active after sweep, got %s", saved.Status)
	}
}

func TestCloseDue(t *testing.T) {
	m, st, emitter := newTestManager(t)
	ctx := context.Background()

	winner, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-1", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	loser, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-2", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	winner.CompletionRate = 83.3
	loser.CompletionRate = 40
	if err := st.SaveEnrollment(*winner); err != nil {
		t.Fatalf("SaveEnrollment error: %v", err)
	}
	if err := st.SaveEnrollment(*loser); err != nil {
		t.Fatalf("SaveEnrollment error: %v", err)
	}

	m.now = func() time.Time { return winner.EndDate.Add(time.Hour) }
	if err := m.CloseDue(ctx); err != nil {
		t.Fatalf("CloseDue error: %v", err)
	}

	w, _ := st.GetEnrollment(winner.ID)
	l, _ := st.GetEnrollment(loser.ID)
	if w.Status != models.StatusCompleted {
		t.Errorf("expected completed at 83.3%%, got %s", w.Status)
	}
	if l.Status != models.StatusFailed {
		t.Errorf("expected failed at 40%%, got %s", l.Status)
	}
	if n := emitter.EventsOfType(models.NotificationCompletion); len(n) != 1 || n[0].RecipientID != "cust-1" {
		t.Fatalf("expected one completion notification for cust-1, got %+v", n)
	}
}
