package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/lumohealth/challenge-engine/internal/models"
)

func TestRemindIdleOnlyWithoutTodaysRecord(t *testing.T) {
	m, st, emitter := newTestManager(t)
	ctx := context.Background()

	idle, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-idle", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	diligent, err := m.Join(ctx, models.JoinRequest{CustomerID: "cust-diligent", ChallengeID: "water-30", HealthChecklist: healthyChecklist()})
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	today := time.Now().Format(models.DateLayout)
	err = st.AddDailyRecord(models.DailyRecord{
		ID:                  "rec-1",
		CustomerChallengeID: diligent.ID,
		RecordDate:          today,
		RecordType:          models.ChallengeTypeWaterIntake,
		Data:                models.RecordData{AmountMl: 2100},
		CreatedAt:           time.Now(),
	})
	if err != nil {
		t.Fatalf("AddDailyRecord error: %v", err)
	}

	s := NewSweeper(m, st, emitter, 0)
	if err := s.RemindIdle(ctx); err != nil {
		t.Fatalf("RemindIdle error: %v", err)
	}

	reminders := emitter.EventsOfType(models.NotificationReminder)
	if len(reminders) != 1 {
		t.Fatalf("expected exactly one reminder, got %d", len(reminders))
	}
	if reminders[0].RecipientID != "cust-idle" || reminders[0].RelatedChallengeID != idle.ID {
		t.Errorf("reminder addressed wrong recipient: %+v", reminders[0])
	}
}
