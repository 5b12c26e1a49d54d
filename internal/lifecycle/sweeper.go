package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumohealth/challenge-engine/internal/models"
	"github.com/lumohealth/challenge-engine/internal/notify"
	"github.com/lumohealth/challenge-engine/internal/store"
)

// DefaultSweepInterval is how often the sweeper runs its lifecycle pass.
const DefaultSweepInterval = time.Hour

// Sweeper periodically activates due enrollments, closes expired ones, and
// reminds active patients with no record for the current day.
type Sweeper struct {
	manager  *Manager
	st       store.Store
	emitter  notify.Emitter
	cron     *cron.Cron
	interval time.Duration
}

// NewSweeper creates a Sweeper. A zero interval falls back to DefaultSweepInterval.
func NewSweeper(manager *Manager, st store.Store, emitter notify.Emitter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		manager:  manager,
		st:       st,
		emitter:  emitter,
		cron:     cron.New(),
		interval: interval,
	}
}

// Start schedules the recurring sweep and runs one immediately so restarts
// never leave due enrollments waiting a full interval.
func (s *Sweeper) Start() error {
	expr := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(expr, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("Lifecycle sweeper started", "interval", s.interval)
	go s.Sweep()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Lifecycle sweeper stopped")
}

// Sweep runs one full lifecycle pass.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.manager.ActivateDue(ctx); err != nil {
		slog.Error("Sweep failed to activate due enrollments", "error", err)
	}
	if err := s.manager.CloseDue(ctx); err != nil {
		slog.Error("Sweep failed to close due enrollments", "error", err)
	}
	if err := s.RemindIdle(ctx); err != nil {
		slog.Error("Sweep failed to emit reminders", "error", err)
	}
}

// RemindIdle emits a reminder for every active enrollment with no record for
// today's date.
func (s *Sweeper) RemindIdle(ctx context.Context) error {
	active, err := s.st.ListEnrollmentsByStatus(models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to list active enrollments: %w", err)
	}

	today := time.Now().Format(models.DateLayout)
	for _, e := range active {
		records, err := s.st.GetDailyRecords(e.ID)
		if err != nil {
			slog.Error("RemindIdle failed to load records", "error", err, "enrollmentID", e.ID)
			continue
		}
		recorded := false
		for _, r := range records {
			if r.RecordDate == today {
				recorded = true
				break
			}
		}
		if recorded {
			continue
		}
		s.emitter.Emit(ctx, models.ChallengeNotification{
			RecipientID:        e.CustomerID,
			RecipientType:      models.RecipientPatient,
			Type:               models.NotificationReminder,
			RelatedChallengeID: e.ID,
			Priority:           models.PriorityLow,
			Message:            "No record submitted today",
			CreatedAt:          time.Now(),
		})
	}
	return nil
}
