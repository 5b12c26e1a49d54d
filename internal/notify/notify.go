// Package notify defines the notification event seam between the engine and
// the external delivery subsystem.
//
// The engine only produces ChallengeNotification events; persistence and
// delivery (push, SMS, email) belong to the consuming system.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Emitter receives notification events produced by the engine.
type Emitter interface {
	Emit(ctx context.Context, n models.ChallengeNotification)
}

// MemoryEmitter buffers emitted notifications in memory. Used in tests and
// as an inspection buffer when no delivery subsystem is attached.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []models.ChallengeNotification
}

// NewMemoryEmitter creates an empty MemoryEmitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit appends the notification to the buffer.
func (m *MemoryEmitter) Emit(ctx context.Context, n models.ChallengeNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, n)
}

// Events returns a copy of all buffered notifications.
func (m *MemoryEmitter) Events() []models.ChallengeNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChallengeNotification, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType returns buffered notifications matching the given type.
func (m *MemoryEmitter) EventsOfType(t models.NotificationType) []models.ChallengeNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChallengeNotification
	for _, n := range m.events {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// LogEmitter writes notification events to the structured log. The default
// sink when the engine runs without a delivery subsystem.
type LogEmitter struct{}

// Emit logs the notification.
func (LogEmitter) Emit(ctx context.Context, n models.ChallengeNotification) {
	slog.Info("Notification emitted",
		"type", n.Type,
		"recipientID", n.RecipientID,
		"recipientType", n.RecipientType,
		"relatedChallengeID", n.RelatedChallengeID,
		"priority", n.Priority)
}
