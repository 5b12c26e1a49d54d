// Package store provides storage backends for the challenge engine.
//
// It includes an in-memory store for tests and development, and persistent
// SQLite and PostgreSQL backends. All mutable engine state lives here: the
// engine itself is a stateless domain service.
package store

import (
	"strings"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Store is the persistence boundary for the engine. Implementations must
// enforce the (enrollment, date, record type) uniqueness invariant on daily
// records and return models.ErrDailyRecordExists on violation.
type Store interface {
	// Challenge catalog (seeded, immutable at runtime).
	SaveChallenge(c models.Challenge) error
	GetChallenge(id string) (*models.Challenge, error)
	ListChallenges() ([]models.Challenge, error)

	// Enrollments (CustomerChallenge aggregates).
	SaveEnrollment(e models.CustomerChallenge) error
	GetEnrollment(id string) (*models.CustomerChallenge, error)
	ListEnrollmentsByCustomer(customerID string) ([]models.CustomerChallenge, error)
	ListEnrollmentsByStatus(status models.EnrollmentStatus) ([]models.CustomerChallenge, error)

	// Daily records (append-only).
	AddDailyRecord(r models.DailyRecord) error
	GetDailyRecords(enrollmentID string) ([]models.DailyRecord, error)
	AttachAnalysis(recordID string, a models.AIAnalysis) error

	// Achievements (unlock-once per milestone per enrollment).
	SaveAchievement(a models.Achievement) error
	GetAchievements(enrollmentID string) ([]models.Achievement, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithDSN sets the database connection string (file path for SQLite,
// connection URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Connection URLs
// and key=value connection strings go to Postgres; plain paths to SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
