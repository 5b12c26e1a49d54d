// Package store provides storage backends for the challenge engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/lib/pq"
	"github.com/lumohealth/challenge-engine/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute

	// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
	pqUniqueViolation = "23505"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// SaveChallenge stores or replaces a catalog entry.
func (s *PostgresStore) SaveChallenge(c models.Challenge) error {
	metrics, err := json.Marshal(c.TargetMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal target metrics: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO challenges (id, type, title, description, duration_days, requires_doctor_approval, difficulty_level, target_metrics, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, title = EXCLUDED.title, description = EXCLUDED.description,
			duration_days = EXCLUDED.duration_days, requires_doctor_approval = EXCLUDED.requires_doctor_approval,
			difficulty_level = EXCLUDED.difficulty_level, target_metrics = EXCLUDED.target_metrics, is_active = EXCLUDED.is_active`,
		c.ID, c.Type, c.Title, c.Description, c.DurationDays, c.RequiresDoctorApproval, c.DifficultyLevel, string(metrics), c.IsActive)
	if err != nil {
		slog.Error("PostgresStore SaveChallenge failed", "error", err, "challengeID", c.ID)
		return fmt.Errorf("failed to save challenge %s: %w", c.ID, err)
	}
	return nil
}

// GetChallenge retrieves a catalog entry, or nil when absent.
func (s *PostgresStore) GetChallenge(id string) (*models.Challenge, error) {
	row := s.db.QueryRow(`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id)
	c, err := scanChallenge(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetChallenge failed", "error", err, "challengeID", id)
		return nil, err
	}
	return c, nil
}

// ListChallenges returns all catalog entries.
func (s *PostgresStore) ListChallenges() ([]models.Challenge, error) {
	rows, err := s.db.Query(`SELECT ` + challengeColumns + ` FROM challenges ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListChallenges query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			slog.Error("PostgresStore ListChallenges scan failed", "error", err)
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveEnrollment stores or replaces an enrollment aggregate.
func (s *PostgresStore) SaveEnrollment(e models.CustomerChallenge) error {
	checklist, err := json.Marshal(e.HealthChecklist)
	if err != nil {
		return fmt.Errorf("failed to marshal health checklist: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO enrollments (id, customer_id, challenge_id, doctor_id, status, start_date, end_date, target_value, current_progress, completion_rate, health_checklist, doctor_notes, approved_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, current_progress = EXCLUDED.current_progress,
			completion_rate = EXCLUDED.completion_rate, doctor_notes = EXCLUDED.doctor_notes, doctor_id = EXCLUDED.doctor_id,
			approved_at = EXCLUDED.approved_at, completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at`,
		e.ID, e.CustomerID, e.ChallengeID, e.DoctorID, e.Status, e.StartDate, e.EndDate,
		e.TargetValue, e.CurrentProgress, e.CompletionRate, string(checklist), e.DoctorNotes,
		nullableTime(e.ApprovedAt), nullableTime(e.CompletedAt), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveEnrollment failed", "error", err, "enrollmentID", e.ID)
		return fmt.Errorf("failed to save enrollment %s: %w", e.ID, err)
	}
	return nil
}

// GetEnrollment retrieves an enrollment, or nil when absent.
func (s *PostgresStore) GetEnrollment(id string) (*models.CustomerChallenge, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)
	e, err := scanEnrollment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetEnrollment failed", "error", err, "enrollmentID", id)
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) listEnrollments(query string, arg any) ([]models.CustomerChallenge, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		slog.Error("PostgresStore enrollment query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []models.CustomerChallenge
	for rows.Next() {
		e, err := scanEnrollment(rows.Scan)
		if err != nil {
			slog.Error("PostgresStore enrollment scan failed", "error", err)
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListEnrollmentsByCustomer returns all enrollments for one customer.
func (s *PostgresStore) ListEnrollmentsByCustomer(customerID string) ([]models.CustomerChallenge, error) {
	return s.listEnrollments(`SELECT `+enrollmentColumns+` FROM enrollments WHERE customer_id = $1 ORDER BY created_at`, customerID)
}

// ListEnrollmentsByStatus returns all enrollments in the given status.
func (s *PostgresStore) ListEnrollmentsByStatus(status models.EnrollmentStatus) ([]models.CustomerChallenge, error) {
	return s.listEnrollments(`SELECT `+enrollmentColumns+` FROM enrollments WHERE status = $1 ORDER BY created_at`, string(status))
}

// AddDailyRecord inserts a record; the unique index enforces one record per
// (enrollment, date, type).
func (s *PostgresStore) AddDailyRecord(r models.DailyRecord) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}
	var analysis any
	if r.Analysis != nil {
		b, err := json.Marshal(r.Analysis)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis: %w", err)
		}
		analysis = string(b)
	}
	_, err = s.db.Exec(`
		INSERT INTO daily_records (id, customer_challenge_id, record_date, record_type, record_data, ai_analysis, progress_value, risk_flagged, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.CustomerChallengeID, r.RecordDate, r.RecordType, string(data), analysis,
		r.ProgressValue, r.RiskFlagged, r.Notes, r.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			slog.Warn("PostgresStore AddDailyRecord duplicate", "enrollmentID", r.CustomerChallengeID, "date", r.RecordDate, "type", r.RecordType)
			return models.ErrDailyRecordExists
		}
		slog.Error("PostgresStore AddDailyRecord failed", "error", err, "enrollmentID", r.CustomerChallengeID)
		return fmt.Errorf("failed to insert daily record: %w", err)
	}
	return nil
}

// GetDailyRecords returns records ascending by date, then creation time.
func (s *PostgresStore) GetDailyRecords(enrollmentID string) ([]models.DailyRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, customer_challenge_id, record_date, record_type, record_data, ai_analysis, progress_value, risk_flagged, notes, created_at
		FROM daily_records WHERE customer_challenge_id = $1 ORDER BY record_date, created_at`, enrollmentID)
	if err != nil {
		slog.Error("PostgresStore GetDailyRecords query failed", "error", err, "enrollmentID", enrollmentID)
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyRecord
	for rows.Next() {
		var r models.DailyRecord
		var data string
		var analysis, notes sql.NullString
		if err := rows.Scan(&r.ID, &r.CustomerChallengeID, &r.RecordDate, &r.RecordType, &data, &analysis,
			&r.ProgressValue, &r.RiskFlagged, &notes, &r.CreatedAt); err != nil {
			slog.Error("PostgresStore GetDailyRecords scan failed", "error", err)
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
		}
		if analysis.Valid && analysis.String != "" {
			var a models.AIAnalysis
			if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
				return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
			}
			r.Analysis = &a
		}
		r.Notes = notes.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// AttachAnalysis sets the AI analysis on an existing record.
func (s *PostgresStore) AttachAnalysis(recordID string, a models.AIAnalysis) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	res, err := s.db.Exec(`UPDATE daily_records SET ai_analysis = $1 WHERE id = $2`, string(b), recordID)
	if err != nil {
		slog.Error("PostgresStore AttachAnalysis failed", "error", err, "recordID", recordID)
		return fmt.Errorf("failed to attach analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s not found", recordID)
	}
	return nil
}

// SaveAchievement stores a milestone unlock; duplicates are ignored so an
// unlock happens at most once.
func (s *PostgresStore) SaveAchievement(a models.Achievement) error {
	_, err := s.db.Exec(`
		INSERT INTO achievements (id, customer_challenge_id, milestone_days, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_challenge_id, milestone_days) DO NOTHING`,
		a.ID, a.CustomerChallengeID, a.MilestoneDays, a.UnlockedAt)
	if err != nil {
		slog.Error("PostgresStore SaveAchievement failed", "error", err, "enrollmentID", a.CustomerChallengeID)
		return fmt.Errorf("failed to save achievement: %w", err)
	}
	return nil
}

// GetAchievements returns milestone unlocks sorted by threshold.
func (s *PostgresStore) GetAchievements(enrollmentID string) ([]models.Achievement, error) {
	rows, err := s.db.Query(`
		SELECT id, customer_challenge_id, milestone_days, unlocked_at
		FROM achievements WHERE customer_challenge_id = $1 ORDER BY milestone_days`, enrollmentID)
	if err != nil {
		slog.Error("PostgresStore GetAchievements query failed", "error", err, "enrollmentID", enrollmentID)
		return nil, err
	}
	defer rows.Close()

	var out []models.Achievement
	for rows.Next() {
		var a models.Achievement
		if err := rows.Scan(&a.ID, &a.CustomerChallengeID, &a.MilestoneDays, &a.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
