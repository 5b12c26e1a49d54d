// Package store provides storage backends for the challenge engine.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/lumohealth/challenge-engine/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// SaveChallenge stores or replaces a catalog entry.
func (s *SQLiteStore) SaveChallenge(c models.Challenge) error {
	metrics, err := json.Marshal(c.TargetMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal target metrics: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO challenges (id, type, title, description, duration_days, requires_doctor_approval, difficulty_level, target_metrics, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Type, c.Title, c.Description, c.DurationDays, c.RequiresDoctorApproval, c.DifficultyLevel, string(metrics), c.IsActive)
	if err != nil {
		slog.Error("SQLiteStore SaveChallenge failed", "error", err, "challengeID", c.ID)
		return fmt.Errorf("failed to save challenge %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore SaveChallenge succeeded", "challengeID", c.ID)
	return nil
}

func scanChallenge(scan func(dest ...any) error) (*models.Challenge, error) {
	var c models.Challenge
	var metrics string
	if err := scan(&c.ID, &c.Type, &c.Title, &c.Description, &c.DurationDays, &c.RequiresDoctorApproval, &c.DifficultyLevel, &metrics, &c.IsActive); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metrics), &c.TargetMetrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target metrics: %w", err)
	}
	return &c, nil
}

const challengeColumns = `id, type, title, description, duration_days, requires_doctor_approval, difficulty_level, target_metrics, is_active`

// GetChallenge retrieves a catalog entry, or nil when absent.
func (s *SQLiteStore) GetChallenge(id string) (*models.Challenge, error) {
	row := s.db.QueryRow(`SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetChallenge failed", "error", err, "challengeID", id)
		return nil, err
	}
	return c, nil
}

// ListChallenges returns all catalog entries.
func (s *SQLiteStore) ListChallenges() ([]models.Challenge, error) {
	rows, err := s.db.Query(`SELECT ` + challengeColumns + ` FROM challenges ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListChallenges query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore ListChallenges scan failed", "error", err)
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveEnrollment stores or replaces an enrollment aggregate.
func (s *SQLiteStore) SaveEnrollment(e models.CustomerChallenge) error {
	checklist, err := json.Marshal(e.HealthChecklist)
	if err != nil {
		return fmt.Errorf("failed to marshal health checklist: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO enrollments (id, customer_id, challenge_id, doctor_id, status, start_date, end_date, target_value, current_progress, completion_rate, health_checklist, doctor_notes, approved_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CustomerID, e.ChallengeID, e.DoctorID, e.Status, e.StartDate, e.EndDate,
		e.TargetValue, e.CurrentProgress, e.CompletionRate, string(checklist), e.DoctorNotes,
		nullableTime(e.ApprovedAt), nullableTime(e.CompletedAt), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveEnrollment failed", "error", err, "enrollmentID", e.ID)
		return fmt.Errorf("failed to save enrollment %s: %w", e.ID, err)
	}
	slog.Debug("SQLiteStore SaveEnrollment succeeded", "enrollmentID", e.ID, "status", e.Status)
	return nil
}

const enrollmentColumns = `id, customer_id, challenge_id, doctor_id, status, start_date, end_date, target_value, current_progress, completion_rate, health_checklist, doctor_notes, approved_at, completed_at, created_at, updated_at`

func scanEnrollment(scan func(dest ...any) error) (*models.CustomerChallenge, error) {
	var e models.CustomerChallenge
	var checklist string
	var doctorID, doctorNotes sql.NullString
	var approvedAt, completedAt sql.NullTime
	if err := scan(&e.ID, &e.CustomerID, &e.ChallengeID, &doctorID, &e.Status, &e.StartDate, &e.EndDate,
		&e.TargetValue, &e.CurrentProgress, &e.CompletionRate, &checklist, &doctorNotes,
		&approvedAt, &completedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.DoctorID = doctorID.String
	e.DoctorNotes = doctorNotes.String
	if approvedAt.Valid {
		t := approvedAt.Time
		e.ApprovedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(checklist), &e.HealthChecklist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health checklist: %w", err)
	}
	return &e, nil
}

// GetEnrollment retrieves an enrollment, or nil when absent.
func (s *SQLiteStore) GetEnrollment(id string) (*models.CustomerChallenge, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id)
	e, err := scanEnrollment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetEnrollment failed", "error", err, "enrollmentID", id)
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) listEnrollments(query string, arg any) ([]models.CustomerChallenge, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		slog.Error("SQLiteStore enrollment query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []models.CustomerChallenge
	for rows.Next() {
		e, err := scanEnrollment(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore enrollment scan failed", "error", err)
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListEnrollmentsByCustomer returns all enrollments for one customer.
func (s *SQLiteStore) ListEnrollmentsByCustomer(customerID string) ([]models.CustomerChallenge, error) {
	return s.listEnrollments(`SELECT `+enrollmentColumns+` FROM enrollments WHERE customer_id = ? ORDER BY created_at`, customerID)
}

// ListEnrollmentsByStatus returns all enrollments in the given status.
func (s *SQLiteStore) ListEnrollmentsByStatus(status models.EnrollmentStatus) ([]models.CustomerChallenge, error) {
	return s.listEnrollments(`SELECT `+enrollmentColumns+` FROM enrollments WHERE status = ? ORDER BY created_at`, string(status))
}

// AddDailyRecord inserts a record; the unique index enforces one record per
// (enrollment, date, type).
func (s *SQLiteStore) AddDailyRecord(r models.DailyRecord) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CustomerChallengeID, r.RecordDate, r.RecordType, string(data), analysis,
		r.ProgressValue, r.RiskFlagged, r.Notes, r.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			slog.Warn("SQLiteStore AddDailyRecord duplicate", "enrollmentID", r.CustomerChallengeID, "date", r.RecordDate, "type", r.RecordType)
			return models.ErrDailyRecordExists
		}
		slog.Error("SQLiteStore AddDailyRecord failed", "error", err, "enrollmentID", r.CustomerChallengeID)
		return fmt.Errorf("failed to insert daily record: %w", err)
	}
	slog.Debug("SQLiteStore AddDailyRecord succeeded", "recordID", r.ID, "enrollmentID", r.CustomerChallengeID, "date", r.RecordDate)
	return nil
}

// GetDailyRecords returns records ascending by date, then creation time.
func (s *SQLiteStore) GetDailyRecords(enrollmentID string) ([]models.DailyRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, customer_challenge_id, record_date, record_type, record_data, ai_analysis, progress_value, risk_flagged, notes, created_at
		FROM daily_records WHERE customer_challenge_id = ? ORDER BY record_date, created_at`, enrollmentID)
	if err != nil {
		slog.Error("SQLiteStore GetDailyRecords query failed", "error", err, "enrollmentID", enrollmentID)
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
			slog.Error("SQLiteStore GetDailyRecords scan failed", "error", err)
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
func (s *SQLiteStore) AttachAnalysis(recordID string, a models.AIAnalysis) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	res, err := s.db.Exec(`UPDATE daily_records SET ai_analysis = ? WHERE id = ?`, string(b), recordID)
	if err != nil {
		slog.Error("SQLiteStore AttachAnalysis failed", "error", err, "recordID", recordID)
		return fmt.Errorf("failed to attach analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s not found", recordID)
	}
	slog.Debug("SQLiteStore AttachAnalysis succeeded", "recordID", recordID, "provider", a.Provider)
	return nil
}

// SaveAchievement stores a milestone unlock; duplicates are ignored so an
// unlock happens at most once.
func (s *SQLiteStore) SaveAchievement(a models.Achievement) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO achievements (id, customer_challenge_id, milestone_days, unlocked_at)
		VALUES (?, ?, ?, ?)`,
		a.ID, a.CustomerChallengeID, a.MilestoneDays, a.UnlockedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAchievement failed", "error", err, "enrollmentID", a.CustomerChallengeID)
		return fmt.Errorf("failed to save achievement: %w", err)
	}
	return nil
}

// GetAchievements returns milestone unlocks sorted by threshold.
func (s *SQLiteStore) GetAchievements(enrollmentID string) ([]models.Achievement, error) {
	rows, err := s.db.Query(`
		SELECT id, customer_challenge_id, milestone_days, unlocked_at
		FROM achievements WHERE customer_challenge_id = ? ORDER BY milestone_days`, enrollmentID)
	if err != nil {
		slog.Error("SQLiteStore GetAchievements query failed", "error", err, "enrollmentID", enrollmentID)
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

// nullableTime converts a *time.Time to a driver-friendly value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
