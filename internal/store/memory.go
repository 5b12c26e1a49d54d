package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// InMemoryStore is a mutex-guarded in-memory Store for tests and development.
type InMemoryStore struct {
	mu           sync.RWMutex
	challenges   map[string]models.Challenge
	enrollments  map[string]models.CustomerChallenge
	records      map[string][]models.DailyRecord // keyed by enrollment ID
	recordKeys   map[string]string               // uniqueness key -> record ID
	achievements map[string][]models.Achievement
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		challenges:   make(map[string]models.Challenge),
		enrollments:  make(map[string]models.CustomerChallenge),
		records:      make(map[string][]models.DailyRecord),
		recordKeys:   make(map[string]string),
		achievements: make(map[string][]models.Achievement),
	}
}

func recordKey(enrollmentID, date string, rt models.ChallengeType) string {
	return fmt.Sprintf("%s|%s|%s", enrollmentID, date, rt)
}

// SaveChallenge stores or replaces a catalog entry.
func (s *InMemoryStore) SaveChallenge(c models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ID] = c
	return nil
}

// GetChallenge returns the catalog entry or nil when absent.
func (s *InMemoryStore) GetChallenge(id string) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListChallenges returns all catalog entries sorted by ID.
func (s *InMemoryStore) ListChallenges() ([]models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveEnrollment stores or replaces an enrollment aggregate.
func (s *InMemoryStore) SaveEnrollment(e models.CustomerChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
	return nil
}

// GetEnrollment returns the enrollment or nil when absent.
func (s *InMemoryStore) GetEnrollment(id string) (*models.CustomerChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// ListEnrollmentsByCustomer returns all enrollments for one customer.
func (s *InMemoryStore) ListEnrollmentsByCustomer(customerID string) ([]models.CustomerChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CustomerChallenge
	for _, e := range s.enrollments {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListEnrollmentsByStatus returns all enrollments in the given status.
func (s *InMemoryStore) ListEnrollmentsByStatus(status models.EnrollmentStatus) ([]models.CustomerChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CustomerChallenge
	for _, e := range s.enrollments {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AddDailyRecord appends a record, enforcing the per-day uniqueness key.
func (s *InMemoryStore) AddDailyRecord(r models.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(r.CustomerChallengeID, r.RecordDate, r.RecordType)
	if _, exists := s.recordKeys[key]; exists {
		return models.ErrDailyRecordExists
	}
	s.recordKeys[key] = r.ID
	s.records[r.CustomerChallengeID] = append(s.records[r.CustomerChallengeID], r)
	return nil
}

// GetDailyRecords returns records for an enrollment ascending by date, then
// by creation time.
func (s *InMemoryStore) GetDailyRecords(enrollmentID string) ([]models.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.records[enrollmentID]
	out := make([]models.DailyRecord, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordDate != out[j].RecordDate {
			return out[i].RecordDate < out[j].RecordDate
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AttachAnalysis sets the AI analysis on an existing record.
func (s *InMemoryStore) AttachAnalysis(recordID string, a models.AIAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for enrollmentID, records := range s.records {
		for i := range records {
			if records[i].ID == recordID {
				records[i].Analysis = &a
				s.records[enrollmentID] = records
				return nil
			}
		}
	}
	return fmt.Errorf("record %s not found", recordID)
}

// SaveAchievement stores a milestone unlock.
func (s *InMemoryStore) SaveAchievement(a models.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.achievements[a.CustomerChallengeID] {
		if existing.MilestoneDays == a.MilestoneDays {
			// Unlock-once: silently keep the first unlock.
			return nil
		}
	}
	s.achievements[a.CustomerChallengeID] = append(s.achievements[a.CustomerChallengeID], a)
	return nil
}

// GetAchievements returns milestone unlocks sorted by threshold.
func (s *InMemoryStore) GetAchievements(enrollmentID string) ([]models.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.achievements[enrollmentID]
	out := make([]models.Achievement, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].MilestoneDays < out[j].MilestoneDays })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
