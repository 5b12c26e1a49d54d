package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumohealth/challenge-engine/internal/ingest"
	"github.com/lumohealth/challenge-engine/internal/lifecycle"
	"github.com/lumohealth/challenge-engine/internal/milestone"
	"github.com/lumohealth/challenge-engine/internal/models"
	"github.com/lumohealth/challenge-engine/internal/notify"
	"github.com/lumohealth/challenge-engine/internal/risk"
	"github.com/lumohealth/challenge-engine/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := store.SeedChallenges(st, store.DefaultCatalog()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	emitter := notify.NewMemoryEmitter()
	criteria := risk.DefaultCriteria()
	manager := lifecycle.NewManager(st, emitter, criteria, 0)
	tracker := milestone.NewTracker(st, emitter, nil)
	ingestor := ingest.NewIngestor(st, manager, tracker, nil, criteria)
	return NewServer(st, manager, ingestor)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v (%s)", err, w.Body.String())
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

func TestListChallenges(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/challenges", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var challenges []models.Challenge
	decodeResult(t, w, &challenges)
	if len(challenges) != 4 {
		t.Errorf("expected the seeded catalog, got %d challenges", len(challenges))
	}

	if w := doJSON(t, s, http.MethodPost, "/challenges", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", w.Code)
	}
}

func TestJoinEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "water-30",
		HealthChecklist: models.HealthChecklist{Age: 35, WeightKg: 80, HeightCm: 178},
	}

	w := doJSON(t, s, http.MethodPost, "/challenges/join", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var e models.CustomerChallenge
	decodeResult(t, w, &e)
	if e.Status != models.StatusActive {
		t.Errorf("expected active enrollment, got %s", e.Status)
	}

	// Duplicate participation conflicts.
	if w := doJSON(t, s, http.MethodPost, "/challenges/join", req); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate join, got %d: %s", w.Code, w.Body.String())
	}

	// Unknown challenge.
	req.ChallengeID = "nope"
	req.CustomerID = "cust-2"
	if w := doJSON(t, s, http.MethodPost, "/challenges/join", req); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown challenge, got %d", w.Code)
	}
}

func TestApproveEndpointPermissions(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/challenges/join", models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "dii-28",
		DoctorID:        "doc-1",
		HealthChecklist: models.HealthChecklist{Age: 35, WeightKg: 80, HeightCm: 178},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("join failed: %d %s", w.Code, w.Body.String())
	}
	var e models.CustomerChallenge
	decodeResult(t, w, &e)
	if e.Status != models.StatusPending {
		t.Fatalf("expected pending enrollment, got %s", e.Status)
	}

	w = doJSON(t, s, http.MethodPost, "/enrollments/approve", models.ApprovalRequest{
		CustomerChallengeID: e.ID, DoctorID: "doc-other", Approved: true,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for wrong doctor, got %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/enrollments/approve", models.ApprovalRequest{
		CustomerChallengeID: e.ID, DoctorID: "doc-1", Approved: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var approved models.CustomerChallenge
	decodeResult(t, w, &approved)
	if approved.Status != models.StatusActive {
		t.Errorf("expected active after approval, got %s", approved.Status)
	}
}

func TestRecordsAndProgressEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/challenges/join", models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "water-30",
		HealthChecklist: models.HealthChecklist{Age: 35, WeightKg: 80, HeightCm: 178},
	})
	var e models.CustomerChallenge
	decodeResult(t, w, &e)

	submit := models.SubmitRecordRequest{
		CustomerChallengeID: e.ID,
		RecordType:          models.ChallengeTypeWaterIntake,
		Data:                models.RecordData{AmountMl: 2100},
	}
	w = doJSON(t, s, http.MethodPost, "/records", submit)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != string(models.APIStatusRecorded) {
		t.Errorf("expected recorded status, got %s", resp.Status)
	}

	// Same day, same type conflicts.
	if w := doJSON(t, s, http.MethodPost, "/records", submit); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate record, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/progress?enrollment_id="+e.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var view models.ChallengeProgress
	decodeResult(t, w, &view)
	if view.CurrentProgress != 2100 {
		t.Errorf("expected current progress 2100, got %v", view.CurrentProgress)
	}
	if len(view.WeeklyTrend) != 7 {
		t.Errorf("expected 7 trend days, got %d", len(view.WeeklyTrend))
	}

	if w := doJSON(t, s, http.MethodGet, "/progress?enrollment_id=ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown enrollment, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/progress", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without enrollment_id, got %d", w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/challenges/join", models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "water-30",
		HealthChecklist: models.HealthChecklist{Age: 35, WeightKg: 80, HeightCm: 178},
	})
	var e models.CustomerChallenge
	decodeResult(t, w, &e)

	body := map[string]string{"customer_challenge_id": e.ID}
	if w := doJSON(t, s, http.MethodPost, "/enrollments/cancel", body); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Cancelling a terminal enrollment conflicts.
	if w := doJSON(t, s, http.MethodPost, "/enrollments/cancel", body); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for terminal enrollment, got %d", w.Code)
	}
}

func TestEnrollmentsEndpoint(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/challenges/join", models.JoinRequest{
		CustomerID:      "cust-1",
		ChallengeID:     "water-30",
		HealthChecklist: models.HealthChecklist{Age: 35, WeightKg: 80, HeightCm: 178},
	})

	w := doJSON(t, s, http.MethodGet, "/enrollments?customer_id=cust-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var enrollments []models.CustomerChallenge
	decodeResult(t, w, &enrollments)
	if len(enrollments) != 1 {
		t.Errorf("expected one enrollment, got %d", len(enrollments))
	}

	if w := doJSON(t, s, http.MethodGet, "/enrollments", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without customer_id, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
