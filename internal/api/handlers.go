package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumohealth/challenge-engine/internal/models"
)

func (s *Server) challengesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	challenges, err := s.st.ListChallenges()
	if err != nil {
		slog.Error("Server.challengesHandler: failed to list challenges", "error", err)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(challenges))
}

func (s *Server) joinHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.joinHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	e, err := s.manager.Join(r.Context(), req)
	if err != nil {
		slog.Warn("Server.joinHandler: join failed", "error", err, "customerID", req.CustomerID, "challengeID", req.ChallengeID)
		writeError(w, err)
		return
	}
	slog.Info("Server.joinHandler: enrollment created", "enrollmentID", e.ID, "status", e.Status)
	writeJSONResponse(w, http.StatusCreated, models.Success(e))
}

func (s *Server) enrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("customer_id query parameter is required"))
		return
	}
	enrollments, err := s.st.ListEnrollmentsByCustomer(customerID)
	if err != nil {
		slog.Error("Server.enrollmentsHandler: failed to list enrollments", "error", err, "customerID", customerID)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(enrollments))
}

func (s *Server) approveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.approveHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	e, err := s.manager.Approve(r.Context(), req)
	if err != nil {
		slog.Warn("Server.approveHandler: approval failed", "error", err, "enrollmentID", req.CustomerChallengeID)
		writeError(w, err)
		return
	}
	slog.Info("Server.approveHandler: decision recorded", "enrollmentID", e.ID, "approved", req.Approved, "status", e.Status)
	writeJSONResponse(w, http.StatusOK, models.Success(e))
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CustomerChallengeID string `json:"customer_challenge_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.CustomerChallengeID == "" {
		writeError(w, models.ErrMissingEnrollmentID)
		return
	}

	e, err := s.manager.Cancel(r.Context(), req.CustomerChallengeID)
	if err != nil {
		slog.Warn("Server.cancelHandler: cancellation failed", "error", err, "enrollmentID", req.CustomerChallengeID)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(e))
}

func (s *Server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.SubmitRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.recordsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.ingestor.SubmitDailyRecord(r.Context(), req)
	if err != nil {
		slog.Warn("Server.recordsHandler: submission failed", "error", err, "enrollmentID", req.CustomerChallengeID)
		writeError(w, err)
		return
	}
	slog.Info("Server.recordsHandler: record stored",
		"recordID", result.Record.ID,
		"enrollmentID", req.CustomerChallengeID,
		"analysisStatus", result.AnalysisStatus,
		"riskHalted", result.RiskHalted)
	writeJSONResponse(w, http.StatusCreated, models.Recorded(result))
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	enrollmentID := r.URL.Query().Get("enrollment_id")
	if enrollmentID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("enrollment_id query parameter is required"))
		return
	}

	view, err := s.ingestor.GetProgress(r.Context(), enrollmentID)
	if err != nil {
		slog.Warn("Server.progressHandler: progress lookup failed", "error", err, "enrollmentID", enrollmentID)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
