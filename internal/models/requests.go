package models

// JoinRequest is the payload for enrolling a customer in a challenge.
type JoinRequest struct {
	CustomerID      string          `json:"customer_id"`
	ChallengeID     string          `json:"challenge_id"`
	DoctorID        string          `json:"doctor_id,omitempty"`
	HealthChecklist HealthChecklist `json:"health_checklist"`
}

// Validate checks required fields on a JoinRequest.
func (r *JoinRequest) Validate() error {
	if r.CustomerID == "" {
		return ErrMissingCustomerID
	}
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}
	return nil
}

// ApprovalRequest is the payload for a doctor's approval decision.
type ApprovalRequest struct {
	CustomerChallengeID string `json:"customer_challenge_id"`
	DoctorID            string `json:"doctor_id"`
	Approved            bool   `json:"approved"`
	Notes               string `json:"notes,omitempty"`
}

// Validate checks required fields on an ApprovalRequest.
func (r *ApprovalRequest) Validate() error {
	if r.CustomerChallengeID == "" {
		return ErrMissingEnrollmentID
	}
	if r.DoctorID == "" {
		return ErrInsufficientPermissions
	}
	return nil
}

// SubmitRecordRequest is the payload for one day's submission.
type SubmitRecordRequest struct {
	CustomerChallengeID string        `json:"customer_challenge_id"`
	RecordType          ChallengeType `json:"record_type"`
	RecordDate          string        `json:"record_date,omitempty"` // defaults to today
	Data                RecordData    `json:"data"`
	Notes               string        `json:"notes,omitempty"`
}

// Validate checks structural requirements on a SubmitRecordRequest.
// Payload contents are validated separately against the challenge type.
func (r *SubmitRecordRequest) Validate() error {
	if r.CustomerChallengeID == "" {
		return ErrMissingEnrollmentID
	}
	if !IsValidChallengeType(r.RecordType) {
		return ErrInvalidRecordData
	}
	return nil
}

// SubmitResult is the ingestor's answer for a record submission. The record
// write outcome is definite; AnalysisStatus is auxiliary metadata and never
// blocks the write.
type SubmitResult struct {
	Record         DailyRecord    `json:"record"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
	RiskHalted     bool           `json:"risk_halted,omitempty"`
}
