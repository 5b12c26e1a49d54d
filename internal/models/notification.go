package models

import "time"

// RecipientType identifies who a notification addresses.
type RecipientType string

const (
	RecipientPatient RecipientType = "patient"
	RecipientDoctor  RecipientType = "doctor"
)

// NotificationType classifies notification events emitted by the engine.
type NotificationType string

const (
	// NotificationApprovalRequest asks a doctor to review a pending enrollment.
	NotificationApprovalRequest NotificationType = "approval_request"
	// NotificationApproval tells a patient their enrollment was approved.
	NotificationApproval NotificationType = "approval"
	// NotificationRiskAlert reports a risk-triggered or mathematical failure.
	NotificationRiskAlert NotificationType = "risk_alert"
	// NotificationProgressUpdate reports a progress change worth surfacing.
	NotificationProgressUpdate NotificationType = "progress_update"
	// NotificationCompletion reports a successfully completed challenge.
	NotificationCompletion NotificationType = "completion"
	// NotificationReminder nudges a patient who has no record for the current day.
	NotificationReminder NotificationType = "reminder"
	// NotificationAchievement reports a newly unlocked milestone streak.
	NotificationAchievement NotificationType = "achievement"
	// NotificationCancellation reports a rejected or withdrawn enrollment.
	NotificationCancellation NotificationType = "cancellation"
)

// Priority grades notification urgency for the external delivery subsystem.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ChallengeNotification is an event produced by the engine. Delivery and
// persistence belong to the external notification subsystem.
type ChallengeNotification struct {
	RecipientID        string           `json:"recipient_id"`
	RecipientType      RecipientType    `json:"recipient_type"`
	Type               NotificationType `json:"notification_type"`
	RelatedChallengeID string           `json:"related_challenge_id"`
	Priority           Priority         `json:"priority"`
	Message            string           `json:"message,omitempty"`
	IsRead             bool             `json:"is_read"`
	CreatedAt          time.Time        `json:"created_at"`
}
