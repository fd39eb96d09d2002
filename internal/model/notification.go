package model

import "time"

// Notification types emitted by escrow and workflow transitions.
const (
	NotifyMilestoneSubmitted = "milestone_submitted"
	NotifyMilestoneCompleted = "milestone_completed"
	NotifyMilestoneReleased  = "milestone_released"
	NotifySubmissionApproved = "submission_approved"
	NotifySubmissionRejected = "submission_rejected"
	NotifyDisputeFiled       = "dispute_filed"
	NotifyDisputeResolved    = "dispute_resolved"
	NotifyProjectCompleted   = "project_completed"
	NotifyProjectRefunded    = "project_refunded"
)

// Notification is a user-facing event. Delivery is best-effort: a failed
// enqueue never rolls back the transition that produced it.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"` // principal
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ProjectID int64     `json:"project_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
