package model

import "time"

// Submission statuses.
const (
	SubmissionSubmitted = "submitted"
	SubmissionApproved  = "approved"
	SubmissionRejected  = "rejected"
)

// Submission is the off-chain milestone delivery record. It mirrors but is
// distinct from the on-chain completion flag: the freelancer submits work
// with the completion transaction id, and the client's approval drives the
// release on the ledger side.
type Submission struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	MilestoneNum   int        `json:"milestone_num"`
	Freelancer     string     `json:"freelancer"` // principal
	Deliverable    string     `json:"deliverable"`
	Description    string     `json:"description,omitempty"`
	CompletionTxID string     `json:"completion_tx_id,omitempty"`
	Status         string     `json:"status"`
	ReleaseTxID    string     `json:"release_tx_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
}
