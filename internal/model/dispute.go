package model

import "time"

// Dispute statuses.
const (
	DisputeOpen     = "open"
	DisputeResolved = "resolved"
	DisputeReset    = "reset"
)

// Dispute is an adjudication request scoped to a single milestone. At most
// one open dispute may exist per (project, milestone) pair.
type Dispute struct {
	ID              int64      `json:"id"`
	ProjectID       int64      `json:"project_id"`
	MilestoneNum    int        `json:"milestone_num"`
	FiledBy         string     `json:"filed_by"` // principal
	Reason          string     `json:"reason"`
	Evidence        string     `json:"evidence,omitempty"`
	Status          string     `json:"status"`
	Resolution      string     `json:"resolution,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"` // admin principal
	ResolutionTxID  string     `json:"resolution_tx_id,omitempty"`
	FavorFreelancer bool       `json:"favor_freelancer"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}
