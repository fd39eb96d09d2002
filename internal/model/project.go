package model

import "time"

// Token types accepted for escrow funding.
const (
	TokenSTX  = "STX"
	TokenSBTC = "sBTC"
)

// Project statuses.
const (
	ProjectOpen      = "open"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectCancelled = "cancelled"
	ProjectRefunded  = "refunded"

	// ProjectDisputed is a legacy value from an earlier schema generation.
	// Disputes are milestone-scoped now; rows carrying this status are
	// normalized to active on load and it must never be written back.
	ProjectDisputed = "disputed"
)

// MaxMilestones is the number of milestone slots per project.
const MaxMilestones = 4

// Milestone is one payment tranche of a project. Amounts are integer
// micro-units; NetAmount is the post-fee amount snapshotted at creation.
type Milestone struct {
	Num         int        `json:"num"` // 1-based
	Amount      int64      `json:"amount"`
	NetAmount   int64      `json:"net_amount"`
	Complete    bool       `json:"complete"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Released    bool       `json:"released"`
	ReleaseTxID string     `json:"release_tx_id,omitempty"`
}

type Project struct {
	ID             int64       `json:"id"`
	Client         string      `json:"client"`     // principal
	Freelancer     string      `json:"freelancer"` // principal
	TokenType      string      `json:"token_type"` // STX / sBTC
	Status         string      `json:"status"`
	NumMilestones  int         `json:"num_milestones"`
	Milestones     []Milestone `json:"milestones"`
	FeeBps         int         `json:"fee_bps"` // snapshotted at creation
	TotalFee       int64       `json:"total_fee"`
	Refunded       bool        `json:"refunded"`
	EscrowTxID     string      `json:"escrow_tx_id,omitempty"`
	OnChainID      string      `json:"on_chain_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

// MilestoneAt returns the 1-based milestone slot, or nil if out of range.
func (p *Project) MilestoneAt(num int) *Milestone {
	if num < 1 || num > len(p.Milestones) {
		return nil
	}
	return &p.Milestones[num-1]
}

// TotalNet is the sum of all milestone net amounts.
func (p *Project) TotalNet() int64 {
	var total int64
	for _, m := range p.Milestones {
		total += m.NetAmount
	}
	return total
}

// UnreleasedNet is the sum of net amounts of milestones not yet released.
func (p *Project) UnreleasedNet() int64 {
	var total int64
	for _, m := range p.Milestones {
		if !m.Released {
			total += m.NetAmount
		}
	}
	return total
}

// Budget is the sum of gross milestone amounts. Display/filtering only,
// never part of refund or release arithmetic.
func (p *Project) Budget() int64 {
	var total int64
	for _, m := range p.Milestones {
		total += m.Amount
	}
	return total
}

// HasAnyActivity reports whether any milestone has been completed.
func (p *Project) HasAnyActivity() bool {
	for _, m := range p.Milestones {
		if m.Complete {
			return true
		}
	}
	return false
}
