package model

import "time"

// MaxFeeBps caps the platform fee at 10%.
const MaxFeeBps = 1000

// PlatformConfig is the singleton process-wide configuration record. Owner
// transfer is two-step: the current owner proposes, the proposed principal
// accepts.
type PlatformConfig struct {
	FeeBps        int       `json:"fee_bps"`
	Paused        bool      `json:"paused"`
	Treasury      string    `json:"treasury"` // principal
	Owner         string    `json:"owner"`    // principal
	ProposedOwner string    `json:"proposed_owner,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
