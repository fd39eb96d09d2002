package escrow

import "time"

// Policy windows for the recovery paths. Defaults follow the on-chain
// deployment (144 hour emergency window, 7x that for abandonment); both
// are overridable through configuration.
type Windows struct {
	Emergency   time.Duration
	Abandonment time.Duration
}

func DefaultWindows() Windows {
	return Windows{
		Emergency:   144 * time.Hour,
		Abandonment: 1008 * time.Hour,
	}
}

// EmergencyRefundEligible reports whether the inactivity window for a
// client-side emergency refund has elapsed. Callers must read
// lastActivity under the project lock that also guards the refund, and
// reject open disputes before consulting the window.
func (w Windows) EmergencyRefundEligible(now, lastActivity time.Time) bool {
	return now.Sub(lastActivity) >= w.Emergency
}

// ForceReleaseEligible reports whether an admin may release a completed,
// disputed milestone that the client has sat on past the emergency window.
func (w Windows) ForceReleaseEligible(now, completedAt time.Time) bool {
	return now.Sub(completedAt) >= w.Emergency
}

// AbandonmentEligible reports whether a project qualifies for the admin
// force-refund sweep.
func (w Windows) AbandonmentEligible(now, lastActivity time.Time) bool {
	return now.Sub(lastActivity) >= w.Abandonment
}
