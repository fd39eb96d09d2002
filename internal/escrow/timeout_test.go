package escrow

import (
	"testing"
	"time"
)

func TestEmergencyRefundEligible(t *testing.T) {
	w := DefaultWindows()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if w.EmergencyRefundEligible(base.Add(143*time.Hour), base) {
		t.Fatal("eligible one hour before the window elapsed")
	}
	if !w.EmergencyRefundEligible(base.Add(144*time.Hour), base) {
		t.Fatal("not eligible exactly at the window boundary")
	}
}

func TestForceReleaseEligible(t *testing.T) {
	w := DefaultWindows()
	completed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if w.ForceReleaseEligible(completed.Add(w.Emergency-time.Minute), completed) {
		t.Fatal("eligible before the emergency window elapsed")
	}
	if !w.ForceReleaseEligible(completed.Add(w.Emergency), completed) {
		t.Fatal("not eligible at the emergency window boundary")
	}
}

func TestAbandonmentEligible(t *testing.T) {
	w := DefaultWindows()
	last := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if w.AbandonmentEligible(last.Add(w.Abandonment-time.Hour), last) {
		t.Fatal("eligible before the abandonment window elapsed")
	}
	if !w.AbandonmentEligible(last.Add(w.Abandonment), last) {
		t.Fatal("not eligible at the abandonment window boundary")
	}
	if w.Abandonment != 7*w.Emergency {
		t.Fatalf("default abandonment window is %v, want 7x emergency", w.Abandonment)
	}
}
