package escrow_test

import (
	"context"
	"testing"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
)

func TestAdminResolveDispute(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000)
	d, err := svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "quality issue", "")
	if err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}

	// Parties are not admins.
	err = svc.AdminResolveDispute(ctx, clientPrincipal, d.ID, "my own case", "", false)
	wantKind(t, err, escrow.KindNotAuthorized)

	if err := svc.AdminResolveDispute(ctx, adminPrincipal, d.ID, "split verdict", "0xres", true); err != nil {
		t.Fatalf("AdminResolveDispute failed: %v", err)
	}

	got, err := store.GetDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDispute failed: %v", err)
	}
	if got.Status != model.DisputeResolved || got.ResolvedBy != adminPrincipal || !got.FavorFreelancer {
		t.Fatalf("dispute = %+v, want resolved by admin for freelancer", got)
	}

	// Already closed.
	err = svc.AdminResolveDispute(ctx, adminPrincipal, d.ID, "again", "", false)
	wantKind(t, err, escrow.KindInvalidState)
}

func TestAdminResetDisputeReopensMilestone(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000)
	d, err := svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "premature", "")
	if err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}

	if err := svc.AdminResetDispute(ctx, adminPrincipal, d.ID, "filed in error"); err != nil {
		t.Fatalf("AdminResetDispute failed: %v", err)
	}
	got, err := store.GetDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDispute failed: %v", err)
	}
	if got.Status != model.DisputeReset {
		t.Fatalf("dispute status = %s, want reset", got.Status)
	}

	// Milestone is usable again: complete it and file a fresh dispute.
	if err := svc.CompleteMilestone(ctx, freelancerPrincipal, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone after reset failed: %v", err)
	}
	if _, err := svc.FileDispute(ctx, freelancerPrincipal, p.ID, 1, "new grievance", ""); err != nil {
		t.Fatalf("FileDispute after reset failed: %v", err)
	}
}

func TestAdminResetMilestone(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000)

	if err := svc.CompleteMilestone(ctx, freelancerPrincipal, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}
	d, err := svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "contested", "")
	if err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}

	if err := svc.AdminResetMilestone(ctx, adminPrincipal, p.ID, 1); err != nil {
		t.Fatalf("AdminResetMilestone failed: %v", err)
	}

	got, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	m := got.MilestoneAt(1)
	if m.Complete || m.Released || m.CompletedAt != nil {
		t.Fatalf("milestone = %+v, want reinitialized", m)
	}

	// Dispute records on the milestone are deleted outright.
	if _, err := store.GetDispute(ctx, d.ID); !escrow.IsKind(err, escrow.KindNotFound) {
		t.Fatalf("dispute lookup after reset = %v, want not_found", err)
	}

	// The milestone can go through the normal flow again.
	if err := svc.CompleteMilestone(ctx, freelancerPrincipal, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone after reset failed: %v", err)
	}
}

func TestForceReleaseMilestone(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000)

	if err := svc.CompleteMilestone(ctx, freelancerPrincipal, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}

	// No open dispute, nothing to force past.
	_, err := svc.ForceReleaseMilestone(ctx, adminPrincipal, p.ID, 1, "0xforce")
	wantKind(t, err, escrow.KindInvalidState)

	if _, err := svc.FileDispute(ctx, freelancerPrincipal, p.ID, 1, "client sitting on it", ""); err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}

	// Window has not elapsed since completion.
	_, err = svc.ForceReleaseMilestone(ctx, adminPrincipal, p.ID, 1, "0xforce")
	wantKind(t, err, escrow.KindTooEarly)

	clk.Advance(144 * time.Hour)
	net, err := svc.ForceReleaseMilestone(ctx, adminPrincipal, p.ID, 1, "0xforce")
	if err != nil {
		t.Fatalf("ForceReleaseMilestone failed: %v", err)
	}
	if net != 975 {
		t.Fatalf("net = %d, want 975", net)
	}
}

func TestForceRefundProject(t *testing.T) {
	svc, store, _, clk := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000, 1000)

	d, err := svc.FileDispute(ctx, freelancerPrincipal, p.ID, 1, "abandoned", "")
	if err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}

	_, err = svc.ForceRefundProject(ctx, adminPrincipal, p.ID)
	wantKind(t, err, escrow.KindTooEarly)

	clk.Advance(1008 * time.Hour)
	refunded, err := svc.ForceRefundProject(ctx, adminPrincipal, p.ID)
	if err != nil {
		t.Fatalf("ForceRefundProject failed: %v", err)
	}
	if refunded != 1950 {
		t.Fatalf("refunded = %d, want 1950", refunded)
	}

	// Open disputes are swept to resolved, not left dangling.
	gotD, err := store.GetDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDispute failed: %v", err)
	}
	if gotD.Status != model.DisputeResolved || gotD.FavorFreelancer {
		t.Fatalf("swept dispute = %+v, want resolved against the freelancer", gotD)
	}

	gotP, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if gotP.Status != model.ProjectRefunded {
		t.Fatalf("project status = %s, want refunded", gotP.Status)
	}
}

func TestSetFeeRate(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	// Owner only.
	err := svc.SetFeeRate(ctx, adminPrincipal, 300)
	wantKind(t, err, escrow.KindNotAuthorized)

	// Range check.
	err = svc.SetFeeRate(ctx, ownerPrincipal, 1001)
	wantKind(t, err, escrow.KindInvalidArgument)

	if err := svc.SetFeeRate(ctx, ownerPrincipal, 300); err != nil {
		t.Fatalf("SetFeeRate failed: %v", err)
	}

	// Idempotent writes are rejected as no-ops.
	err = svc.SetFeeRate(ctx, ownerPrincipal, 300)
	wantKind(t, err, escrow.KindNoChange)

	cfg, err := store.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg.FeeBps != 300 {
		t.Fatalf("fee_bps = %d, want 300", cfg.FeeBps)
	}
}

func TestSetTreasuryAndPausedNoChange(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.SetTreasury(ctx, ownerPrincipal, "SP4TREASURY"); err != nil {
		t.Fatalf("SetTreasury failed: %v", err)
	}
	err := svc.SetTreasury(ctx, ownerPrincipal, "SP4TREASURY")
	wantKind(t, err, escrow.KindNoChange)

	err = svc.SetPaused(ctx, ownerPrincipal, false)
	wantKind(t, err, escrow.KindNoChange)
}

func TestOwnershipTransfer(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	const newOwner = "SP5NEWOWNER"

	// Nobody can accept before a proposal exists.
	err := svc.AcceptOwnership(ctx, newOwner)
	wantKind(t, err, escrow.KindNotAuthorized)

	if err := svc.ProposeOwnership(ctx, ownerPrincipal, newOwner); err != nil {
		t.Fatalf("ProposeOwnership failed: %v", err)
	}
	err = svc.ProposeOwnership(ctx, ownerPrincipal, newOwner)
	wantKind(t, err, escrow.KindNoChange)

	// Only the proposed principal may accept.
	err = svc.AcceptOwnership(ctx, clientPrincipal)
	wantKind(t, err, escrow.KindNotAuthorized)

	if err := svc.AcceptOwnership(ctx, newOwner); err != nil {
		t.Fatalf("AcceptOwnership failed: %v", err)
	}

	cfg, err := store.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg.Owner != newOwner || cfg.ProposedOwner != "" {
		t.Fatalf("config = %+v, want transferred ownership", cfg)
	}

	// The old owner lost control.
	err = svc.SetFeeRate(ctx, ownerPrincipal, 100)
	wantKind(t, err, escrow.KindNotAuthorized)
	if err := svc.SetFeeRate(ctx, newOwner, 100); err != nil {
		t.Fatalf("SetFeeRate by new owner failed: %v", err)
	}
}

func TestSuspendUser(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.SuspendUser(ctx, adminPrincipal, "SP9UNKNOWN")
	wantKind(t, err, escrow.KindNotFound)

	if err := svc.SuspendUser(ctx, adminPrincipal, clientPrincipal); err != nil {
		t.Fatalf("SuspendUser failed: %v", err)
	}
	err = svc.SuspendUser(ctx, adminPrincipal, clientPrincipal)
	wantKind(t, err, escrow.KindNoChange)

	err = svc.SuspendUser(ctx, clientPrincipal, freelancerPrincipal)
	wantKind(t, err, escrow.KindNotAuthorized)
}
