package escrow_test

import (
	"context"
	"testing"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
)

func TestFileDispute(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000, 1000)

	// Outsiders cannot file.
	_, err := svc.FileDispute(ctx, "SP9SOMEONEELSE", p.ID, 1, "reason", "")
	wantKind(t, err, escrow.KindNotAuthorized)

	// Reason is mandatory.
	_, err = svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "", "")
	wantKind(t, err, escrow.KindInvalidArgument)

	d, err := svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "deliverable missing", "link-to-chat")
	if err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}
	if d.Status != model.DisputeOpen || d.FiledBy != clientPrincipal {
		t.Fatalf("dispute = %+v, want open filed by client", d)
	}

	// The counterparty is notified, not the filer.
	filed := rec.byType(model.NotifyDisputeFiled)
	if len(filed) != 1 || filed[0].UserID != freelancerPrincipal {
		t.Fatalf("dispute notifications = %+v, want one for the freelancer", filed)
	}
}

func TestFileDisputeOnePerMilestone(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000, 1000)

	if _, err := svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "first", ""); err != nil {
		t.Fatalf("FileDispute failed: %v", err)
	}

	// Second open dispute on the same milestone, either party.
	_, err := svc.FileDispute(ctx, freelancerPrincipal, p.ID, 1, "second", "")
	wantKind(t, err, escrow.KindAlreadyExists)

	// A different milestone is fine.
	if _, err := svc.FileDispute(ctx, freelancerPrincipal, p.ID, 2, "other milestone", ""); err != nil {
		t.Fatalf("FileDispute on milestone 2 failed: %v", err)
	}
}

func TestFileDisputeOnReleasedMilestone(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000)

	if err := svc.CompleteMilestone(ctx, freelancerPrincipal, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}
	if _, err := svc.ReleaseMilestone(ctx, clientPrincipal, p.ID, 1, "0xrel"); err != nil {
		t.Fatalf("ReleaseMilestone failed: %v", err)
	}

	_, err := svc.FileDispute(ctx, clientPrincipal, p.ID, 1, "too late", "")
	wantKind(t, err, escrow.KindInvalidState)
}

func TestFileDisputeOnRefundedProject(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	p := createProject(t, svc, 1000)

	if _, err := svc.RequestFullRefund(ctx, clientPrincipal, p.ID); err != nil {
		t.Fatalf("RequestFullRefund failed: %v", err)
	}
	_, err := svc.FileDispute(ctx, freelancerPrincipal, p.ID, 1, "reason", "")
	wantKind(t, err, escrow.KindInvalidState)
}
