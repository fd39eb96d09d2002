package escrow

import (
	"context"
	"fmt"
	"time"

	"escrow-service/internal/model"
)

// ReleaseResult describes everything a release transition touched, so the
// caller can build the right notifications after commit.
type ReleaseResult struct {
	Net                int64
	ResolvedDispute    *model.Dispute
	ApprovedSubmission *model.Submission
	ProjectCompleted   bool
}

// ApplyRelease applies the milestone release transition to a project row
// the caller already holds locked. It marks the milestone released,
// auto-resolves any open dispute on it (in the freelancer's favor, since
// payment proceeded), approves the pending off-chain submission if one
// exists and accrues the freelancer's earnings exactly once, and marks the
// project completed when every milestone's submission is approved. Actor
// and pause validation stay with the caller.
func ApplyRelease(ctx context.Context, tx Tx, p *model.Project, milestoneNum int, releaseTxID string, now time.Time) (*ReleaseResult, error) {
	const op = "escrow.ApplyRelease"

	m := p.MilestoneAt(milestoneNum)
	if m == nil {
		return nil, Errf(KindInvalidArgument, op, "milestone %d out of range 1..%d", milestoneNum, p.NumMilestones)
	}
	if !m.Complete {
		return nil, Errf(KindInvalidState, op, "milestone %d is not complete", milestoneNum)
	}
	if m.Released {
		return nil, Errf(KindInvalidState, op, "milestone %d already released", milestoneNum)
	}

	m.Released = true
	m.ReleaseTxID = releaseTxID
	p.LastActivityAt = now
	p.UpdatedAt = now

	res := &ReleaseResult{Net: m.NetAmount}

	// The release supersedes any open dispute on this milestone.
	d, err := tx.OpenDispute(ctx, p.ID, milestoneNum)
	if err != nil {
		return nil, err
	}
	if d != nil {
		resolveDispute(d, "", "", true, "superseded by milestone release", releaseTxID, now)
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return nil, err
		}
		res.ResolvedDispute = d
	}

	// Off-chain bookkeeping: an approved submission accrues the
	// freelancer's lifetime earnings, once.
	sub, err := tx.PendingSubmission(ctx, p.ID, milestoneNum)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		sub.Status = model.SubmissionApproved
		sub.ReleaseTxID = releaseTxID
		reviewed := now
		sub.ReviewedAt = &reviewed
		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return nil, err
		}
		if err := tx.AddEarnings(ctx, p.Freelancer, m.NetAmount); err != nil {
			return nil, err
		}
		res.ApprovedSubmission = sub

		approved, err := tx.CountApprovedSubmissions(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if approved >= p.NumMilestones {
			p.Status = model.ProjectCompleted
			res.ProjectCompleted = true
		}
	}

	if err := tx.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return res, nil
}

// applyRefund marks the project refunded and resolves every open dispute
// on it. Used by the full, emergency and force refund paths; eligibility
// checks stay with the caller. Returns the refunded net amount and the
// disputes swept.
func applyRefund(ctx context.Context, tx Tx, p *model.Project, resolution string, now time.Time) (int64, []*model.Dispute, error) {
	refundable := p.UnreleasedNet()

	open, err := tx.OpenDisputes(ctx, p.ID)
	if err != nil {
		return 0, nil, err
	}
	for _, d := range open {
		resolveDispute(d, "", "", false, resolution, "", now)
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return 0, nil, err
		}
	}

	p.Refunded = true
	p.Status = model.ProjectRefunded
	p.LastActivityAt = now
	p.UpdatedAt = now
	if err := tx.UpdateProject(ctx, p); err != nil {
		return 0, nil, err
	}
	return refundable, open, nil
}

func resolveDispute(d *model.Dispute, resolvedBy, status string, favorFreelancer bool, resolution, resolutionTxID string, now time.Time) {
	if status == "" {
		status = model.DisputeResolved
	}
	d.Status = status
	d.ResolvedBy = resolvedBy
	d.FavorFreelancer = favorFreelancer
	d.Resolution = resolution
	d.ResolutionTxID = resolutionTxID
	resolved := now
	d.ResolvedAt = &resolved
}

func releasedNotification(p *model.Project, m *model.Milestone) model.Notification {
	return model.Notification{
		UserID:    p.Freelancer,
		Type:      model.NotifyMilestoneReleased,
		Title:     "Milestone payment released",
		Message:   fmt.Sprintf("Payment of %d for milestone %d of project %d has been released to you", m.NetAmount, m.Num, p.ID),
		ProjectID: p.ID,
	}
}

func refundedNotification(p *model.Project, recipient string, amount int64) model.Notification {
	return model.Notification{
		UserID:    recipient,
		Type:      model.NotifyProjectRefunded,
		Title:     "Project refunded",
		Message:   fmt.Sprintf("Project %d has been refunded (%d returned to the client)", p.ID, amount),
		ProjectID: p.ID,
	}
}

func disputeResolvedNotification(d *model.Dispute, recipient string) model.Notification {
	return model.Notification{
		UserID:    recipient,
		Type:      model.NotifyDisputeResolved,
		Title:     "Dispute resolved",
		Message:   fmt.Sprintf("The dispute on milestone %d of project %d is %s", d.MilestoneNum, d.ProjectID, d.Status),
		ProjectID: d.ProjectID,
	}
}

func completedNotification(p *model.Project, recipient string) model.Notification {
	return model.Notification{
		UserID:    recipient,
		Type:      model.NotifyProjectCompleted,
		Title:     "Project completed",
		Message:   fmt.Sprintf("All milestones of project %d are approved and paid", p.ID),
		ProjectID: p.ID,
	}
}
