package escrow

import (
	"context"
	"fmt"

	"escrow-service/internal/model"

	"go.uber.org/zap"
)

// FileDispute opens an adjudication request on a milestone. At most one
// open dispute may exist per (project, milestone); a released milestone or
// a refunded project cannot be disputed.
func (s *Service) FileDispute(ctx context.Context, actor string, projectID int64, milestoneNum int, reason, evidence string) (d *model.Dispute, err error) {
	const op = "escrow.FileDispute"
	defer func() { s.record("file_dispute", err) }()

	if reason == "" {
		return nil, Errf(KindInvalidArgument, op, "a dispute reason is required")
	}

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireUnpaused(ctx, tx, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if actor != p.Client && actor != p.Freelancer {
			return Errf(KindNotAuthorized, op, "only a project party can file a dispute")
		}
		if err := s.requireActor(ctx, tx, actor, op); err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d has been refunded", projectID)
		}
		if p.Status != model.ProjectActive {
			return Errf(KindInvalidState, op, "project %d is %s", projectID, p.Status)
		}
		m := p.MilestoneAt(milestoneNum)
		if m == nil {
			return Errf(KindInvalidArgument, op, "milestone %d out of range 1..%d", milestoneNum, p.NumMilestones)
		}
		if m.Released {
			return Errf(KindInvalidState, op, "milestone %d already released", milestoneNum)
		}
		existing, err := tx.OpenDispute(ctx, projectID, milestoneNum)
		if err != nil {
			return err
		}
		if existing != nil {
			return Errf(KindAlreadyExists, op, "milestone %d already has an open dispute", milestoneNum)
		}

		now := s.now()
		d = &model.Dispute{
			ProjectID:    projectID,
			MilestoneNum: milestoneNum,
			FiledBy:      actor,
			Reason:       reason,
			Evidence:     evidence,
			Status:       model.DisputeOpen,
			CreatedAt:    now,
		}
		id, err := tx.InsertDispute(ctx, d)
		if err != nil {
			return err
		}
		d.ID = id

		p.LastActivityAt = now
		p.UpdatedAt = now
		if err := tx.UpdateProject(ctx, p); err != nil {
			return err
		}

		counterparty := p.Client
		if actor == p.Client {
			counterparty = p.Freelancer
		}
		events = append(events, model.Notification{
			UserID:    counterparty,
			Type:      model.NotifyDisputeFiled,
			Title:     "Dispute filed",
			Message:   fmt.Sprintf("A dispute has been filed on milestone %d of project %d", milestoneNum, projectID),
			ProjectID: projectID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Dispute filed",
		zap.Int64("dispute_id", d.ID),
		zap.Int64("project_id", projectID),
		zap.Int("milestone", milestoneNum),
		zap.String("filed_by", actor),
	)
	return d, nil
}
