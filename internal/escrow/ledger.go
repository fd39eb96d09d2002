package escrow

import (
	"context"
	"fmt"

	"escrow-service/internal/model"

	"go.uber.org/zap"
)

// CreateProjectParams carries the already-validated controller input for
// project creation.
type CreateProjectParams struct {
	Client     string
	Freelancer string
	Amounts    []int64 // gross milestone amounts, 1..4 slots
	TokenType  string
	EscrowTxID string
	OnChainID  string
}

// CreateProject opens a funded project. The current fee rate is
// snapshotted onto the project so later release and refund arithmetic is
// unaffected by configuration changes.
func (s *Service) CreateProject(ctx context.Context, params CreateProjectParams) (p *model.Project, err error) {
	const op = "escrow.CreateProject"
	defer func() { s.record("create_project", err) }()

	if params.Client == "" || params.Freelancer == "" {
		return nil, Errf(KindInvalidArgument, op, "client and freelancer principals are required")
	}
	if params.Client == params.Freelancer {
		return nil, Errf(KindInvalidArgument, op, "client and freelancer must differ")
	}
	if params.TokenType != model.TokenSTX && params.TokenType != model.TokenSBTC {
		return nil, Errf(KindInvalidArgument, op, "unknown token type %q", params.TokenType)
	}
	if len(params.Amounts) < 1 || len(params.Amounts) > model.MaxMilestones {
		return nil, Errf(KindInvalidArgument, op, "need 1..%d milestones, got %d", model.MaxMilestones, len(params.Amounts))
	}
	var total int64
	for i, a := range params.Amounts {
		if a < 0 {
			return nil, Errf(KindInvalidArgument, op, "milestone %d amount must not be negative", i+1)
		}
		total += a
	}
	if total <= 0 {
		return nil, Errf(KindInvalidArgument, op, "total escrow amount must be positive")
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireUnpaused(ctx, tx, op); err != nil {
			return err
		}
		if err := s.requireActor(ctx, tx, params.Client, op); err != nil {
			return err
		}
		if err := s.requireActor(ctx, tx, params.Freelancer, op); err != nil {
			return err
		}

		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		p = &model.Project{
			Client:         params.Client,
			Freelancer:     params.Freelancer,
			TokenType:      params.TokenType,
			Status:         model.ProjectActive,
			NumMilestones:  len(params.Amounts),
			FeeBps:         cfg.FeeBps,
			EscrowTxID:     params.EscrowTxID,
			OnChainID:      params.OnChainID,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastActivityAt: now,
		}
		for i, gross := range params.Amounts {
			net, fee, err := NetAmount(gross, cfg.FeeBps)
			if err != nil {
				return err
			}
			p.TotalFee += fee
			p.Milestones = append(p.Milestones, model.Milestone{
				Num:       i + 1,
				Amount:    gross,
				NetAmount: net,
			})
		}

		id, err := tx.InsertProject(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project created",
		zap.Int64("project_id", p.ID),
		zap.String("client", p.Client),
		zap.String("freelancer", p.Freelancer),
		zap.Int("num_milestones", p.NumMilestones),
		zap.Int("fee_bps", p.FeeBps),
	)
	return p, nil
}

// CompleteMilestone records the freelancer's on-chain milestone completion.
// Completing twice fails; an open dispute on the milestone blocks it.
func (s *Service) CompleteMilestone(ctx context.Context, actor string, projectID int64, milestoneNum int) (err error) {
	const op = "escrow.CompleteMilestone"
	defer func() { s.record("complete_milestone", err) }()

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireUnpaused(ctx, tx, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if actor != p.Freelancer {
			return Errf(KindNotAuthorized, op, "only the assigned freelancer can complete a milestone")
		}
		if err := s.requireActor(ctx, tx, actor, op); err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d has been refunded", projectID)
		}
		m := p.MilestoneAt(milestoneNum)
		if m == nil {
			return Errf(KindInvalidArgument, op, "milestone %d out of range 1..%d", milestoneNum, p.NumMilestones)
		}
		if m.Complete {
			return Errf(KindInvalidState, op, "milestone %d already complete", milestoneNum)
		}
		d, err := tx.OpenDispute(ctx, projectID, milestoneNum)
		if err != nil {
			return err
		}
		if d != nil {
			return Errf(KindInvalidState, op, "milestone %d has an open dispute", milestoneNum)
		}

		now := s.now()
		m.Complete = true
		m.CompletedAt = &now
		p.LastActivityAt = now
		p.UpdatedAt = now
		if err := tx.UpdateProject(ctx, p); err != nil {
			return err
		}

		events = append(events, model.Notification{
			UserID:    p.Client,
			Type:      model.NotifyMilestoneCompleted,
			Title:     "Milestone completed",
			Message:   fmt.Sprintf("Milestone %d of project %d has been marked complete", milestoneNum, projectID),
			ProjectID: projectID,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Milestone completed",
		zap.Int64("project_id", projectID),
		zap.Int("milestone", milestoneNum),
	)
	return nil
}

// ReleaseMilestone pays out a completed milestone to the freelancer and
// returns the net amount released.
func (s *Service) ReleaseMilestone(ctx context.Context, actor string, projectID int64, milestoneNum int, releaseTxID string) (net int64, err error) {
	const op = "escrow.ReleaseMilestone"
	defer func() { s.record("release_milestone", err) }()

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireUnpaused(ctx, tx, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if actor != p.Client {
			return Errf(KindNotAuthorized, op, "only the client can release a milestone")
		}
		if err := s.requireActor(ctx, tx, actor, op); err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d has been refunded", projectID)
		}

		res, err := ApplyRelease(ctx, tx, p, milestoneNum, releaseTxID, s.now())
		if err != nil {
			return err
		}
		net = res.Net
		events = append(events, releasedNotification(p, p.MilestoneAt(milestoneNum)))
		if res.ResolvedDispute != nil {
			events = append(events, disputeResolvedNotification(res.ResolvedDispute, res.ResolvedDispute.FiledBy))
		}
		if res.ProjectCompleted {
			events = append(events, completedNotification(p, p.Client), completedNotification(p, p.Freelancer))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Milestone released",
		zap.Int64("project_id", projectID),
		zap.Int("milestone", milestoneNum),
		zap.Int64("net_amount", net),
	)
	return net, nil
}

// RequestFullRefund returns the whole escrow to the client. Only allowed
// while the project has zero milestone activity and no open dispute.
func (s *Service) RequestFullRefund(ctx context.Context, actor string, projectID int64) (refunded int64, err error) {
	const op = "escrow.RequestFullRefund"
	defer func() { s.record("request_full_refund", err) }()

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireUnpaused(ctx, tx, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if actor != p.Client {
			return Errf(KindNotAuthorized, op, "only the client can request a refund")
		}
		if err := s.requireActor(ctx, tx, actor, op); err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d already refunded", projectID)
		}
		if p.HasAnyActivity() {
			return Errf(KindInvalidState, op, "project %d has milestone activity", projectID)
		}
		open, err := tx.OpenDisputes(ctx, projectID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return Errf(KindInvalidState, op, "project %d has open disputes", projectID)
		}

		refunded, _, err = applyRefund(ctx, tx, p, "superseded by full refund", s.now())
		if err != nil {
			return err
		}
		events = append(events, refundedNotification(p, p.Freelancer, refunded))
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Full refund issued",
		zap.Int64("project_id", projectID),
		zap.Int64("amount", refunded),
	)
	return refunded, nil
}

// EmergencyRefund returns the unreleased portion of the escrow to the
// client after the inactivity window has elapsed. Released milestones stay
// with the freelancer.
func (s *Service) EmergencyRefund(ctx context.Context, actor string, projectID int64) (refunded int64, err error) {
	const op = "escrow.EmergencyRefund"
	defer func() { s.record("emergency_refund", err) }()

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireUnpaused(ctx, tx, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if actor != p.Client {
			return Errf(KindNotAuthorized, op, "only the client can request a refund")
		}
		if err := s.requireActor(ctx, tx, actor, op); err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d already refunded", projectID)
		}
		open, err := tx.OpenDisputes(ctx, projectID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return Errf(KindInvalidState, op, "project %d has open disputes", projectID)
		}
		if !s.windows.EmergencyRefundEligible(s.now(), p.LastActivityAt) {
			return Errf(KindTooEarly, op, "inactivity window has not elapsed for project %d", projectID)
		}

		refunded, _, err = applyRefund(ctx, tx, p, "superseded by emergency refund", s.now())
		if err != nil {
			return err
		}
		events = append(events, refundedNotification(p, p.Freelancer, refunded))
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Emergency refund issued",
		zap.Int64("project_id", projectID),
		zap.Int64("amount", refunded),
	)
	return refunded, nil
}
