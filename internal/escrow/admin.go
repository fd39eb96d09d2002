package escrow

import (
	"context"

	"escrow-service/internal/model"

	"go.uber.org/zap"
)

// Admin override paths. These stay available while the contract is paused
// and bypass the normal party checks, but take the same per-project lock
// as user-initiated operations.

// AdminResolveDispute closes an open dispute with a payout decision.
func (s *Service) AdminResolveDispute(ctx context.Context, admin string, disputeID int64, resolution, resolutionTxID string, favorFreelancer bool) (err error) {
	const op = "escrow.AdminResolveDispute"
	defer func() { s.record("admin_resolve_dispute", err) }()
	return s.adminCloseDispute(ctx, op, admin, disputeID, model.DisputeResolved, resolution, resolutionTxID, favorFreelancer)
}

// AdminResetDispute clears an open dispute without a payout decision,
// leaving the milestone open for the normal workflow.
func (s *Service) AdminResetDispute(ctx context.Context, admin string, disputeID int64, resolution string) (err error) {
	const op = "escrow.AdminResetDispute"
	defer func() { s.record("admin_reset_dispute", err) }()
	return s.adminCloseDispute(ctx, op, admin, disputeID, model.DisputeReset, resolution, "", false)
}

func (s *Service) adminCloseDispute(ctx context.Context, op, admin string, disputeID int64, status, resolution, resolutionTxID string, favorFreelancer bool) error {
	var events []model.Notification
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireAdmin(ctx, tx, admin, op); err != nil {
			return err
		}
		probe, err := tx.GetDispute(ctx, disputeID)
		if err != nil {
			return err
		}
		// Lock the project before touching the dispute: all dispute
		// mutations happen under the project lock.
		p, err := tx.ProjectForUpdate(ctx, probe.ProjectID)
		if err != nil {
			return err
		}
		d, err := tx.GetDispute(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != model.DisputeOpen {
			return Errf(KindInvalidState, op, "dispute %d is %s, not open", disputeID, d.Status)
		}

		now := s.now()
		resolveDispute(d, admin, status, favorFreelancer, resolution, resolutionTxID, now)
		if err := tx.UpdateDispute(ctx, d); err != nil {
			return err
		}

		// Migration safety net: a whole-project "disputed" status must
		// never outlive its last open dispute.
		if p.Status == model.ProjectDisputed {
			remaining, err := tx.OpenDisputes(ctx, p.ID)
			if err != nil {
				return err
			}
			if len(remaining) == 0 {
				p.Status = model.ProjectActive
			}
		}
		p.UpdatedAt = now
		if err := tx.UpdateProject(ctx, p); err != nil {
			return err
		}

		events = append(events,
			disputeResolvedNotification(d, p.Client),
			disputeResolvedNotification(d, p.Freelancer),
		)
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Dispute closed by admin",
		zap.Int64("dispute_id", disputeID),
		zap.String("status", status),
		zap.String("admin", admin),
	)
	return nil
}

// AdminResetMilestone wipes a milestone back to pending and deletes any
// dispute records on it. Administrative correction tool; it bypasses every
// check except admin identity.
func (s *Service) AdminResetMilestone(ctx context.Context, admin string, projectID int64, milestoneNum int) (err error) {
	const op = "escrow.AdminResetMilestone"
	defer func() { s.record("admin_reset_milestone", err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireAdmin(ctx, tx, admin, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		m := p.MilestoneAt(milestoneNum)
		if m == nil {
			return Errf(KindInvalidArgument, op, "milestone %d out of range 1..%d", milestoneNum, p.NumMilestones)
		}
		if err := tx.DeleteDisputes(ctx, projectID, milestoneNum); err != nil {
			return err
		}
		m.Complete = false
		m.CompletedAt = nil
		m.Released = false
		m.ReleaseTxID = ""
		p.UpdatedAt = s.now()
		return tx.UpdateProject(ctx, p)
	})
	if err != nil {
		return err
	}

	s.logger.Warn("Milestone reset by admin",
		zap.Int64("project_id", projectID),
		zap.Int("milestone", milestoneNum),
		zap.String("admin", admin),
	)
	return nil
}

// ForceReleaseMilestone releases a completed, disputed milestone the
// client has sat on past the emergency window. Behaves like a normal
// release, including the dispute auto-resolution.
func (s *Service) ForceReleaseMilestone(ctx context.Context, admin string, projectID int64, milestoneNum int, releaseTxID string) (net int64, err error) {
	const op = "escrow.ForceReleaseMilestone"
	defer func() { s.record("force_release", err) }()

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireAdmin(ctx, tx, admin, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d has been refunded", projectID)
		}
		m := p.MilestoneAt(milestoneNum)
		if m == nil {
			return Errf(KindInvalidArgument, op, "milestone %d out of range 1..%d", milestoneNum, p.NumMilestones)
		}
		if !m.Complete {
			return Errf(KindInvalidState, op, "milestone %d is not complete", milestoneNum)
		}
		if m.Released {
			return Errf(KindInvalidState, op, "milestone %d already released", milestoneNum)
		}
		d, err := tx.OpenDispute(ctx, projectID, milestoneNum)
		if err != nil {
			return err
		}
		if d == nil {
			return Errf(KindInvalidState, op, "milestone %d has no open dispute to force past", milestoneNum)
		}
		if !s.windows.ForceReleaseEligible(s.now(), *m.CompletedAt) {
			return Errf(KindTooEarly, op, "emergency window has not elapsed since completion")
		}

		res, err := ApplyRelease(ctx, tx, p, milestoneNum, releaseTxID, s.now())
		if err != nil {
			return err
		}
		net = res.Net
		events = append(events, releasedNotification(p, m))
		if res.ResolvedDispute != nil {
			events = append(events, disputeResolvedNotification(res.ResolvedDispute, res.ResolvedDispute.FiledBy))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.notifyAll(ctx, events)
	s.logger.Warn("Milestone force-released",
		zap.Int64("project_id", projectID),
		zap.Int("milestone", milestoneNum),
		zap.String("admin", admin),
		zap.Int64("net_amount", net),
	)
	return net, nil
}

// ForceRefundProject sweeps an abandoned project: refunds every unreleased
// milestone and resolves every open dispute on the project.
func (s *Service) ForceRefundProject(ctx context.Context, admin string, projectID int64) (refunded int64, err error) {
	const op = "escrow.ForceRefundProject"
	defer func() { s.record("force_refund", err) }()

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireAdmin(ctx, tx, admin, op); err != nil {
			return err
		}
		p, err := s.projectForUpdate(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Refunded {
			return Errf(KindInvalidState, op, "project %d already refunded", projectID)
		}
		if !s.windows.AbandonmentEligible(s.now(), p.LastActivityAt) {
			return Errf(KindTooEarly, op, "abandonment window has not elapsed for project %d", projectID)
		}

		var swept []*model.Dispute
		refunded, swept, err = applyRefund(ctx, tx, p, "project force-refunded after abandonment", s.now())
		if err != nil {
			return err
		}
		events = append(events,
			refundedNotification(p, p.Client, refunded),
			refundedNotification(p, p.Freelancer, refunded),
		)
		for _, d := range swept {
			events = append(events, disputeResolvedNotification(d, d.FiledBy))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.notifyAll(ctx, events)
	s.logger.Warn("Project force-refunded",
		zap.Int64("project_id", projectID),
		zap.String("admin", admin),
		zap.Int64("amount", refunded),
	)
	return refunded, nil
}

// SetFeeRate updates the platform fee. Owner-only; in-flight projects keep
// their snapshotted rate.
func (s *Service) SetFeeRate(ctx context.Context, actor string, bps int) (err error) {
	const op = "escrow.SetFeeRate"
	defer func() { s.record("set_fee_rate", err) }()

	if bps < 0 || bps > model.MaxFeeBps {
		return Errf(KindInvalidArgument, op, "fee rate %d out of range 0..%d", bps, model.MaxFeeBps)
	}
	return s.updateConfig(ctx, actor, op, func(cfg *model.PlatformConfig) error {
		if cfg.FeeBps == bps {
			return Errf(KindNoChange, op, "fee rate is already %d bps", bps)
		}
		cfg.FeeBps = bps
		return nil
	})
}

// SetPaused toggles the global pause flag.
func (s *Service) SetPaused(ctx context.Context, actor string, paused bool) (err error) {
	const op = "escrow.SetPaused"
	defer func() { s.record("set_paused", err) }()

	return s.updateConfig(ctx, actor, op, func(cfg *model.PlatformConfig) error {
		if cfg.Paused == paused {
			return Errf(KindNoChange, op, "paused is already %t", paused)
		}
		cfg.Paused = paused
		return nil
	})
}

// SetTreasury points fee collection at a new principal.
func (s *Service) SetTreasury(ctx context.Context, actor, treasury string) (err error) {
	const op = "escrow.SetTreasury"
	defer func() { s.record("set_treasury", err) }()

	if treasury == "" {
		return Errf(KindInvalidArgument, op, "treasury principal is required")
	}
	return s.updateConfig(ctx, actor, op, func(cfg *model.PlatformConfig) error {
		if cfg.Treasury == treasury {
			return Errf(KindNoChange, op, "treasury is already %s", treasury)
		}
		cfg.Treasury = treasury
		return nil
	})
}

// ProposeOwnership starts the two-step ownership transfer.
func (s *Service) ProposeOwnership(ctx context.Context, actor, newOwner string) (err error) {
	const op = "escrow.ProposeOwnership"
	defer func() { s.record("propose_ownership", err) }()

	if newOwner == "" {
		return Errf(KindInvalidArgument, op, "new owner principal is required")
	}
	return s.updateConfig(ctx, actor, op, func(cfg *model.PlatformConfig) error {
		if newOwner == cfg.Owner {
			return Errf(KindNoChange, op, "%s already owns the contract", newOwner)
		}
		if cfg.ProposedOwner == newOwner {
			return Errf(KindNoChange, op, "%s is already proposed", newOwner)
		}
		cfg.ProposedOwner = newOwner
		return nil
	})
}

// AcceptOwnership completes the transfer. Only the proposed principal may
// call it.
func (s *Service) AcceptOwnership(ctx context.Context, actor string) (err error) {
	const op = "escrow.AcceptOwnership"
	defer func() { s.record("accept_ownership", err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.ConfigForUpdate(ctx)
		if err != nil {
			return err
		}
		if cfg.ProposedOwner == "" || actor != cfg.ProposedOwner {
			return Errf(KindNotAuthorized, op, "%s is not the proposed owner", actor)
		}
		cfg.Owner = actor
		cfg.ProposedOwner = ""
		cfg.UpdatedAt = s.now()
		return tx.UpdateConfig(ctx, cfg)
	})
	if err != nil {
		return err
	}
	s.logger.Warn("Contract ownership transferred", zap.String("new_owner", actor))
	return nil
}

// SuspendUser blocks a principal from every actor-facing operation.
func (s *Service) SuspendUser(ctx context.Context, admin, principal string) (err error) {
	const op = "escrow.SuspendUser"
	defer func() { s.record("suspend_user", err) }()
	return s.setSuspended(ctx, op, admin, principal, true)
}

// ReinstateUser lifts a suspension.
func (s *Service) ReinstateUser(ctx context.Context, admin, principal string) (err error) {
	const op = "escrow.ReinstateUser"
	defer func() { s.record("reinstate_user", err) }()
	return s.setSuspended(ctx, op, admin, principal, false)
}

func (s *Service) setSuspended(ctx context.Context, op, admin, principal string, suspended bool) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.requireAdmin(ctx, tx, admin, op); err != nil {
			return err
		}
		u, err := tx.GetUser(ctx, principal)
		if err != nil {
			return err
		}
		if u == nil {
			return Errf(KindNotFound, op, "unknown principal %s", principal)
		}
		if u.Suspended == suspended {
			return Errf(KindNoChange, op, "suspended is already %t for %s", suspended, principal)
		}
		return tx.SetUserSuspended(ctx, principal, suspended)
	})
	if err != nil {
		return err
	}
	s.logger.Warn("User suspension changed",
		zap.String("principal", principal),
		zap.Bool("suspended", suspended),
		zap.String("admin", admin),
	)
	return nil
}

// updateConfig applies an owner-only mutation to the singleton platform
// configuration.
func (s *Service) updateConfig(ctx context.Context, actor, op string, mutate func(*model.PlatformConfig) error) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cfg, err := tx.ConfigForUpdate(ctx)
		if err != nil {
			return err
		}
		if actor != cfg.Owner {
			return Errf(KindNotAuthorized, op, "%s is not the contract owner", actor)
		}
		if err := mutate(cfg); err != nil {
			return err
		}
		cfg.UpdatedAt = s.now()
		return tx.UpdateConfig(ctx, cfg)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Platform configuration updated", zap.String("op", op), zap.String("actor", actor))
	return nil
}
