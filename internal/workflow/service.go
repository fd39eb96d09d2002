package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const budgetCacheTTL = 10 * time.Minute

// Service is the off-chain mirror: milestone submissions, client review,
// and display helpers. Approval drives the ledger's release transition in
// the same transaction, so the mirror can never diverge from the ledger.
type Service struct {
	store    escrow.Store
	notifier escrow.Notifier
	cache    *redis.Client // optional
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store escrow.Store, notifier escrow.Notifier, cache *redis.Client, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitMilestone records the freelancer's deliverable for client review.
// One submission may be pending per milestone at a time; a rejected
// milestone can be resubmitted.
func (s *Service) SubmitMilestone(ctx context.Context, actor string, projectID int64, milestoneNum int, deliverable, description, completionTxID string) (sub *model.Submission, err error) {
	const op = "workflow.SubmitMilestone"

	if deliverable == "" {
		return nil, escrow.Errf(escrow.KindInvalidArgument, op, "a deliverable reference is required")
	}

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx escrow.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return escrow.Errf(escrow.KindSystemPaused, op, "contract is paused")
		}
		p, err := tx.ProjectForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if p.Status == model.ProjectDisputed {
			p.Status = model.ProjectActive
		}
		if actor != p.Freelancer {
			return escrow.Errf(escrow.KindNotAuthorized, op, "only the assigned freelancer can submit a milestone")
		}
		if p.Status != model.ProjectActive {
			return escrow.Errf(escrow.KindInvalidState, op, "project %d is %s, not active", projectID, p.Status)
		}
		m := p.MilestoneAt(milestoneNum)
		if m == nil {
			return escrow.Errf(escrow.KindInvalidArgument, op, "milestone %d out of range 1..%d", milestoneNum, p.NumMilestones)
		}
		if m.Released {
			return escrow.Errf(escrow.KindInvalidState, op, "milestone %d already released", milestoneNum)
		}
		pending, err := tx.PendingSubmission(ctx, projectID, milestoneNum)
		if err != nil {
			return err
		}
		if pending != nil {
			return escrow.Errf(escrow.KindAlreadyExists, op, "milestone %d already has a pending submission", milestoneNum)
		}

		sub = &model.Submission{
			ProjectID:      projectID,
			MilestoneNum:   milestoneNum,
			Freelancer:     actor,
			Deliverable:    deliverable,
			Description:    description,
			CompletionTxID: completionTxID,
			Status:         model.SubmissionSubmitted,
			CreatedAt:      s.now(),
		}
		id, err := tx.InsertSubmission(ctx, sub)
		if err != nil {
			return err
		}
		sub.ID = id

		events = append(events, model.Notification{
			UserID:    p.Client,
			Type:      model.NotifyMilestoneSubmitted,
			Title:     "Milestone submitted",
			Message:   fmt.Sprintf("Milestone %d of project %d has been submitted for your review", milestoneNum, projectID),
			ProjectID: projectID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Milestone submitted",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("project_id", projectID),
		zap.Int("milestone", milestoneNum),
	)
	return sub, nil
}

// ApproveSubmission accepts a pending submission and applies the ledger's
// release transition atomically with it: milestone released, any open
// dispute auto-resolved, earnings accrued exactly once, and the project
// marked completed when the last milestone is approved.
func (s *Service) ApproveSubmission(ctx context.Context, actor string, submissionID int64, releaseTxID string) (net int64, err error) {
	const op = "workflow.ApproveSubmission"

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx escrow.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return escrow.Errf(escrow.KindSystemPaused, op, "contract is paused")
		}
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		p, err := tx.ProjectForUpdate(ctx, sub.ProjectID)
		if err != nil {
			return err
		}
		// Re-read under the project lock; review state only changes while
		// that lock is held.
		sub, err = tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if actor != p.Client {
			return escrow.Errf(escrow.KindNotAuthorized, op, "only the client can approve a submission")
		}
		if sub.Status != model.SubmissionSubmitted {
			return escrow.Errf(escrow.KindInvalidState, op, "submission %d is %s, not submitted", submissionID, sub.Status)
		}
		if p.Refunded {
			return escrow.Errf(escrow.KindInvalidState, op, "project %d has been refunded", sub.ProjectID)
		}

		res, err := escrow.ApplyRelease(ctx, tx, p, sub.MilestoneNum, releaseTxID, s.now())
		if err != nil {
			return err
		}
		net = res.Net

		events = append(events, model.Notification{
			UserID:    p.Freelancer,
			Type:      model.NotifySubmissionApproved,
			Title:     "Submission approved",
			Message:   fmt.Sprintf("Your submission for milestone %d of project %d was approved; %d released", sub.MilestoneNum, p.ID, net),
			ProjectID: p.ID,
		})
		if res.ProjectCompleted {
			events = append(events,
				completionNotification(p, p.Client),
				completionNotification(p, p.Freelancer),
			)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Submission approved",
		zap.Int64("submission_id", submissionID),
		zap.Int64("net_amount", net),
	)
	return net, nil
}

// RejectSubmission sends a submission back to the freelancer. The ledger
// is untouched; the milestone stays open for resubmission.
func (s *Service) RejectSubmission(ctx context.Context, actor string, submissionID int64, feedback string) (err error) {
	const op = "workflow.RejectSubmission"

	var events []model.Notification
	err = s.store.InTx(ctx, func(ctx context.Context, tx escrow.Tx) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return escrow.Errf(escrow.KindSystemPaused, op, "contract is paused")
		}
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		p, err := tx.ProjectForUpdate(ctx, sub.ProjectID)
		if err != nil {
			return err
		}
		sub, err = tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if actor != p.Client {
			return escrow.Errf(escrow.KindNotAuthorized, op, "only the client can reject a submission")
		}
		if sub.Status != model.SubmissionSubmitted {
			return escrow.Errf(escrow.KindInvalidState, op, "submission %d is %s, not submitted", submissionID, sub.Status)
		}

		now := s.now()
		sub.Status = model.SubmissionRejected
		sub.ReviewedAt = &now
		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}

		events = append(events, model.Notification{
			UserID:    p.Freelancer,
			Type:      model.NotifySubmissionRejected,
			Title:     "Submission rejected",
			Message:   fmt.Sprintf("Your submission for milestone %d of project %d was rejected: %s", sub.MilestoneNum, p.ID, feedback),
			ProjectID: p.ID,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyAll(ctx, events)
	s.logger.Info("Submission rejected", zap.Int64("submission_id", submissionID))
	return nil
}

// ProjectBudget returns the sum of gross milestone amounts, read through
// the redis cache when one is configured. Display/filtering only; never
// confuse it with the ledger's net bookkeeping.
func (s *Service) ProjectBudget(ctx context.Context, projectID int64) (int64, error) {
	key := fmt.Sprintf("project:budget:%d", projectID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			if v, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				return v, nil
			}
		}
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	budget := p.Budget()

	if s.cache != nil {
		// Gross amounts are immutable after creation, so a plain TTL is
		// enough; a failed cache write is not an error.
		if err := s.cache.Set(ctx, key, strconv.FormatInt(budget, 10), budgetCacheTTL).Err(); err != nil {
			s.logger.Warn("Failed to cache project budget", zap.Int64("project_id", projectID), zap.Error(err))
		}
	}
	return budget, nil
}

// ListProjects returns the projects a principal participates in, for the
// controller layer's listings.
func (s *Service) ListProjects(ctx context.Context, principal string) ([]*model.Project, error) {
	return s.store.ListProjectsByParticipant(ctx, principal)
}

func (s *Service) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	return s.store.GetSubmission(ctx, id)
}

func (s *Service) notifyAll(ctx context.Context, events []model.Notification) {
	if s.notifier == nil {
		return
	}
	for _, n := range events {
		s.notifier.Notify(ctx, n)
	}
}

func completionNotification(p *model.Project, recipient string) model.Notification {
	return model.Notification{
		UserID:    recipient,
		Type:      model.NotifyProjectCompleted,
		Title:     "Project completed",
		Message:   fmt.Sprintf("All milestones of project %d are approved and paid", p.ID),
		ProjectID: p.ID,
	}
}
