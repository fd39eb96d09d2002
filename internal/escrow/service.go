package escrow

import (
	"context"
	"time"

	"escrow-service/internal/model"
	"escrow-service/pkg/metrics"

	"go.uber.org/zap"
)

// Service is the escrow lifecycle engine: project/milestone state, dispute
// adjudication, timeout recovery and admin overrides. Every mutating
// operation is a guarded transition run under the project's row lock.
type Service struct {
	store    Store
	notifier Notifier
	windows  Windows
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, windows Windows, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		windows:  windows,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Windows exposes the configured recovery windows.
func (s *Service) Windows() Windows {
	return s.windows
}

func (s *Service) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) GetDispute(ctx context.Context, id int64) (*model.Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

func (s *Service) GetConfig(ctx context.Context) (*model.PlatformConfig, error) {
	return s.store.GetConfig(ctx)
}

// projectForUpdate loads the locked project row and normalizes the legacy
// "disputed" status, which is never allowed to persist.
func (s *Service) projectForUpdate(ctx context.Context, tx Tx, id int64) (*model.Project, error) {
	p, err := tx.ProjectForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.ProjectDisputed {
		p.Status = model.ProjectActive
	}
	return p, nil
}

// requireUnpaused gates user-initiated mutations. Admin override and
// configuration paths stay available while paused, otherwise a paused
// contract could never be unpaused or adjudicated.
func (s *Service) requireUnpaused(ctx context.Context, tx Tx, op string) error {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return Errf(KindSystemPaused, op, "contract is paused")
	}
	return nil
}

// requireActor rejects suspended principals. Unknown principals pass:
// user rows are created lazily at login.
func (s *Service) requireActor(ctx context.Context, tx Tx, principal, op string) error {
	u, err := tx.GetUser(ctx, principal)
	if err != nil {
		return err
	}
	if u != nil && u.Suspended {
		return Errf(KindNotAuthorized, op, "principal %s is suspended", principal)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, tx Tx, principal, op string) error {
	u, err := tx.GetUser(ctx, principal)
	if err != nil {
		return err
	}
	if u == nil || !u.IsAdmin || u.Suspended {
		return Errf(KindNotAuthorized, op, "principal %s is not an admin", principal)
	}
	return nil
}

// notifyAll hands notifications to the dispatcher after the transaction
// committed. Best-effort by contract; the dispatcher owns failure handling.
func (s *Service) notifyAll(ctx context.Context, events []model.Notification) {
	if s.notifier == nil {
		return
	}
	for _, n := range events {
		s.notifier.Notify(ctx, n)
	}
}

func (s *Service) record(op string, err error) {
	result := "ok"
	if err != nil {
		if kind := KindOf(err); kind != "" {
			result = string(kind)
		} else {
			result = "error"
		}
	}
	metrics.IncrementEscrowTransition(op, result)
}
