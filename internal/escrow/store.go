package escrow

import (
	"context"

	"escrow-service/internal/model"
)

// Store is the transactional record store behind the escrow engine. The
// pgx implementation lives in internal/repository; an in-memory one backs
// the tests.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProject(ctx context.Context, id int64) (*model.Project, error)
	GetDispute(ctx context.Context, id int64) (*model.Dispute, error)
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	GetConfig(ctx context.Context) (*model.PlatformConfig, error)
	ListProjectsByParticipant(ctx context.Context, principal string) ([]*model.Project, error)
}

// Tx is a transactional view. ProjectForUpdate takes the per-project row
// lock that serializes every mutation touching that project; lock waits
// are bounded and surface as KindContention. Dispute and submission rows
// are only ever mutated while their project's lock is held, so plain reads
// of them inside a transaction are stable.
type Tx interface {
	InsertProject(ctx context.Context, p *model.Project) (int64, error)
	ProjectForUpdate(ctx context.Context, id int64) (*model.Project, error)
	UpdateProject(ctx context.Context, p *model.Project) error

	InsertDispute(ctx context.Context, d *model.Dispute) (int64, error)
	GetDispute(ctx context.Context, id int64) (*model.Dispute, error)
	// OpenDispute returns the open dispute on (project, milestone), or nil.
	OpenDispute(ctx context.Context, projectID int64, milestoneNum int) (*model.Dispute, error)
	OpenDisputes(ctx context.Context, projectID int64) ([]*model.Dispute, error)
	UpdateDispute(ctx context.Context, d *model.Dispute) error
	DeleteDisputes(ctx context.Context, projectID int64, milestoneNum int) error

	InsertSubmission(ctx context.Context, s *model.Submission) (int64, error)
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	// PendingSubmission returns the submitted-status record for the
	// milestone, or nil.
	PendingSubmission(ctx context.Context, projectID int64, milestoneNum int) (*model.Submission, error)
	UpdateSubmission(ctx context.Context, s *model.Submission) error
	CountApprovedSubmissions(ctx context.Context, projectID int64) (int, error)

	// GetUser returns nil (not an error) for an unknown principal.
	GetUser(ctx context.Context, principal string) (*model.User, error)
	AddEarnings(ctx context.Context, principal string, amount int64) error
	SetUserSuspended(ctx context.Context, principal string, suspended bool) error

	Config(ctx context.Context) (*model.PlatformConfig, error)
	ConfigForUpdate(ctx context.Context) (*model.PlatformConfig, error)
	UpdateConfig(ctx context.Context, cfg *model.PlatformConfig) error
}

// Notifier is the fire-and-forget notification sink. Implementations must
// never block the caller on delivery and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}
