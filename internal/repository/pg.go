package repository

import (
	"context"
	"errors"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
	"escrow-service/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// lockTimeout bounds every row-lock wait inside a transaction; expiry
// surfaces as a retryable Contention error instead of a hang.
const lockTimeout = "3s"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore is the PostgreSQL implementation of escrow.Store.
type PGStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPGStore(db *pgxpool.Pool, logger *zap.Logger) *PGStore {
	return &PGStore{db: db, logger: logger}
}

func (s *PGStore) InTx(ctx context.Context, fn func(ctx context.Context, tx escrow.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '"+lockTimeout+"'"); err != nil {
		return err
	}

	if err := fn(ctx, &pgTx{q: tx, logger: s.logger}); err != nil {
		return mapLockError(err)
	}
	return tx.Commit(ctx)
}

// mapLockError converts a lock_timeout expiry (SQLSTATE 55P03) into the
// engine's retryable Contention kind.
func mapLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return escrow.Errf(escrow.KindContention, "repository", "row lock wait exceeded %s", lockTimeout)
	}
	return err
}

func (s *PGStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return getProject(ctx, s.db, id, false)
}

func (s *PGStore) GetDispute(ctx context.Context, id int64) (*model.Dispute, error) {
	return getDispute(ctx, s.db, id)
}

func (s *PGStore) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	return getSubmission(ctx, s.db, id)
}

func (s *PGStore) GetConfig(ctx context.Context) (*model.PlatformConfig, error) {
	return getConfig(ctx, s.db, false)
}

func (s *PGStore) GetUser(ctx context.Context, principal string) (*model.User, error) {
	return getUser(ctx, s.db, principal)
}

// EnsureUser creates the user row for a principal on first login.
func (s *PGStore) EnsureUser(ctx context.Context, principal string) (*model.User, error) {
	_, err := s.db.Exec(ctx, `
        INSERT INTO users (principal) VALUES ($1)
        ON CONFLICT (principal) DO NOTHING
    `, principal)
	if err != nil {
		return nil, err
	}
	return getUser(ctx, s.db, principal)
}

func (s *PGStore) ListProjectsByParticipant(ctx context.Context, principal string) ([]*model.Project, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("list", "projects", time.Since(start)) }()

	rows, err := s.db.Query(ctx, `
        SELECT id FROM projects
        WHERE client = $1 OR freelancer = $1
        ORDER BY created_at DESC
    `, principal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var projects []*model.Project
	for _, id := range ids {
		p, err := getProject(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// pgTx implements escrow.Tx on top of a pgx transaction.
type pgTx struct {
	q      pgx.Tx
	logger *zap.Logger
}

func (t *pgTx) InsertProject(ctx context.Context, p *model.Project) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "projects", time.Since(start)) }()

	var id int64
	err := t.q.QueryRow(ctx, `
        INSERT INTO projects (client, freelancer, token_type, status, num_milestones, fee_bps,
                              total_fee, refunded, escrow_tx_id, on_chain_id,
                              created_at, updated_at, last_activity_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `,
		p.Client, p.Freelancer, p.TokenType, p.Status, p.NumMilestones, p.FeeBps,
		p.TotalFee, p.Refunded, p.EscrowTxID, p.OnChainID,
		p.CreatedAt, p.UpdatedAt, p.LastActivityAt,
	).Scan(&id)
	if err != nil {
		t.logger.Error("Failed to insert project", zap.Error(err))
		return 0, err
	}

	for _, m := range p.Milestones {
		_, err := t.q.Exec(ctx, `
            INSERT INTO milestones (project_id, num, amount, net_amount, complete, completed_at,
                                    released, release_tx_id)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        `, id, m.Num, m.Amount, m.NetAmount, m.Complete, m.CompletedAt, m.Released, m.ReleaseTxID)
		if err != nil {
			t.logger.Error("Failed to insert milestone",
				zap.Int64("project_id", id),
				zap.Int("num", m.Num),
				zap.Error(err),
			)
			return 0, err
		}
	}
	return id, nil
}

func (t *pgTx) ProjectForUpdate(ctx context.Context, id int64) (*model.Project, error) {
	return getProject(ctx, t.q, id, true)
}

func (t *pgTx) UpdateProject(ctx context.Context, p *model.Project) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "projects", time.Since(start)) }()

	_, err := t.q.Exec(ctx, `
        UPDATE projects
        SET status = $1, refunded = $2, updated_at = $3, last_activity_at = $4
        WHERE id = $5
    `, p.Status, p.Refunded, p.UpdatedAt, p.LastActivityAt, p.ID)
	if err != nil {
		t.logger.Error("Failed to update project", zap.Int64("project_id", p.ID), zap.Error(err))
		return err
	}

	for _, m := range p.Milestones {
		_, err := t.q.Exec(ctx, `
            UPDATE milestones
            SET complete = $1, completed_at = $2, released = $3, release_tx_id = $4
            WHERE project_id = $5 AND num = $6
        `, m.Complete, m.CompletedAt, m.Released, m.ReleaseTxID, p.ID, m.Num)
		if err != nil {
			t.logger.Error("Failed to update milestone",
				zap.Int64("project_id", p.ID),
				zap.Int("num", m.Num),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertDispute(ctx context.Context, d *model.Dispute) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "disputes", time.Since(start)) }()

	var id int64
	err := t.q.QueryRow(ctx, `
        INSERT INTO disputes (project_id, milestone_num, filed_by, reason, evidence, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `, d.ProjectID, d.MilestoneNum, d.FiledBy, d.Reason, d.Evidence, d.Status, d.CreatedAt).Scan(&id)
	if err != nil {
		t.logger.Error("Failed to insert dispute", zap.Error(err))
		return 0, err
	}
	return id, nil
}

func (t *pgTx) GetDispute(ctx context.Context, id int64) (*model.Dispute, error) {
	return getDispute(ctx, t.q, id)
}

func (t *pgTx) OpenDispute(ctx context.Context, projectID int64, milestoneNum int) (*model.Dispute, error) {
	rows, err := t.q.Query(ctx, disputeSelect+`
        WHERE project_id = $1 AND milestone_num = $2 AND status = 'open'
    `, projectID, milestoneNum)
	if err != nil {
		return nil, err
	}
	disputes, err := scanDisputes(rows)
	if err != nil {
		return nil, err
	}
	if len(disputes) == 0 {
		return nil, nil
	}
	return disputes[0], nil
}

func (t *pgTx) OpenDisputes(ctx context.Context, projectID int64) ([]*model.Dispute, error) {
	rows, err := t.q.Query(ctx, disputeSelect+`
        WHERE project_id = $1 AND status = 'open'
        ORDER BY id
    `, projectID)
	if err != nil {
		return nil, err
	}
	return scanDisputes(rows)
}

func (t *pgTx) UpdateDispute(ctx context.Context, d *model.Dispute) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("update", "disputes", time.Since(start)) }()

	_, err := t.q.Exec(ctx, `
        UPDATE disputes
        SET status = $1, resolution = $2, resolved_by = $3, resolution_tx_id = $4,
            favor_freelancer = $5, resolved_at = $6
        WHERE id = $7
    `, d.Status, d.Resolution, d.ResolvedBy, d.ResolutionTxID, d.FavorFreelancer, d.ResolvedAt, d.ID)
	if err != nil {
		t.logger.Error("Failed to update dispute", zap.Int64("dispute_id", d.ID), zap.Error(err))
	}
	return err
}

func (t *pgTx) DeleteDisputes(ctx context.Context, projectID int64, milestoneNum int) error {
	_, err := t.q.Exec(ctx, `
        DELETE FROM disputes WHERE project_id = $1 AND milestone_num = $2
    `, projectID, milestoneNum)
	return err
}

func (t *pgTx) InsertSubmission(ctx context.Context, s *model.Submission) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "milestone_submissions", time.Since(start)) }()

	var id int64
	err := t.q.QueryRow(ctx, `
        INSERT INTO milestone_submissions (project_id, milestone_num, freelancer, deliverable,
                                           description, completion_tx_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `, s.ProjectID, s.MilestoneNum, s.Freelancer, s.Deliverable,
		s.Description, s.CompletionTxID, s.Status, s.CreatedAt).Scan(&id)
	if err != nil {
		t.logger.Error("Failed to insert submission", zap.Error(err))
		return 0, err
	}
	return id, nil
}

func (t *pgTx) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	return getSubmission(ctx, t.q, id)
}

func (t *pgTx) PendingSubmission(ctx context.Context, projectID int64, milestoneNum int) (*model.Submission, error) {
	rows, err := t.q.Query(ctx, submissionSelect+`
        WHERE project_id = $1 AND milestone_num = $2 AND status = 'submitted'
    `, projectID, milestoneNum)
	if err != nil {
		return nil, err
	}
	subs, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return subs[0], nil
}

func (t *pgTx) UpdateSubmission(ctx context.Context, s *model.Submission) error {
	_, err := t.q.Exec(ctx, `
        UPDATE milestone_submissions
        SET status = $1, release_tx_id = $2, reviewed_at = $3
        WHERE id = $4
    `, s.Status, s.ReleaseTxID, s.ReviewedAt, s.ID)
	if err != nil {
		t.logger.Error("Failed to update submission", zap.Int64("submission_id", s.ID), zap.Error(err))
	}
	return err
}

func (t *pgTx) CountApprovedSubmissions(ctx context.Context, projectID int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx, `
        SELECT COUNT(DISTINCT milestone_num) FROM milestone_submissions
        WHERE project_id = $1 AND status = 'approved'
    `, projectID).Scan(&count)
	return count, err
}

func (t *pgTx) GetUser(ctx context.Context, principal string) (*model.User, error) {
	return getUser(ctx, t.q, principal)
}

func (t *pgTx) AddEarnings(ctx context.Context, principal string, amount int64) error {
	_, err := t.q.Exec(ctx, `
        INSERT INTO users (principal, total_earned) VALUES ($1, $2)
        ON CONFLICT (principal) DO UPDATE SET total_earned = users.total_earned + $2
    `, principal, amount)
	return err
}

func (t *pgTx) SetUserSuspended(ctx context.Context, principal string, suspended bool) error {
	tag, err := t.q.Exec(ctx, `
        UPDATE users SET suspended = $1 WHERE principal = $2
    `, suspended, principal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return escrow.Errf(escrow.KindNotFound, "repository.SetUserSuspended", "unknown principal %s", principal)
	}
	return nil
}

func (t *pgTx) Config(ctx context.Context) (*model.PlatformConfig, error) {
	return getConfig(ctx, t.q, false)
}

func (t *pgTx) ConfigForUpdate(ctx context.Context) (*model.PlatformConfig, error) {
	return getConfig(ctx, t.q, true)
}

func (t *pgTx) UpdateConfig(ctx context.Context, cfg *model.PlatformConfig) error {
	_, err := t.q.Exec(ctx, `
        UPDATE platform_config
        SET fee_bps = $1, paused = $2, treasury = $3, owner_principal = $4,
            proposed_owner = $5, updated_at = $6
        WHERE id = 1
    `, cfg.FeeBps, cfg.Paused, cfg.Treasury, cfg.Owner, cfg.ProposedOwner, cfg.UpdatedAt)
	if err != nil {
		t.logger.Error("Failed to update platform config", zap.Error(err))
	}
	return err
}

// Shared scan helpers.

func getProject(ctx context.Context, q querier, id int64, forUpdate bool) (*model.Project, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("get", "projects", time.Since(start)) }()

	query := `
        SELECT id, client, freelancer, token_type, status, num_milestones, fee_bps,
               total_fee, refunded, escrow_tx_id, on_chain_id,
               created_at, updated_at, last_activity_at
        FROM projects
        WHERE id = $1
    `
	if forUpdate {
		query += " FOR UPDATE"
	}

	var p model.Project
	err := q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Client, &p.Freelancer, &p.TokenType, &p.Status, &p.NumMilestones, &p.FeeBps,
		&p.TotalFee, &p.Refunded, &p.EscrowTxID, &p.OnChainID,
		&p.CreatedAt, &p.UpdatedAt, &p.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.Errf(escrow.KindNotFound, "repository.GetProject", "project %d not found", id)
		}
		return nil, mapLockError(err)
	}

	rows, err := q.Query(ctx, `
        SELECT num, amount, net_amount, complete, completed_at, released, release_tx_id
        FROM milestones
        WHERE project_id = $1
        ORDER BY num
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.Num, &m.Amount, &m.NetAmount, &m.Complete, &m.CompletedAt, &m.Released, &m.ReleaseTxID); err != nil {
			return nil, err
		}
		p.Milestones = append(p.Milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

const disputeSelect = `
        SELECT id, project_id, milestone_num, filed_by, reason, evidence, status,
               resolution, resolved_by, resolution_tx_id, favor_freelancer, created_at, resolved_at
        FROM disputes
`

func getDispute(ctx context.Context, q querier, id int64) (*model.Dispute, error) {
	rows, err := q.Query(ctx, disputeSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	disputes, err := scanDisputes(rows)
	if err != nil {
		return nil, err
	}
	if len(disputes) == 0 {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetDispute", "dispute %d not found", id)
	}
	return disputes[0], nil
}

func scanDisputes(rows pgx.Rows) ([]*model.Dispute, error) {
	defer rows.Close()

	var disputes []*model.Dispute
	for rows.Next() {
		var d model.Dispute
		if err := rows.Scan(
			&d.ID, &d.ProjectID, &d.MilestoneNum, &d.FiledBy, &d.Reason, &d.Evidence, &d.Status,
			&d.Resolution, &d.ResolvedBy, &d.ResolutionTxID, &d.FavorFreelancer, &d.CreatedAt, &d.ResolvedAt,
		); err != nil {
			return nil, err
		}
		disputes = append(disputes, &d)
	}
	return disputes, rows.Err()
}

const submissionSelect = `
        SELECT id, project_id, milestone_num, freelancer, deliverable, description,
               completion_tx_id, status, release_tx_id, created_at, reviewed_at
        FROM milestone_submissions
`

func getSubmission(ctx context.Context, q querier, id int64) (*model.Submission, error) {
	rows, err := q.Query(ctx, submissionSelect+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	subs, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetSubmission", "submission %d not found", id)
	}
	return subs[0], nil
}

func scanSubmissions(rows pgx.Rows) ([]*model.Submission, error) {
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(
			&s.ID, &s.ProjectID, &s.MilestoneNum, &s.Freelancer, &s.Deliverable, &s.Description,
			&s.CompletionTxID, &s.Status, &s.ReleaseTxID, &s.CreatedAt, &s.ReviewedAt,
		); err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

func getUser(ctx context.Context, q querier, principal string) (*model.User, error) {
	var u model.User
	err := q.QueryRow(ctx, `
        SELECT principal, display_name, is_admin, suspended, password_hash, total_earned, created_at
        FROM users
        WHERE principal = $1
    `, principal).Scan(
		&u.Principal, &u.DisplayName, &u.IsAdmin, &u.Suspended, &u.PasswordHash, &u.TotalEarned, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func getConfig(ctx context.Context, q querier, forUpdate bool) (*model.PlatformConfig, error) {
	query := `
        SELECT fee_bps, paused, treasury, owner_principal, proposed_owner, updated_at
        FROM platform_config
        WHERE id = 1
    `
	if forUpdate {
		query += " FOR UPDATE"
	}

	var cfg model.PlatformConfig
	err := q.QueryRow(ctx, query).Scan(
		&cfg.FeeBps, &cfg.Paused, &cfg.Treasury, &cfg.Owner, &cfg.ProposedOwner, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.Errf(escrow.KindNotFound, "repository.GetConfig", "platform config not initialized")
		}
		return nil, mapLockError(err)
	}
	return &cfg, nil
}
