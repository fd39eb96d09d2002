package repository

import (
	"context"
	"time"

	"escrow-service/internal/model"
	"escrow-service/pkg/metrics"
	"escrow-service/pkg/outbox"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NotificationStore persists notifications. Persist writes the row and a
// notification.created outbox event in one transaction, so broker
// delivery is retried by the outbox dispatcher rather than lost.
type NotificationStore struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewNotificationStore(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *NotificationStore {
	return &NotificationStore{db: db, outbox: outboxRepo, logger: logger}
}

// Persist implements notify.Sink.
func (s *NotificationStore) Persist(ctx context.Context, n *model.Notification) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "notifications", time.Since(start)) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
        INSERT INTO notifications (user_principal, type, title, message, project_id, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, false, $6)
        RETURNING id
    `, n.UserID, n.Type, n.Title, n.Message, n.ProjectID, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		s.logger.Error("Failed to insert notification", zap.Error(err))
		return err
	}

	if err := outbox.InsertEventInTx(ctx, tx, s.outbox, "notification", &n.ID, "notification.created", n); err != nil {
		s.logger.Error("Failed to insert notification outbox event",
			zap.Int64("notification_id", n.ID),
			zap.Error(err),
		)
		return err
	}

	return tx.Commit(ctx)
}

// ListByUser returns the newest notifications for a principal.
func (s *NotificationStore) ListByUser(ctx context.Context, principal string, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
        SELECT id, user_principal, type, title, message, COALESCE(project_id, 0), is_read, created_at
        FROM notifications
        WHERE user_principal = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, principal, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ProjectID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead marks a notification as read. Scoped to the owner so one user
// cannot touch another's rows.
func (s *NotificationStore) MarkRead(ctx context.Context, id int64, principal string) error {
	_, err := s.db.Exec(ctx, `
        UPDATE notifications SET is_read = true WHERE id = $1 AND user_principal = $2
    `, id, principal)
	return err
}

// MarkDelivered stamps the broker delivery time, called by the MQ
// consumer after a notification.created event is processed.
func (s *NotificationStore) MarkDelivered(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `
        UPDATE notifications SET delivered_at = NOW() WHERE id = $1 AND delivered_at IS NULL
    `, id)
	return err
}
