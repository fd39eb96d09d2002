package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"escrow-service/internal/model"
	"escrow-service/internal/repository"
	"escrow-service/pkg/metrics"
	"escrow-service/pkg/util"

	"go.uber.org/zap"
)

const maxDeliveryRetries = 5

// NotificationCreatedHandler consumes notification.created events from
// the outbox and stamps delivery on the notification row. Deliveries are
// at-least-once, so a redis deduper filters replays and a retry counter
// drops poison messages after maxDeliveryRetries attempts.
type NotificationCreatedHandler struct {
	store   *repository.NotificationStore
	deduper *util.Deduper
	retries *util.RetryCounter
	logger  *zap.Logger
}

func NewNotificationCreatedHandler(
	store *repository.NotificationStore,
	deduper *util.Deduper,
	retries *util.RetryCounter,
	logger *zap.Logger,
) *NotificationCreatedHandler {
	return &NotificationCreatedHandler{
		store:   store,
		deduper: deduper,
		retries: retries,
		logger:  logger,
	}
}

// Handle implements mq.MessageHandler for the notification.created key.
func (h *NotificationCreatedHandler) Handle(ctx context.Context, data json.RawMessage) error {
	start := time.Now()
	defer func() { metrics.RecordMQConsumeLatency("notification.created", "notification-delivery", time.Since(start)) }()

	var n model.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		// Malformed payloads never become parseable, drop without requeue.
		h.logger.Error("Dropping malformed notification event", zap.Error(err))
		return nil
	}
	if n.ID == 0 {
		h.logger.Error("Dropping notification event without id",
			zap.String("type", n.Type),
			zap.String("user_id", n.UserID),
		)
		return nil
	}

	key := fmt.Sprintf("notification.created:%d", n.ID)
	if h.deduper.IsDuplicate(ctx, key) {
		h.logger.Debug("Skipping duplicate notification event", zap.Int64("notification_id", n.ID))
		return nil
	}

	if err := h.store.MarkDelivered(ctx, n.ID); err != nil {
		count, cerr := h.retries.IncrementAndGet(ctx, key)
		if cerr == nil && count >= maxDeliveryRetries {
			h.logger.Error("Giving up on notification event after retries",
				zap.Int64("notification_id", n.ID),
				zap.Int64("attempts", count),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	h.retries.Reset(ctx, key)
	h.logger.Debug("Notification delivered",
		zap.Int64("notification_id", n.ID),
		zap.String("type", n.Type),
		zap.String("user_id", n.UserID),
	)
	return nil
}
