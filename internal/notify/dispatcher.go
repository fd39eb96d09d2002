package notify

import (
	"context"
	"time"

	"escrow-service/internal/model"
	"escrow-service/pkg/metrics"

	"go.uber.org/zap"
)

// Sink persists a notification and enqueues its delivery event. The pgx
// implementation writes the row and an outbox event in one transaction so
// delivery to the broker is retryable.
type Sink interface {
	Persist(ctx context.Context, n *model.Notification) error
}

// Dispatcher is the fire-and-forget notification side-effect dispatcher.
// Notify never blocks the calling transition: events go through a buffered
// channel and a full buffer drops the event with a log line and a metric,
// never an error.
type Dispatcher struct {
	sink   Sink
	queue  chan model.Notification
	done   chan struct{}
	logger *zap.Logger
}

func NewDispatcher(sink Sink, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		sink:   sink,
		queue:  make(chan model.Notification, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Notify enqueues a notification. Implements escrow.Notifier. The
// creation time is stamped here so every persisted row and outbox
// payload carries it regardless of which transition built the event.
func (d *Dispatcher) Notify(_ context.Context, n model.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	select {
	case d.queue <- n:
		metrics.IncrementNotification("enqueued")
	default:
		metrics.IncrementNotification("dropped")
		d.logger.Warn("Notification buffer full, dropping event",
			zap.String("type", n.Type),
			zap.String("user_id", n.UserID),
			zap.Int64("project_id", n.ProjectID),
		)
	}
}

// Run drains the queue until ctx is cancelled. Call in a goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	d.logger.Info("Notification dispatcher started", zap.Int("buffer", cap(d.queue)))
	for {
		select {
		case <-ctx.Done():
			// Flush whatever is already buffered before exiting.
			for {
				select {
				case n := <-d.queue:
					d.persist(n)
				default:
					d.logger.Info("Notification dispatcher stopped")
					return
				}
			}
		case n := <-d.queue:
			d.persist(n)
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) persist(n model.Notification) {
	// Persistence runs on its own context: the triggering request may be
	// long gone.
	if err := d.sink.Persist(context.Background(), &n); err != nil {
		metrics.IncrementNotification("failed")
		d.logger.Error("Failed to persist notification",
			zap.String("type", n.Type),
			zap.String("user_id", n.UserID),
			zap.Int64("project_id", n.ProjectID),
			zap.Error(err),
		)
		return
	}
	metrics.IncrementNotification("persisted")
}
