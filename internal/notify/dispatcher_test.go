package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"escrow-service/internal/model"
	"escrow-service/internal/notify"

	"go.uber.org/zap"
)

type fakeSink struct {
	mu        sync.Mutex
	persisted []model.Notification
	fail      bool
}

func (s *fakeSink) Persist(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.persisted = append(s.persisted, *n)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted)
}

func TestDispatcherPersistsQueuedEvents(t *testing.T) {
	sink := &fakeSink{}
	d := notify.NewDispatcher(sink, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	for i := 0; i < 3; i++ {
		d.Notify(ctx, model.Notification{UserID: "SP2CLIENT", Type: model.NotifyDisputeFiled})
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	d.Wait()

	if sink.count() != 3 {
		t.Fatalf("persisted %d notifications, want 3", sink.count())
	}
}

func TestDispatcherStampsCreatedAt(t *testing.T) {
	sink := &fakeSink{}
	d := notify.NewDispatcher(sink, 8, zap.NewNop())

	before := time.Now()
	kept := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.Notify(context.Background(), model.Notification{UserID: "SP2CLIENT", Type: model.NotifyMilestoneCompleted})
	d.Notify(context.Background(), model.Notification{UserID: "SP2CLIENT", Type: model.NotifyMilestoneReleased, CreatedAt: kept})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go d.Run(ctx)
	d.Wait()

	if sink.count() != 2 {
		t.Fatalf("persisted %d notifications, want 2", sink.count())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.persisted[0].CreatedAt.IsZero() {
		t.Fatal("notification reached the sink with a zero creation time")
	}
	if sink.persisted[0].CreatedAt.Before(before) {
		t.Fatalf("stamped creation time %v predates enqueue", sink.persisted[0].CreatedAt)
	}
	if !sink.persisted[1].CreatedAt.Equal(kept) {
		t.Fatalf("caller-set creation time overwritten: got %v, want %v", sink.persisted[1].CreatedAt, kept)
	}
}

func TestDispatcherFlushesBufferOnShutdown(t *testing.T) {
	sink := &fakeSink{}
	d := notify.NewDispatcher(sink, 8, zap.NewNop())

	// Enqueue before Run so everything sits in the buffer.
	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), model.Notification{UserID: "SP2CLIENT", Type: model.NotifyMilestoneReleased})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go d.Run(ctx)
	d.Wait()

	if sink.count() != 5 {
		t.Fatalf("persisted %d notifications on shutdown, want 5", sink.count())
	}
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	sink := &fakeSink{}
	d := notify.NewDispatcher(sink, 1, zap.NewNop())

	// Without a running drain loop the second event must be dropped, not
	// block the caller.
	done := make(chan struct{})
	go func() {
		d.Notify(context.Background(), model.Notification{Type: model.NotifyDisputeFiled})
		d.Notify(context.Background(), model.Notification{Type: model.NotifyDisputeFiled})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
}

func TestDispatcherSurvivesSinkFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	d := notify.NewDispatcher(sink, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	d.Notify(ctx, model.Notification{Type: model.NotifyProjectRefunded})
	time.Sleep(50 * time.Millisecond)

	// Still accepting and persisting after the sink recovers.
	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	d.Notify(ctx, model.Notification{Type: model.NotifyProjectRefunded})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	d.Wait()

	if sink.count() != 1 {
		t.Fatalf("persisted %d notifications after recovery, want 1", sink.count())
	}
}
