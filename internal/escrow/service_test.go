package escrow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
	"escrow-service/internal/repository"

	"go.uber.org/zap"
)

const (
	clientPrincipal     = "SP2CLIENT000000000000000000000000000000001"
	freelancerPrincipal = "SP3FREELANCER00000000000000000000000000001"
	ownerPrincipal      = "SP1OWNER0000000000000000000000000000000001"
	adminPrincipal      = "SP1ADMIN0000000000000000000000000000000001"
)

// recorder collects notifications for assertions.
type recorder struct {
	mu     sync.Mutex
	events []model.Notification
}

func (r *recorder) Notify(_ context.Context, n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recorder) byType(typ string) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.events {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*escrow.Service, *repository.MemoryStore, *recorder, *clock) {
	t.Helper()
	store := repository.NewMemoryStore()
	store.SeedConfig(model.PlatformConfig{FeeBps: 250, Owner: ownerPrincipal})
	store.SeedUser(model.User{Principal: adminPrincipal, IsAdmin: true})
	store.SeedUser(model.User{Principal: clientPrincipal})
	store.SeedUser(model.User{Principal: freelancerPrincipal})

	rec := &recorder{}
	clk := newClock()
	svc := escrow.NewService(store, rec, escrow.DefaultWindows(), zap.NewNop()).WithClock(clk.Now)
	return svc, store, rec, clk
}

func createProject(t *testing.T, svc *escrow.Service, amounts ...int64) *model.Project {
	t.Helper()
	p, err := svc.CreateProject(context.Background(), escrow.CreateProjectParams{
		Client:     clientPrincipal,
		Freelancer: freelancerPrincipal,
		Amounts:    amounts,
		TokenType:  model.TokenSTX,
		EscrowTxID: "0xescrow",
	})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	return p
}

func TestServiceExposesConfiguredWindows(t *testing.T) {
	store := repository.NewMemoryStore()
	w := escrow.Windows{Emergency: 48 * time.Hour, Abandonment: 336 * time.Hour}
	svc := escrow.NewService(store, nil, w, zap.NewNop())

	if got := svc.Windows(); got != w {
		t.Fatalf("Windows() = %+v, want %+v", got, w)
	}
}

func wantKind(t *testing.T, err error, kind escrow.Kind) {
	t.Helper()
	if !escrow.IsKind(err, kind) {
		t.Fatalf("got error %v, want kind %s", err, kind)
	}
}
