package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
	"escrow-service/internal/repository"
	"escrow-service/internal/workflow"

	"go.uber.org/zap"
)

const (
	client     = "SP2CLIENT000000000000000000000000000000001"
	freelancer = "SP3FREELANCER00000000000000000000000000001"
)

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

// fixture wires the workflow service together with the ledger service it
// mirrors, both on the same store.
type fixture struct {
	workflow *workflow.Service
	escrow   *escrow.Service
	store    *repository.MemoryStore
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.SeedConfig(model.PlatformConfig{FeeBps: 250, Owner: "SP1OWNER"})
	store.SeedUser(model.User{Principal: client})
	store.SeedUser(model.User{Principal: freelancer})

	rec := &recorder{}
	clk := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clk }
	return &fixture{
		workflow: workflow.NewService(store, rec, nil, zap.NewNop()).WithClock(now),
		escrow:   escrow.NewService(store, rec, escrow.DefaultWindows(), zap.NewNop()).WithClock(now),
		store:    store,
		rec:      rec,
	}
}

func (f *fixture) createProject(t *testing.T, amounts ...int64) *model.Project {
	t.Helper()
	p, err := f.escrow.CreateProject(context.Background(), escrow.CreateProjectParams{
		Client:     client,
		Freelancer: freelancer,
		Amounts:    amounts,
		TokenType:  model.TokenSTX,
	})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	return p
}

func (f *fixture) submit(t *testing.T, projectID int64, num int) *model.Submission {
	t.Helper()
	sub, err := f.workflow.SubmitMilestone(context.Background(), freelancer, projectID, num,
		"ipfs://deliverable", "final build", "0xcomplete")
	if err != nil {
		t.Fatalf("SubmitMilestone failed: %v", err)
	}
	return sub
}

func wantKind(t *testing.T, err error, kind escrow.Kind) {
	t.Helper()
	if !escrow.IsKind(err, kind) {
		t.Fatalf("got error %v, want kind %s", err, kind)
	}
}

func TestSubmitMilestone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, 1000)

	// Deliverable is mandatory.
	_, err := f.workflow.SubmitMilestone(ctx, freelancer, p.ID, 1, "", "", "")
	wantKind(t, err, escrow.KindInvalidArgument)

	// Freelancer only.
	_, err = f.workflow.SubmitMilestone(ctx, client, p.ID, 1, "ipfs://x", "", "")
	wantKind(t, err, escrow.KindNotAuthorized)

	sub := f.submit(t, p.ID, 1)
	if sub.Status != model.SubmissionSubmitted {
		t.Fatalf("status = %s, want submitted", sub.Status)
	}

	// One pending submission per milestone.
	_, err = f.workflow.SubmitMilestone(ctx, freelancer, p.ID, 1, "ipfs://y", "", "")
	wantKind(t, err, escrow.KindAlreadyExists)

	// The client hears about it.
	if got := f.rec.byType(model.NotifyMilestoneSubmitted); len(got) != 1 || got[0].UserID != client {
		t.Fatalf("submit notifications = %+v, want one for the client", got)
	}
}

func TestApproveSubmissionReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, 1000, 1000)

	if err := f.escrow.CompleteMilestone(ctx, freelancer, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}
	sub := f.submit(t, p.ID, 1)

	// Client only.
	_, err := f.workflow.ApproveSubmission(ctx, freelancer, sub.ID, "0xrel")
	wantKind(t, err, escrow.KindNotAuthorized)

	net, err := f.workflow.ApproveSubmission(ctx, client, sub.ID, "0xrel")
	if err != nil {
		t.Fatalf("ApproveSubmission failed: %v", err)
	}
	if net != 975 {
		t.Fatalf("net = %d, want 975", net)
	}

	// The ledger mirror moved with it.
	gotP, err := f.store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	m := gotP.MilestoneAt(1)
	if !m.Released || m.ReleaseTxID != "0xrel" {
		t.Fatalf("milestone = %+v, want released", m)
	}

	gotSub, err := f.store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if gotSub.Status != model.SubmissionApproved || gotSub.ReviewedAt == nil {
		t.Fatalf("submission = %+v, want approved", gotSub)
	}

	// Earnings accrued exactly once.
	u, err := f.store.GetUser(ctx, freelancer)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.TotalEarned != 975 {
		t.Fatalf("total_earned = %d, want 975", u.TotalEarned)
	}

	// A second approval attempt cannot double-pay.
	_, err = f.workflow.ApproveSubmission(ctx, client, sub.ID, "0xrel")
	wantKind(t, err, escrow.KindInvalidState)
	u, _ = f.store.GetUser(ctx, freelancer)
	if u.TotalEarned != 975 {
		t.Fatalf("total_earned after replay = %d, want 975", u.TotalEarned)
	}
}

func TestDirectReleaseDoesNotAccrueWithoutSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, 1000)

	if err := f.escrow.CompleteMilestone(ctx, freelancer, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}
	if _, err := f.escrow.ReleaseMilestone(ctx, client, p.ID, 1, "0xrel"); err != nil {
		t.Fatalf("ReleaseMilestone failed: %v", err)
	}

	// The earnings counter tracks approved submissions, not raw releases.
	u, err := f.store.GetUser(ctx, freelancer)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.TotalEarned != 0 {
		t.Fatalf("total_earned = %d, want 0 without a submission", u.TotalEarned)
	}
}

func TestApproveLastMilestoneCompletesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, 1000)

	if err := f.escrow.CompleteMilestone(ctx, freelancer, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}
	sub := f.submit(t, p.ID, 1)
	if _, err := f.workflow.ApproveSubmission(ctx, client, sub.ID, "0xrel"); err != nil {
		t.Fatalf("ApproveSubmission failed: %v", err)
	}

	gotP, err := f.store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if gotP.Status != model.ProjectCompleted {
		t.Fatalf("status = %s, want completed", gotP.Status)
	}
	if got := f.rec.byType(model.NotifyProjectCompleted); len(got) != 2 {
		t.Fatalf("completion notifications = %d, want both parties", len(got))
	}
}

func TestRejectSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, 1000)

	if err := f.escrow.CompleteMilestone(ctx, freelancer, p.ID, 1); err != nil {
		t.Fatalf("CompleteMilestone failed: %v", err)
	}
	sub := f.submit(t, p.ID, 1)

	if err := f.workflow.RejectSubmission(ctx, client, sub.ID, "missing tests"); err != nil {
		t.Fatalf("RejectSubmission failed: %v", err)
	}

	gotSub, err := f.store.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if gotSub.Status != model.SubmissionRejected {
		t.Fatalf("status = %s, want rejected", gotSub.Status)
	}

	// The ledger is untouched and the milestone is resubmittable.
	gotP, _ := f.store.GetProject(ctx, p.ID)
	if gotP.MilestoneAt(1).Released {
		t.Fatal("rejection must not release escrow")
	}
	if _, err := f.workflow.SubmitMilestone(ctx, freelancer, p.ID, 1, "ipfs://v2", "with tests", ""); err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}

	// Rejecting twice fails.
	err = f.workflow.RejectSubmission(ctx, client, sub.ID, "again")
	wantKind(t, err, escrow.KindInvalidState)
}

func TestSubmitBlockedWhenPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, 1000)

	if err := f.escrow.SetPaused(ctx, "SP1OWNER", true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}
	_, err := f.workflow.SubmitMilestone(ctx, freelancer, p.ID, 1, "ipfs://x", "", "")
	wantKind(t, err, escrow.KindSystemPaused)
}

func TestProjectBudget(t *testing.T) {
	f := newFixture(t)
	p := f.createProject(t, 1000, 2500)

	budget, err := f.workflow.ProjectBudget(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ProjectBudget failed: %v", err)
	}
	if budget != 3500 {
		t.Fatalf("budget = %d, want gross 3500", budget)
	}
}
