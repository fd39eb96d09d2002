package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
)

func seedProject(t *testing.T, store *MemoryStore) int64 {
	t.Helper()
	var id int64
	err := store.InTx(context.Background(), func(ctx context.Context, tx escrow.Tx) error {
		var err error
		id, err = tx.InsertProject(ctx, &model.Project{
			Client:        "SP2CLIENT",
			Freelancer:    "SP3FREELANCER",
			TokenType:     model.TokenSTX,
			Status:        model.ProjectActive,
			NumMilestones: 1,
			Milestones:    []model.Milestone{{Num: 1, Amount: 1000, NetAmount: 975}},
			FeeBps:        250,
			CreatedAt:     time.Now(),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return id
}

func TestInTxRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	id := seedProject(t, store)

	sentinel := errors.New("boom")
	err := store.InTx(context.Background(), func(ctx context.Context, tx escrow.Tx) error {
		p, err := tx.ProjectForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p.Status = model.ProjectRefunded
		p.Refunded = true
		if err := tx.UpdateProject(ctx, p); err != nil {
			return err
		}
		if _, err := tx.InsertDispute(ctx, &model.Dispute{ProjectID: id, MilestoneNum: 1, Status: model.DisputeOpen}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("InTx error = %v, want sentinel", err)
	}

	p, err := store.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if p.Refunded || p.Status != model.ProjectActive {
		t.Fatalf("project = (%t, %s), rollback did not restore state", p.Refunded, p.Status)
	}
	if _, err := store.GetDispute(context.Background(), 1); !escrow.IsKind(err, escrow.KindNotFound) {
		t.Fatalf("dispute survived rollback: %v", err)
	}
}

func TestTxHandsOutClones(t *testing.T) {
	store := NewMemoryStore()
	id := seedProject(t, store)

	var read *model.Project
	err := store.InTx(context.Background(), func(ctx context.Context, tx escrow.Tx) error {
		var err error
		read, err = tx.ProjectForUpdate(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}

	// Mutating the returned value without UpdateProject must not leak into
	// the store.
	read.Status = model.ProjectCancelled
	read.Milestones[0].Released = true

	p, err := store.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if p.Status != model.ProjectActive || p.Milestones[0].Released {
		t.Fatal("store state aliased by a transaction read")
	}
}

func TestGetUserUnknownIsNil(t *testing.T) {
	store := NewMemoryStore()

	u, err := store.GetUser(context.Background(), "SP9NOBODY")
	if err != nil || u != nil {
		t.Fatalf("GetUser = (%v, %v), want (nil, nil)", u, err)
	}

	err = store.InTx(context.Background(), func(ctx context.Context, tx escrow.Tx) error {
		u, err := tx.GetUser(ctx, "SP9NOBODY")
		if err != nil || u != nil {
			t.Fatalf("tx GetUser = (%v, %v), want (nil, nil)", u, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}
}

func TestAddEarningsCreatesRow(t *testing.T) {
	store := NewMemoryStore()

	err := store.InTx(context.Background(), func(ctx context.Context, tx escrow.Tx) error {
		if err := tx.AddEarnings(ctx, "SP3FREELANCER", 975); err != nil {
			return err
		}
		return tx.AddEarnings(ctx, "SP3FREELANCER", 25)
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}

	u, err := store.GetUser(context.Background(), "SP3FREELANCER")
	if err != nil || u == nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.TotalEarned != 1000 {
		t.Fatalf("total_earned = %d, want 1000", u.TotalEarned)
	}
}
