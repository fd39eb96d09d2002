package auth_test

import (
	"context"
	"testing"
	"time"

	"escrow-service/internal/auth"
	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
	"escrow-service/internal/repository"

	"go.uber.org/zap"
)

const principal = "SP2CLIENT000000000000000000000000000000001"

func newAuthService(t *testing.T, verifier auth.SignatureVerifier) (*auth.Service, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return auth.NewService(store, verifier, "test-secret", time.Hour, zap.NewNop()), store
}

func TestWalletLoginCreatesUserAndIssuesToken(t *testing.T) {
	svc, store := newAuthService(t, auth.InsecureDevVerifier())

	token, user, err := svc.WalletLogin(context.Background(), principal, "challenge", "sig")
	if err != nil {
		t.Fatalf("WalletLogin failed: %v", err)
	}
	if user.Principal != principal {
		t.Fatalf("principal = %s, want %s", user.Principal, principal)
	}

	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Principal != principal || claims.IsAdmin {
		t.Fatalf("claims = %+v, want non-admin %s", claims, principal)
	}

	// The row exists now.
	u, err := store.GetUser(context.Background(), principal)
	if err != nil || u == nil {
		t.Fatalf("user row not created: %v", err)
	}
}

func TestWalletLoginRejectsBadSignature(t *testing.T) {
	svc, _ := newAuthService(t, auth.VerifierFunc(func(string, string, string) error {
		return escrow.Errf(escrow.KindNotAuthorized, "verify", "bad signature")
	}))

	_, _, err := svc.WalletLogin(context.Background(), principal, "challenge", "sig")
	if !escrow.IsKind(err, escrow.KindNotAuthorized) {
		t.Fatalf("got %v, want not_authorized", err)
	}
}

func TestWalletLoginRejectsSuspendedUser(t *testing.T) {
	svc, store := newAuthService(t, auth.InsecureDevVerifier())
	store.SeedUser(model.User{Principal: principal, Suspended: true})

	_, _, err := svc.WalletLogin(context.Background(), principal, "challenge", "sig")
	if !escrow.IsKind(err, escrow.KindNotAuthorized) {
		t.Fatalf("got %v, want not_authorized", err)
	}
}

func TestAdminLogin(t *testing.T) {
	svc, store := newAuthService(t, auth.DisabledVerifier())

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	store.SeedUser(model.User{Principal: principal, IsAdmin: true, PasswordHash: hash})

	// Wrong password.
	_, _, err = svc.AdminLogin(context.Background(), principal, "wrong")
	if !escrow.IsKind(err, escrow.KindNotAuthorized) {
		t.Fatalf("got %v, want not_authorized", err)
	}

	token, user, err := svc.AdminLogin(context.Background(), principal, "correct horse")
	if err != nil {
		t.Fatalf("AdminLogin failed: %v", err)
	}
	if !user.IsAdmin {
		t.Fatal("user is not flagged admin")
	}
	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if !claims.IsAdmin {
		t.Fatal("token claims lost the admin flag")
	}
}

func TestAdminLoginRejectsNonAdmin(t *testing.T) {
	svc, store := newAuthService(t, auth.DisabledVerifier())

	hash, _ := auth.HashPassword("pw")
	store.SeedUser(model.User{Principal: principal, PasswordHash: hash})

	_, _, err := svc.AdminLogin(context.Background(), principal, "pw")
	if !escrow.IsKind(err, escrow.KindNotAuthorized) {
		t.Fatalf("got %v, want not_authorized", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthService(t, auth.DisabledVerifier())

	if _, err := svc.ParseToken("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}

	// Token signed with a different secret.
	other := auth.NewService(repository.NewMemoryStore(), auth.InsecureDevVerifier(), "other-secret", time.Hour, zap.NewNop())
	token, _, err := other.WalletLogin(context.Background(), principal, "c", "s")
	if err != nil {
		t.Fatalf("WalletLogin failed: %v", err)
	}
	if _, err := svc.ParseToken(token); err == nil {
		t.Fatal("token with wrong signature accepted")
	}
}
