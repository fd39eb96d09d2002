package auth

import (
	"context"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of the repository the auth service needs.
type UserStore interface {
	GetUser(ctx context.Context, principal string) (*model.User, error)
	EnsureUser(ctx context.Context, principal string) (*model.User, error)
}

// SignatureVerifier checks that a wallet signature over the login
// challenge was produced by the principal's key. The Stacks
// implementation lives behind this interface so tests can stub it.
type SignatureVerifier interface {
	Verify(principal, challenge, signature string) error
}

// Claims is the JWT payload issued on login.
type Claims struct {
	Principal string `json:"principal"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type Service struct {
	store    UserStore
	verifier SignatureVerifier
	secret   []byte
	ttl      time.Duration
	logger   *zap.Logger
}

func NewService(store UserStore, verifier SignatureVerifier, secret string, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:    store,
		verifier: verifier,
		secret:   []byte(secret),
		ttl:      ttl,
		logger:   logger,
	}
}

// WalletLogin verifies a wallet signature over the challenge, creates the
// user row on first login, and issues a JWT. Suspended users cannot log
// in.
func (s *Service) WalletLogin(ctx context.Context, principal, challenge, signature string) (string, *model.User, error) {
	const op = "auth.WalletLogin"

	if principal == "" || challenge == "" || signature == "" {
		return "", nil, escrow.Errf(escrow.KindInvalidArgument, op, "principal, challenge and signature are required")
	}

	if err := s.verifier.Verify(principal, challenge, signature); err != nil {
		s.logger.Warn("Wallet signature verification failed",
			zap.String("principal", principal),
			zap.Error(err),
		)
		return "", nil, escrow.Errf(escrow.KindNotAuthorized, op, "signature verification failed")
	}

	user, err := s.store.EnsureUser(ctx, principal)
	if err != nil {
		return "", nil, err
	}
	if user.Suspended {
		return "", nil, escrow.Errf(escrow.KindNotAuthorized, op, "account %s is suspended", principal)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// AdminLogin authenticates an admin by principal and password.
func (s *Service) AdminLogin(ctx context.Context, principal, password string) (string, *model.User, error) {
	const op = "auth.AdminLogin"

	user, err := s.store.GetUser(ctx, principal)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !user.IsAdmin || user.PasswordHash == "" {
		return "", nil, escrow.Errf(escrow.KindNotAuthorized, op, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, escrow.Errf(escrow.KindNotAuthorized, op, "invalid credentials")
	}
	if user.Suspended {
		return "", nil, escrow.Errf(escrow.KindNotAuthorized, op, "account %s is suspended", principal)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// HashPassword returns the bcrypt hash for seeding admin accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) issueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Principal: user.Principal,
		IsAdmin:   user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return "", err
	}
	return signed, nil
}

// ParseToken validates a JWT and returns its claims.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	const op = "auth.ParseToken"

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, escrow.Errf(escrow.KindNotAuthorized, op, "unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, escrow.Errf(escrow.KindNotAuthorized, op, "invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, escrow.Errf(escrow.KindNotAuthorized, op, "invalid token")
	}
	return claims, nil
}
