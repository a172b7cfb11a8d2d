package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/core/port"
	"github.com/pofara/identity-service/internal/infra/config"
	"github.com/pofara/identity-service/internal/repository"
)

const testKid = "test-signing"

type memoryTokenStore struct {
	byHash  map[string]*domain.RefreshToken
	revoked map[string]bool
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{
		byHash:  make(map[string]*domain.RefreshToken),
		revoked: make(map[string]bool),
	}
}

func (s *memoryTokenStore) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stored := token
	s.byHash[token.TokenHash] = &stored
	return nil
}

func (s *memoryTokenStore) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	token, ok := s.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	snapshot := *token
	return &snapshot, nil
}

func (s *memoryTokenStore) RevokeRefreshToken(ctx context.Context, id string) error {
	s.revoked[id] = true
	for _, token := range s.byHash {
		if token.ID == id {
			now := time.Now().UTC()
			token.RevokedAt = &now
		}
	}
	return nil
}

func (s *memoryTokenStore) RevokeRefreshTokensForAccount(ctx context.Context, accountID string) error {
	return nil
}

type memoryAccountStore struct {
	account *domain.Account
}

func (s *memoryAccountStore) Create(ctx context.Context, account domain.Account) error {
	s.account = &account
	return nil
}

func (s *memoryAccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, repository.ErrNotFound
	}
	snapshot := *s.account
	return &snapshot, nil
}

func (s *memoryAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if s.account == nil {
		return nil, repository.ErrNotFound
	}
	snapshot := *s.account
	return &snapshot, nil
}

func (s *memoryAccountStore) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*port.FailedAttemptResult, error) {
	return nil, errors.New("not implemented")
}

func (s *memoryAccountStore) RecordSuccess(ctx context.Context, id string, ip *string, at time.Time) error {
	return nil
}

func (s *memoryAccountStore) Unlock(ctx context.Context, id string) error {
	return nil
}

func (s *memoryAccountStore) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	return nil
}

func (s *memoryAccountStore) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	return nil
}

func writeTestSigningKey(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	encoded := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(filepath.Join(dir, testKid+".pem"), encoded, 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return dir
}

func eligibleAccount() *domain.Account {
	return &domain.Account{
		ID:            "acct-1",
		Email:         "amara@example.com",
		Role:          domain.RoleUser,
		Status:        domain.AccountStatusActive,
		IsActive:      true,
		TermsAccepted: true,
	}
}

func testIssuerConfig() config.JWTSettings {
	return config.JWTSettings{
		Issuer:          "pofara-identity-test",
		Audience:        "pofara-platform-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func newTestIssuer(t *testing.T, accounts *memoryAccountStore, tokens *memoryTokenStore) *JWTIssuer {
	t.Helper()

	provider, err := NewDevKeyProvider(writeTestSigningKey(t))
	if err != nil {
		t.Fatalf("failed to create key provider: %v", err)
	}

	return NewJWTIssuer(testIssuerConfig(), testKid, provider, tokens, accounts)
}

func TestIssueAndParseAccessToken(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	tokens := newMemoryTokenStore()
	issuer := newTestIssuer(t, accounts, tokens)

	pair, err := issuer.Issue(context.Background(), accounts.account, nil, nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be minted")
	}
	if len(tokens.byHash) != 1 {
		t.Fatalf("expected one stored refresh token hash, got %d", len(tokens.byHash))
	}
	if _, raw := tokens.byHash[pair.RefreshToken]; raw {
		t.Fatal("refresh token must be stored hashed, not raw")
	}

	claims, err := issuer.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("expected subject acct-1, got %q", claims.Subject)
	}
	if claims.Email != "amara@example.com" || claims.Role != string(domain.RoleUser) {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenID == "" {
		t.Fatal("expected a token ID claim")
	}
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	issuer := newTestIssuer(t, accounts, newMemoryTokenStore())

	if _, err := issuer.ParseAccessToken("not.a.jwt"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid access token, got %v", err)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	tokens := newMemoryTokenStore()
	issuer := newTestIssuer(t, accounts, tokens)

	issuer.WithClock(func() time.Time { return time.Now().UTC().Add(-time.Hour) })

	pair, err := issuer.Issue(context.Background(), accounts.account, nil, nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := issuer.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expected expired access token, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	tokens := newMemoryTokenStore()
	issuer := newTestIssuer(t, accounts, tokens)

	pair, err := issuer.Issue(context.Background(), accounts.account, nil, nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	rotated, err := issuer.Refresh(context.Background(), pair.RefreshToken, nil, nil)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a new refresh token on rotation")
	}

	original, err := tokens.GetRefreshTokenByHash(context.Background(), HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if original.RevokedAt == nil {
		t.Fatal("expected the presented token to be revoked after rotation")
	}

	if _, err := issuer.Refresh(context.Background(), pair.RefreshToken, nil, nil); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected reuse of a rotated token to fail, got %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	issuer := newTestIssuer(t, accounts, newMemoryTokenStore())

	if _, err := issuer.Refresh(context.Background(), "never-issued", nil, nil); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token, got %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	tokens := newMemoryTokenStore()
	issuer := newTestIssuer(t, accounts, tokens)

	pair, err := issuer.Issue(context.Background(), accounts.account, nil, nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	issuer.WithClock(func() time.Time { return time.Now().UTC().Add(48 * time.Hour) })

	if _, err := issuer.Refresh(context.Background(), pair.RefreshToken, nil, nil); !errors.Is(err, ErrExpiredRefreshToken) {
		t.Fatalf("expected expired refresh token, got %v", err)
	}
}

func TestRefreshIneligibleAccount(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	tokens := newMemoryTokenStore()
	issuer := newTestIssuer(t, accounts, tokens)

	pair, err := issuer.Issue(context.Background(), accounts.account, nil, nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	accounts.account.IsActive = false

	if _, err := issuer.Refresh(context.Background(), pair.RefreshToken, nil, nil); !errors.Is(err, ErrAccountNotEligible) {
		t.Fatalf("expected ineligible account, got %v", err)
	}
}

func TestRevokeBlocksFurtherRefresh(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	tokens := newMemoryTokenStore()
	issuer := newTestIssuer(t, accounts, tokens)

	pair, err := issuer.Issue(context.Background(), accounts.account, nil, nil)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := issuer.Revoke(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	stored, err := tokens.GetRefreshTokenByHash(context.Background(), HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.RevokedAt == nil {
		t.Fatal("expected the stored token to carry a revocation timestamp")
	}

	if _, err := issuer.Refresh(context.Background(), pair.RefreshToken, nil, nil); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected a revoked token to be rejected, got %v", err)
	}

	if err := issuer.Revoke(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected double revocation to fail, got %v", err)
	}
}

func TestRevokeUnknownToken(t *testing.T) {
	accounts := &memoryAccountStore{account: eligibleAccount()}
	issuer := newTestIssuer(t, accounts, newMemoryTokenStore())

	if err := issuer.Revoke(context.Background(), "never-issued"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token, got %v", err)
	}
}
