package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/core/port"
	"github.com/pofara/identity-service/internal/infra/config"
	"github.com/pofara/identity-service/internal/repository"
)

var (
	// ErrInvalidRefreshToken indicates the provided refresh token does not exist or was revoked.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken indicates the provided refresh token has expired.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrInvalidAccessToken indicates the access token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrAccountNotEligible indicates the owning account can no longer authenticate.
	ErrAccountNotEligible = errors.New("account not eligible")
)

// JWTIssuer mints RS256 access tokens and opaque refresh tokens. It
// implements port.TokenIssuer.
type JWTIssuer struct {
	cfg      config.JWTSettings
	kid      string
	keys     KeyProvider
	tokens   port.TokenRepository
	accounts port.AccountRepository
	now      func() time.Time
}

var _ port.TokenIssuer = (*JWTIssuer)(nil)

// NewJWTIssuer constructs a JWTIssuer signing with the key identified
// by kid.
func NewJWTIssuer(
	cfg config.JWTSettings,
	kid string,
	keys KeyProvider,
	tokens port.TokenRepository,
	accounts port.AccountRepository,
) *JWTIssuer {
	return &JWTIssuer{
		cfg:      cfg,
		kid:      kid,
		keys:     keys,
		tokens:   tokens,
		accounts: accounts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (i *JWTIssuer) WithClock(now func() time.Time) *JWTIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

type accessTokenClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	AccountID string `json:"uid"`
	jwt.RegisteredClaims
}

// Issue mints a fresh access/refresh token pair for the account.
func (i *JWTIssuer) Issue(ctx context.Context, account *domain.Account, ip, userAgent *string) (*domain.TokenPair, error) {
	if account == nil || account.ID == "" {
		return nil, fmt.Errorf("account is required")
	}

	now := i.now()
	accessTTL := i.cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	claims := accessTokenClaims{
		Email:     account.Email,
		Role:      string(account.Role),
		AccountID: account.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.kid

	signingKey, err := i.keys.GetSigningKey()
	if err != nil {
		return nil, fmt.Errorf("get signing key: %w", err)
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	refreshTTL := i.cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	raw, err := GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: HashToken(raw),
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(refreshTTL),
	}

	if err := i.tokens.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      signed,
		RefreshToken:     raw,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// Refresh validates the raw refresh token, rotates it, and returns a
// new pair. The presented token is revoked on success.
func (i *JWTIssuer) Refresh(ctx context.Context, rawRefreshToken string, ip, userAgent *string) (*domain.TokenPair, error) {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	record, err := i.tokens.GetRefreshTokenByHash(ctx, HashToken(rawRefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.RevokedAt != nil {
		return nil, ErrInvalidRefreshToken
	}
	if i.now().After(record.ExpiresAt) {
		return nil, ErrExpiredRefreshToken
	}

	account, err := i.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if !account.CanLogin(i.now()) {
		return nil, ErrAccountNotEligible
	}

	pair, err := i.Issue(ctx, account, ip, userAgent)
	if err != nil {
		return nil, err
	}

	if err := i.tokens.RevokeRefreshToken(ctx, record.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	return pair, nil
}

// Revoke invalidates the presented refresh token so it can no longer
// be rotated. An expired token may still be revoked.
func (i *JWTIssuer) Revoke(ctx context.Context, rawRefreshToken string) error {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		return fmt.Errorf("refresh token is required")
	}

	record, err := i.tokens.GetRefreshTokenByHash(ctx, HashToken(rawRefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.RevokedAt != nil {
		return ErrInvalidRefreshToken
	}

	if err := i.tokens.RevokeRefreshToken(ctx, record.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// ParseAccessToken validates the JWT access token and returns its claims.
func (i *JWTIssuer) ParseAccessToken(tokenString string) (*port.AccessTokenClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("access token is required")
	}

	claims := &accessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		return i.keys.GetVerificationKey(kid)
	}, jwt.WithIssuer(i.cfg.Issuer), jwt.WithAudience(i.cfg.Audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.AccountID) == "" {
		return nil, ErrInvalidAccessToken
	}

	result := &port.AccessTokenClaims{
		Subject: claims.AccountID,
		Email:   claims.Email,
		Role:    claims.Role,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	return result, nil
}
