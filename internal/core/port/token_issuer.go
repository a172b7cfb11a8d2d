package port

import (
	"context"
	"time"

	"github.com/pofara/identity-service/internal/core/domain"
)

// TokenIssuer mints credential pairs for authenticated accounts. The
// authenticator treats issuance as an external collaborator: issuer
// failures after a committed login are reported distinctly from store
// failures.
type TokenIssuer interface {
	Issue(ctx context.Context, account *domain.Account, ip, userAgent *string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, rawRefreshToken string, ip, userAgent *string) (*domain.TokenPair, error)
	Revoke(ctx context.Context, rawRefreshToken string) error
	ParseAccessToken(tokenString string) (*AccessTokenClaims, error)
}

// AccessTokenClaims carries the verified claims of an access token.
type AccessTokenClaims struct {
	Subject   string
	Email     string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenRepository persists refresh token hashes.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeRefreshTokensForAccount(ctx context.Context, accountID string) error
}
