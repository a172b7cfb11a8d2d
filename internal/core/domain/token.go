package domain

import "time"

// RefreshToken represents a persisted refresh token (stored as a hash).
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// TokenPair bundles the credentials returned after a successful login
// or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
