package port

import (
	"context"
	"time"

	"github.com/pofara/identity-service/internal/core/domain"
)

// FailedAttemptResult reports the protection state after an atomic
// failed-attempt increment.
type FailedAttemptResult struct {
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	LockApplied         bool
}

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// RecordFailedAttempt increments failed_login_attempts and, when the
	// post-increment counter reaches threshold, sets account_locked_until
	// to lockUntil. The increment and the lock decision execute as one
	// statement against the row.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*FailedAttemptResult, error)
	// RecordSuccess resets the failure counter, clears any lock, and
	// stamps the last successful login.
	RecordSuccess(ctx context.Context, id string, ip *string, at time.Time) error
	// Unlock clears the lock timestamp and failure counter. Unlocking an
	// account that is not locked succeeds without effect.
	Unlock(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error
}
