package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/core/port"
	"github.com/pofara/identity-service/internal/repository"
)

var (
	// ErrAccountNotFound indicates no account exists with the supplied identifier.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCurrentPasswordMismatch indicates the supplied current password is wrong.
	ErrCurrentPasswordMismatch = errors.New("current password does not match")
)

// AccountService exposes administrative and self-service account
// operations: unlock, attempt listing, detail lookup, password change.
type AccountService struct {
	accounts  port.AccountRepository
	attempts  port.AttemptLedger
	tokens    port.TokenRepository
	hasher    port.PasswordHasher
	validator port.PasswordPolicyValidator
	events    port.EventPublisher
	now       func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(
	accounts port.AccountRepository,
	attempts port.AttemptLedger,
	tokens port.TokenRepository,
	hasher port.PasswordHasher,
	validator port.PasswordPolicyValidator,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		attempts:  attempts,
		tokens:    tokens,
		hasher:    hasher,
		validator: validator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithEventPublisher attaches a publisher for account events.
func (s *AccountService) WithEventPublisher(events port.EventPublisher) *AccountService {
	s.events = events
	return s
}

// WithClock overrides the time source.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	if now != nil {
		s.now = now
	}
	return s
}

// Unlock clears the lock timestamp and failure counter. The operation
// is idempotent: unlocking an account that is not locked succeeds.
func (s *AccountService) Unlock(ctx context.Context, accountID, unlockedBy string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	if err := s.accounts.Unlock(ctx, account.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("unlock account: %w", err)
	}

	if s.events != nil {
		_ = s.events.PublishAccountUnlocked(ctx, domain.AccountUnlockedEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			Email:      account.Email,
			UnlockedBy: unlockedBy,
			UnlockedAt: s.now(),
		})
	}

	return nil
}

// GetAccount returns the account detail for admin views.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	sanitized := *account
	sanitized.PasswordHash = ""

	return &sanitized, nil
}

// SetStatus transitions the account to a new status. Leaving the
// active status revokes outstanding refresh tokens so suspended and
// deactivated accounts cannot keep refreshing.
func (s *AccountService) SetStatus(ctx context.Context, accountID string, status domain.AccountStatus) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	switch status {
	case domain.AccountStatusActive, domain.AccountStatusPending,
		domain.AccountStatusSuspended, domain.AccountStatusDeactivated:
	default:
		return fmt.Errorf("unknown account status %q", status)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	if account.Status == status {
		return nil
	}

	if err := s.accounts.UpdateStatus(ctx, account.ID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("update account status: %w", err)
	}

	if status != domain.AccountStatusActive && s.tokens != nil {
		if err := s.tokens.RevokeRefreshTokensForAccount(ctx, account.ID); err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}
	}

	return nil
}

// AttemptPage is one page of ledger entries with the total match count.
type AttemptPage struct {
	Attempts []domain.LoginAttempt
	Total    int
}

// ListAttempts returns ledger entries matching the filter, newest first.
func (s *AccountService) ListAttempts(ctx context.Context, filter domain.AttemptFilter) (*AttemptPage, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	normalizeEmailFilter(&filter)

	total, err := s.attempts.CountByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count login attempts: %w", err)
	}

	attempts, err := s.attempts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}

	return &AttemptPage{Attempts: attempts, Total: total}, nil
}

// ChangePassword verifies the current password, enforces policy on the
// new one, and revokes outstanding refresh tokens.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if currentPassword == "" || newPassword == "" {
		return fmt.Errorf("current and new password are required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrCurrentPasswordMismatch
	}

	if newPassword == currentPassword {
		return fmt.Errorf("%w: new password must differ from the current one", ErrPasswordPolicyViolation)
	}
	if err := s.validator.Validate(newPassword, account.Email, account.FirstName, account.LastName); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	if err := s.accounts.UpdatePassword(ctx, account.ID, newHash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.tokens != nil {
		if err := s.tokens.RevokeRefreshTokensForAccount(ctx, account.ID); err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}
	}

	if s.events != nil {
		_ = s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			AccountID: account.ID,
			ChangedAt: now,
			ChangedBy: account.ID,
		})
	}

	return nil
}

// normalizeEmailFilter lowercases an email filter value in place.
func normalizeEmailFilter(filter *domain.AttemptFilter) {
	if filter.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*filter.Email))
		filter.Email = &normalized
	}
}
