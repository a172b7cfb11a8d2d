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
	"github.com/pofara/identity-service/internal/infra/telemetry"
	"github.com/pofara/identity-service/internal/repository"
)

const (
	defaultMaxFailedAttempts = 5
	defaultLockDuration      = 30 * time.Minute
)

// AuthService drives the login state machine: credential lookup, lock
// derivation, password verification, eligibility, and token issuance.
// Every call appends exactly one ledger entry, and all writes a call
// performs share one transaction.
type AuthService struct {
	accounts port.AccountRepository
	uow      port.UnitOfWork
	hasher   port.PasswordHasher
	issuer   port.TokenIssuer
	events   port.EventPublisher
	metrics  *telemetry.Provider

	maxFailedAttempts int
	lockDuration      time.Duration
	now               func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	accounts port.AccountRepository,
	uow port.UnitOfWork,
	hasher port.PasswordHasher,
	issuer port.TokenIssuer,
) *AuthService {
	return &AuthService{
		accounts:          accounts,
		uow:               uow,
		hasher:            hasher,
		issuer:            issuer,
		maxFailedAttempts: defaultMaxFailedAttempts,
		lockDuration:      defaultLockDuration,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithLockoutPolicy overrides the failure threshold and lock duration.
func (s *AuthService) WithLockoutPolicy(maxFailedAttempts int, lockDuration time.Duration) *AuthService {
	if maxFailedAttempts > 0 {
		s.maxFailedAttempts = maxFailedAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	return s
}

// WithEventPublisher attaches a publisher for protection events.
func (s *AuthService) WithEventPublisher(events port.EventPublisher) *AuthService {
	s.events = events
	return s
}

// WithTelemetry attaches login outcome counters.
func (s *AuthService) WithTelemetry(metrics *telemetry.Provider) *AuthService {
	s.metrics = metrics
	return s
}

// WithClock overrides the time source used for lock derivation and
// ledger timestamps.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// LoginInput carries the credentials and client context of an attempt.
type LoginInput struct {
	Email     string
	Password  string
	IP        *string
	UserAgent *string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Account domain.Account
	Tokens  *domain.TokenPair
}

// Login authenticates the supplied credentials. On failure the returned
// error is an *AuthError; the ledger entry and any counter mutation are
// committed before it is returned.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if input.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := s.appendAttempt(ctx, nil, email, input, domain.AttemptFailed, domain.ReasonUserNotFound); err != nil {
				return nil, newAuthError(KindStoreUnavailable, err)
			}
			s.observe("failed")
			return nil, newAuthError(KindInvalidCredentials, nil)
		}
		return nil, newAuthError(KindStoreUnavailable, err)
	}

	now := s.now()

	if account.IsLocked(now) {
		if err := s.appendAttempt(ctx, &account.ID, email, input, domain.AttemptFailed, domain.ReasonAccountLocked); err != nil {
			return nil, newAuthError(KindStoreUnavailable, err)
		}
		s.observe("locked")
		lockedUntil := *account.AccountLockedUntil
		return nil, newLockedError(&lockedUntil)
	}

	ok, err := s.hasher.Verify(input.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !ok {
		result, err := s.recordFailure(ctx, account, email, input, now)
		if err != nil {
			return nil, newAuthError(KindStoreUnavailable, err)
		}
		s.observe("failed")
		if result.LockApplied {
			s.publishLock(ctx, account, result, input.IP, now)
		}
		return nil, newAuthError(KindInvalidCredentials, nil)
	}

	if !account.CanLogin(now) {
		if err := s.appendAttempt(ctx, &account.ID, email, input, domain.AttemptFailed, domain.ReasonAccountNotEligible); err != nil {
			return nil, newAuthError(KindStoreUnavailable, err)
		}
		s.observe("not_eligible")
		return nil, newAuthError(KindAccountNotEligible, nil)
	}

	if err := s.recordSuccess(ctx, account, email, input, now); err != nil {
		return nil, newAuthError(KindStoreUnavailable, err)
	}
	s.observe("success")

	tokens, err := s.issuer.Issue(ctx, account, input.IP, input.UserAgent)
	if err != nil {
		return nil, newAuthError(KindTokenIssuerUnavailable, err)
	}

	sanitized := *account
	sanitized.PasswordHash = ""
	sanitized.FailedLoginAttempts = 0
	sanitized.AccountLockedUntil = nil
	sanitized.LastLogin = &now
	sanitized.LastLoginIP = input.IP

	return &LoginResult{Account: sanitized, Tokens: tokens}, nil
}

// recordFailure increments the counter and appends the ledger entry in
// one transaction. The counter mutation runs first so the lock decision
// is committed together with the audit row.
func (s *AuthService) recordFailure(ctx context.Context, account *domain.Account, email string, input LoginInput, now time.Time) (*port.FailedAttemptResult, error) {
	var result *port.FailedAttemptResult

	err := s.uow.WithinTx(ctx, func(stores port.AuthTxStores) error {
		var err error
		result, err = stores.Accounts.RecordFailedAttempt(ctx, account.ID, s.maxFailedAttempts, now.Add(s.lockDuration))
		if err != nil {
			return err
		}
		return stores.Attempts.Append(ctx, s.newAttempt(&account.ID, email, input, domain.AttemptFailed, domain.ReasonInvalidCredentials, now))
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *AuthService) recordSuccess(ctx context.Context, account *domain.Account, email string, input LoginInput, now time.Time) error {
	return s.uow.WithinTx(ctx, func(stores port.AuthTxStores) error {
		if err := stores.Accounts.RecordSuccess(ctx, account.ID, input.IP, now); err != nil {
			return err
		}
		return stores.Attempts.Append(ctx, s.newAttempt(&account.ID, email, input, domain.AttemptSuccess, "", now))
	})
}

func (s *AuthService) appendAttempt(ctx context.Context, accountID *string, email string, input LoginInput, outcome domain.AttemptOutcome, reason string) error {
	return s.uow.WithinTx(ctx, func(stores port.AuthTxStores) error {
		return stores.Attempts.Append(ctx, s.newAttempt(accountID, email, input, outcome, reason, s.now()))
	})
}

func (s *AuthService) newAttempt(accountID *string, email string, input LoginInput, outcome domain.AttemptOutcome, reason string, at time.Time) domain.LoginAttempt {
	return domain.LoginAttempt{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		Email:         email,
		IP:            input.IP,
		UserAgent:     input.UserAgent,
		Outcome:       outcome,
		FailureReason: reason,
		CreatedAt:     at,
	}
}

func (s *AuthService) publishLock(ctx context.Context, account *domain.Account, result *port.FailedAttemptResult, ip *string, now time.Time) {
	s.metrics.ObserveAccountLock()
	if s.events == nil || result.AccountLockedUntil == nil {
		return
	}
	_ = s.events.PublishAccountLocked(ctx, domain.AccountLockedEvent{
		EventID:        uuid.NewString(),
		AccountID:      account.ID,
		Email:          account.Email,
		FailedAttempts: result.FailedLoginAttempts,
		LockedUntil:    *result.AccountLockedUntil,
		LockedAt:       now,
		IPAddress:      ip,
	})
}

func (s *AuthService) observe(outcome string) {
	s.metrics.ObserveLogin(outcome)
}

// RefreshTokens rotates a refresh token into a new pair.
func (s *AuthService) RefreshTokens(ctx context.Context, rawRefreshToken string, ip, userAgent *string) (*domain.TokenPair, error) {
	pair, err := s.issuer.Refresh(ctx, rawRefreshToken, ip, userAgent)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the presented refresh token so the holder cannot
// rotate it again. Access tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken string) error {
	return s.issuer.Revoke(ctx, rawRefreshToken)
}

// ParseAccessToken validates a bearer token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*port.AccessTokenClaims, error) {
	return s.issuer.ParseAccessToken(token)
}
