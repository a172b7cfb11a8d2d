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
)

var (
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrTermsNotAccepted indicates the terms of service were not accepted during signup.
	ErrTermsNotAccepted = errors.New("terms of service must be accepted")
)

// RegistrationService handles new account onboarding. Accounts are
// created active with terms accepted at signup; the marketplace
// verifies email and phone in later flows.
type RegistrationService struct {
	accounts  port.AccountRepository
	attempts  port.AttemptLedger
	hasher    port.PasswordHasher
	validator port.PasswordPolicyValidator
	issuer    port.TokenIssuer
	events    port.EventPublisher
	now       func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	accounts port.AccountRepository,
	attempts port.AttemptLedger,
	hasher port.PasswordHasher,
	validator port.PasswordPolicyValidator,
	issuer port.TokenIssuer,
) *RegistrationService {
	return &RegistrationService{
		accounts:  accounts,
		attempts:  attempts,
		hasher:    hasher,
		validator: validator,
		issuer:    issuer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithEventPublisher attaches a publisher for registration events.
func (s *RegistrationService) WithEventPublisher(events port.EventPublisher) *RegistrationService {
	s.events = events
	return s
}

// WithClock overrides the time source.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// RegisterInput carries the signup form fields and client context.
type RegisterInput struct {
	Email         string
	Password      string
	FirstName     string
	LastName      string
	Phone         string
	TermsAccepted bool
	IP            *string
	UserAgent     *string
}

// RegisterResult bundles the created account and its first token pair.
type RegisterResult struct {
	Account domain.Account
	Tokens  *domain.TokenPair
}

// Register validates the input, creates an active account, records the
// signup in the attempt ledger, and issues the first token pair.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if input.Password == "" {
		return nil, fmt.Errorf("password is required")
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, fmt.Errorf("first and last name are required")
	}
	if !input.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}

	if err := s.validator.Validate(input.Password, email, input.FirstName, input.LastName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := domain.Account{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      passwordHash,
		FirstName:         strings.TrimSpace(input.FirstName),
		LastName:          strings.TrimSpace(input.LastName),
		Role:              domain.RoleUser,
		Status:            domain.AccountStatusActive,
		IsActive:          true,
		TermsAccepted:     true,
		TermsAcceptedAt:   &now,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		account.Phone = &phone
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	if err := s.attempts.Append(ctx, domain.LoginAttempt{
		ID:        uuid.NewString(),
		AccountID: &account.ID,
		Email:     email,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Outcome:   domain.AttemptSuccess,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("record signup attempt: %w", err)
	}

	if s.events != nil {
		_ = s.events.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			Email:        account.Email,
			FirstName:    account.FirstName,
			LastName:     account.LastName,
			Role:         string(account.Role),
			Status:       string(account.Status),
			RegisteredAt: now,
			IPAddress:    input.IP,
		})
	}

	tokens, err := s.issuer.Issue(ctx, &account, input.IP, input.UserAgent)
	if err != nil {
		return nil, newAuthError(KindTokenIssuerUnavailable, err)
	}

	account.PasswordHash = ""

	return &RegisterResult{Account: account, Tokens: tokens}, nil
}
