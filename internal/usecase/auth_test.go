package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/core/port"
	"github.com/pofara/identity-service/internal/repository"
)

type fakeAccountStore struct {
	mu sync.Mutex

	account *domain.Account
	getErr  error

	failedAttemptErr error
	successCalls     int
	lastSuccessAt    time.Time
}

func (f *fakeAccountStore) Create(ctx context.Context, account domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = &account
	return nil
}

func (f *fakeAccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return f.GetByEmail(ctx, "")
}

func (f *fakeAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.account == nil {
		return nil, repository.ErrNotFound
	}
	snapshot := *f.account
	return &snapshot, nil
}

func (f *fakeAccountStore) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*port.FailedAttemptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedAttemptErr != nil {
		return nil, f.failedAttemptErr
	}
	if f.account == nil {
		return nil, repository.ErrNotFound
	}

	f.account.FailedLoginAttempts++
	if f.account.FailedLoginAttempts >= threshold {
		until := lockUntil
		f.account.AccountLockedUntil = &until
	}

	result := &port.FailedAttemptResult{
		FailedLoginAttempts: f.account.FailedLoginAttempts,
		LockApplied:         f.account.FailedLoginAttempts >= threshold,
	}
	if f.account.AccountLockedUntil != nil {
		until := *f.account.AccountLockedUntil
		result.AccountLockedUntil = &until
	}
	return result, nil
}

func (f *fakeAccountStore) RecordSuccess(ctx context.Context, id string, ip *string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return repository.ErrNotFound
	}
	f.account.FailedLoginAttempts = 0
	f.account.AccountLockedUntil = nil
	f.account.LastLogin = &at
	f.account.LastLoginIP = ip
	f.successCalls++
	f.lastSuccessAt = at
	return nil
}

func (f *fakeAccountStore) Unlock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return repository.ErrNotFound
	}
	f.account.FailedLoginAttempts = 0
	f.account.AccountLockedUntil = nil
	return nil
}

func (f *fakeAccountStore) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return repository.ErrNotFound
	}
	f.account.PasswordHash = passwordHash
	f.account.PasswordChangedAt = changedAt
	return nil
}

func (f *fakeAccountStore) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return repository.ErrNotFound
	}
	f.account.Status = status
	return nil
}

func (f *fakeAccountStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return 0
	}
	return f.account.FailedLoginAttempts
}

func (f *fakeAccountStore) lockedUntil() *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil || f.account.AccountLockedUntil == nil {
		return nil
	}
	until := *f.account.AccountLockedUntil
	return &until
}

type fakeAttemptLedger struct {
	mu        sync.Mutex
	entries   []domain.LoginAttempt
	appendErr error
}

func (f *fakeAttemptLedger) Append(ctx context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, attempt)
	return nil
}

func (f *fakeAttemptLedger) List(ctx context.Context, filter domain.AttemptFilter) ([]domain.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LoginAttempt, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeAttemptLedger) CountByFilter(ctx context.Context, filter domain.AttemptFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func (f *fakeAttemptLedger) all() []domain.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LoginAttempt, len(f.entries))
	copy(out, f.entries)
	return out
}

type fakeUnitOfWork struct {
	accounts port.AccountRepository
	attempts port.AttemptLedger
}

func (f *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(stores port.AuthTxStores) error) error {
	return fn(port.AuthTxStores{Accounts: f.accounts, Attempts: f.attempts})
}

type fakeHasher struct {
	verifyErr error
}

func (f *fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (f *fakeHasher) Verify(password, encoded string) (bool, error) {
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return encoded == "hashed:"+password, nil
}

type fakeTokenIssuer struct {
	issueErr   error
	issueCalls int
	revokeErr  error
	revoked    []string
}

func (f *fakeTokenIssuer) Issue(ctx context.Context, account *domain.Account, ip, userAgent *string) (*domain.TokenPair, error) {
	f.issueCalls++
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	return &domain.TokenPair{
		AccessToken:      "access-token",
		RefreshToken:     "refresh-token",
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}, nil
}

func (f *fakeTokenIssuer) Refresh(ctx context.Context, rawRefreshToken string, ip, userAgent *string) (*domain.TokenPair, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTokenIssuer) Revoke(ctx context.Context, rawRefreshToken string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, rawRefreshToken)
	return nil
}

func (f *fakeTokenIssuer) ParseAccessToken(tokenString string) (*port.AccessTokenClaims, error) {
	return nil, errors.New("not implemented")
}

type fakeEventPublisher struct {
	mu           sync.Mutex
	lockedEvents []domain.AccountLockedEvent
}

func (f *fakeEventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	return nil
}

func (f *fakeEventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockedEvents = append(f.lockedEvents, event)
	return nil
}

func (f *fakeEventPublisher) PublishAccountUnlocked(ctx context.Context, event domain.AccountUnlockedEvent) error {
	return nil
}

func (f *fakeEventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	return nil
}

func activeAccount(email string) *domain.Account {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Account{
		ID:                "acct-1",
		Email:             email,
		PasswordHash:      "hashed:correct horse battery staple",
		FirstName:         "Amara",
		LastName:          "Okafor",
		Role:              domain.RoleUser,
		Status:            domain.AccountStatusActive,
		IsActive:          true,
		TermsAccepted:     true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

type authFixture struct {
	service  *AuthService
	accounts *fakeAccountStore
	ledger   *fakeAttemptLedger
	issuer   *fakeTokenIssuer
	events   *fakeEventPublisher
}

func newAuthFixture(account *domain.Account, now time.Time) *authFixture {
	accounts := &fakeAccountStore{account: account}
	ledger := &fakeAttemptLedger{}
	issuer := &fakeTokenIssuer{}
	events := &fakeEventPublisher{}

	service := NewAuthService(accounts, &fakeUnitOfWork{accounts: accounts, attempts: ledger}, &fakeHasher{}, issuer).
		WithEventPublisher(events).
		WithClock(func() time.Time { return now })

	return &authFixture{
		service:  service,
		accounts: accounts,
		ledger:   ledger,
		issuer:   issuer,
		events:   events,
	}
}

func TestLoginSuccess(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)

	ip := "203.0.113.10"
	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "Amara@Example.com",
		Password: "correct horse battery staple",
		IP:       &ip,
	})
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}

	if result.Tokens == nil || result.Tokens.AccessToken == "" {
		t.Fatal("expected token pair to be issued")
	}
	if result.Account.PasswordHash != "" {
		t.Fatal("expected password hash to be stripped from result")
	}

	entries := fx.ledger.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	if entries[0].Outcome != domain.AttemptSuccess {
		t.Fatalf("expected success outcome, got %q", entries[0].Outcome)
	}
	if entries[0].Email != "amara@example.com" {
		t.Fatalf("expected normalized email in ledger, got %q", entries[0].Email)
	}

	if fx.accounts.successCalls != 1 {
		t.Fatalf("expected one success reset, got %d", fx.accounts.successCalls)
	}
}

func TestLoginSuccessResetsFailedCounter(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	account := activeAccount("amara@example.com")
	account.FailedLoginAttempts = 3
	fx := newAuthFixture(account, now)

	if _, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "correct horse battery staple",
	}); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}

	if got := fx.accounts.attempts(); got != 0 {
		t.Fatalf("expected counter reset to 0, got %d", got)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(nil, now)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "ghost@example.com",
		Password: "whatever",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != KindInvalidCredentials {
		t.Fatalf("expected kind %q, got %v", KindInvalidCredentials, err)
	}

	entries := fx.ledger.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	if entries[0].AccountID != nil {
		t.Fatal("expected nil account reference for unknown user")
	}
	if entries[0].FailureReason != domain.ReasonUserNotFound {
		t.Fatalf("expected reason %q, got %q", domain.ReasonUserNotFound, entries[0].FailureReason)
	}
}

func TestLoginWrongPasswordIncrementsCounter(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "wrong",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	if got := fx.accounts.attempts(); got != 1 {
		t.Fatalf("expected counter 1, got %d", got)
	}
	if fx.accounts.lockedUntil() != nil {
		t.Fatal("expected no lock below the threshold")
	}

	entries := fx.ledger.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	if entries[0].FailureReason != domain.ReasonInvalidCredentials {
		t.Fatalf("expected reason %q, got %q", domain.ReasonInvalidCredentials, entries[0].FailureReason)
	}
}

func TestLoginFifthFailureAppliesLock(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	account := activeAccount("amara@example.com")
	account.FailedLoginAttempts = 4
	fx := newAuthFixture(account, now)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "wrong",
	})

	// The attempt that crosses the threshold still reports invalid
	// credentials; the lock takes effect on the next call.
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if errors.Is(err, ErrAccountLocked) {
		t.Fatal("threshold-crossing attempt must not report a locked account")
	}

	until := fx.accounts.lockedUntil()
	if until == nil {
		t.Fatal("expected lock to be applied")
	}
	if want := now.Add(30 * time.Minute); !until.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, *until)
	}

	fx.events.mu.Lock()
	lockEvents := len(fx.events.lockedEvents)
	fx.events.mu.Unlock()
	if lockEvents != 1 {
		t.Fatalf("expected one lock event, got %d", lockEvents)
	}
}

func TestLoginLockedAccountRejectedWithoutIncrement(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	account := activeAccount("amara@example.com")
	account.FailedLoginAttempts = 5
	until := now.Add(10 * time.Minute)
	account.AccountLockedUntil = &until
	fx := newAuthFixture(account, now)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "correct horse battery staple",
	})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T", err)
	}
	if authErr.LockedUntil == nil || !authErr.LockedUntil.Equal(until) {
		t.Fatalf("expected locked until %v, got %v", until, authErr.LockedUntil)
	}

	if got := fx.accounts.attempts(); got != 5 {
		t.Fatalf("expected counter unchanged at 5, got %d", got)
	}

	entries := fx.ledger.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	if entries[0].FailureReason != domain.ReasonAccountLocked {
		t.Fatalf("expected reason %q, got %q", domain.ReasonAccountLocked, entries[0].FailureReason)
	}
	if fx.issuer.issueCalls != 0 {
		t.Fatal("expected no token issuance for a locked account")
	}
}

func TestLoginLockExpiresWithoutCleanupWrite(t *testing.T) {
	lockExpiry := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	account := activeAccount("amara@example.com")
	account.FailedLoginAttempts = 5
	account.AccountLockedUntil = &lockExpiry

	// One second past expiry the derived lock state is inactive.
	fx := newAuthFixture(account, lockExpiry.Add(time.Second))

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("expected login to succeed after lock expiry, got %v", err)
	}
	if result.Account.AccountLockedUntil != nil {
		t.Fatal("expected lock cleared in result")
	}
	if got := fx.accounts.attempts(); got != 0 {
		t.Fatalf("expected counter reset, got %d", got)
	}
}

func TestLoginLockBoundaryInstantIsUnlocked(t *testing.T) {
	until := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	account := activeAccount("amara@example.com")
	account.AccountLockedUntil = &until

	// At exactly the expiry instant the account is no longer locked.
	fx := newAuthFixture(account, until)

	if _, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "correct horse battery staple",
	}); err != nil {
		t.Fatalf("expected login to succeed at the boundary instant, got %v", err)
	}
}

func TestLoginIneligibleAccount(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Account)
	}{
		{"inactive", func(a *domain.Account) { a.IsActive = false }},
		{"suspended", func(a *domain.Account) { a.Status = domain.AccountStatusSuspended }},
		{"pending", func(a *domain.Account) { a.Status = domain.AccountStatusPending }},
		{"terms not accepted", func(a *domain.Account) { a.TermsAccepted = false }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
			account := activeAccount("amara@example.com")
			tc.mutate(account)
			fx := newAuthFixture(account, now)

			_, err := fx.service.Login(context.Background(), LoginInput{
				Email:    "amara@example.com",
				Password: "correct horse battery staple",
			})
			if !errors.Is(err, ErrAccountNotEligible) {
				t.Fatalf("expected not eligible, got %v", err)
			}

			// Eligibility failures happen after password verification and
			// leave the failure counter untouched.
			if got := fx.accounts.attempts(); got != 0 {
				t.Fatalf("expected counter unchanged, got %d", got)
			}

			entries := fx.ledger.all()
			if len(entries) != 1 {
				t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
			}
			if entries[0].FailureReason != domain.ReasonAccountNotEligible {
				t.Fatalf("expected reason %q, got %q", domain.ReasonAccountNotEligible, entries[0].FailureReason)
			}
		})
	}
}

func TestLoginTokenIssuerFailure(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)
	fx.issuer.issueErr = errors.New("signing key unavailable")

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "correct horse battery staple",
	})
	if !errors.Is(err, ErrTokenIssuerUnavailable) {
		t.Fatalf("expected issuer unavailable, got %v", err)
	}

	// The successful authentication is already committed when issuance
	// fails: the ledger records success and the counter is reset.
	entries := fx.ledger.all()
	if len(entries) != 1 || entries[0].Outcome != domain.AttemptSuccess {
		t.Fatalf("expected one committed success entry, got %+v", entries)
	}
}

func TestLoginStoreFailureSurfacesUnavailable(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)
	fx.ledger.appendErr = errors.New("connection refused")

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:    "amara@example.com",
		Password: "wrong",
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestLoginValidatesInput(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)

	if _, err := fx.service.Login(context.Background(), LoginInput{Password: "x"}); err == nil {
		t.Fatal("expected error for missing email")
	}
	if _, err := fx.service.Login(context.Background(), LoginInput{Email: "a@b.c"}); err == nil {
		t.Fatal("expected error for missing password")
	}
	if len(fx.ledger.all()) != 0 {
		t.Fatal("malformed input must not reach the ledger")
	}
}

func TestLoginConcurrentFailuresLockOnce(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)

	const workers = 5
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = fx.service.Login(context.Background(), LoginInput{
				Email:    "amara@example.com",
				Password: "wrong",
			})
		}()
	}
	wg.Wait()

	if got := fx.accounts.attempts(); got != workers {
		t.Fatalf("expected counter %d after concurrent failures, got %d", workers, got)
	}
	if fx.accounts.lockedUntil() == nil {
		t.Fatal("expected lock after reaching the threshold")
	}
	if got := len(fx.ledger.all()); got != workers {
		t.Fatalf("expected %d ledger entries, got %d", workers, got)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)

	if err := fx.service.Logout(context.Background(), "refresh-token"); err != nil {
		t.Fatalf("expected logout to succeed, got %v", err)
	}

	if len(fx.issuer.revoked) != 1 || fx.issuer.revoked[0] != "refresh-token" {
		t.Fatalf("expected the presented token to be revoked, got %v", fx.issuer.revoked)
	}
}

func TestLogoutSurfacesRevocationFailure(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	fx := newAuthFixture(activeAccount("amara@example.com"), now)

	sentinel := errors.New("token not recognised")
	fx.issuer.revokeErr = sentinel

	if err := fx.service.Logout(context.Background(), "refresh-token"); !errors.Is(err, sentinel) {
		t.Fatalf("expected revocation failure to surface, got %v", err)
	}
}
