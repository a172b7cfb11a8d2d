package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the email or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is locked at the time of the attempt.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotEligible indicates the credentials are correct but the account cannot log in.
	ErrAccountNotEligible = errors.New("account not eligible")
	// ErrStoreUnavailable indicates the credential store or ledger failed.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrTokenIssuerUnavailable indicates token issuance failed after authentication.
	ErrTokenIssuerUnavailable = errors.New("token issuer unavailable")
)

// AuthErrorKind discriminates authentication failures.
type AuthErrorKind string

const (
	KindInvalidCredentials     AuthErrorKind = "invalid_credentials"
	KindAccountLocked          AuthErrorKind = "account_locked"
	KindAccountNotEligible     AuthErrorKind = "account_not_eligible"
	KindStoreUnavailable       AuthErrorKind = "store_unavailable"
	KindTokenIssuerUnavailable AuthErrorKind = "token_issuer_unavailable"
)

// AuthError is the failure result of an authentication attempt. It
// carries a machine-readable kind and, for locked accounts, the lock
// expiry. It unwraps to the per-kind sentinel so callers can branch
// with errors.Is.
type AuthError struct {
	Kind        AuthErrorKind
	LockedUntil *time.Time
	cause       error
}

// Error implements error.
func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	base := e.sentinel().Error()
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Unwrap exposes the kind sentinel and the underlying cause.
func (e *AuthError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{e.sentinel()}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func (e *AuthError) sentinel() error {
	switch e.Kind {
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindAccountLocked:
		return ErrAccountLocked
	case KindAccountNotEligible:
		return ErrAccountNotEligible
	case KindStoreUnavailable:
		return ErrStoreUnavailable
	case KindTokenIssuerUnavailable:
		return ErrTokenIssuerUnavailable
	default:
		return errors.New("authentication failed")
	}
}

func newAuthError(kind AuthErrorKind, cause error) *AuthError {
	return &AuthError{Kind: kind, cause: cause}
}

func newLockedError(lockedUntil *time.Time) *AuthError {
	return &AuthError{Kind: KindAccountLocked, LockedUntil: lockedUntil}
}
