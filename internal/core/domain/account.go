package domain

import "time"

// AccountStatus enumerates possible account states.
type AccountStatus string

const (
	AccountStatusPending     AccountStatus = "pending"
	AccountStatusActive      AccountStatus = "active"
	AccountStatusSuspended   AccountStatus = "suspended"
	AccountStatusDeactivated AccountStatus = "deactivated"
)

// AccountRole enumerates the roles an account can hold.
type AccountRole string

const (
	RoleUser    AccountRole = "user"
	RoleAdmin   AccountRole = "admin"
	RoleSupport AccountRole = "support"
)

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Phone               *string
	Role                AccountRole
	Status              AccountStatus
	IsActive            bool
	EmailVerified       bool
	PhoneVerified       bool
	TermsAccepted       bool
	TermsAcceptedAt     *time.Time
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	LastLogin           *time.Time
	LastLoginIP         *string
	PasswordChangedAt   time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is locked at the given instant.
// Lock state is derived from AccountLockedUntil; expired locks need no
// cleanup write to become inactive.
func (a *Account) IsLocked(now time.Time) bool {
	return a.AccountLockedUntil != nil && now.Before(*a.AccountLockedUntil)
}

// CanLogin reports whether the account is eligible to authenticate at
// the given instant.
func (a *Account) CanLogin(now time.Time) bool {
	return a.IsActive &&
		a.Status == AccountStatusActive &&
		!a.IsLocked(now) &&
		a.TermsAccepted
}

// FullName joins the account holder's names for display purposes.
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	default:
		return a.FirstName + " " + a.LastName
	}
}
