package domain

import "time"

// AttemptOutcome classifies a login attempt in the audit ledger.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailed  AttemptOutcome = "failed"
	AttemptBlocked AttemptOutcome = "blocked"
)

// Failure reasons recorded alongside failed attempts.
const (
	ReasonUserNotFound       = "User not found"
	ReasonInvalidCredentials = "Invalid credentials"
	ReasonAccountLocked      = "Account locked"
	ReasonAccountNotEligible = "Account not eligible"
)

// LoginAttempt is an append-only ledger entry describing a single
// authentication attempt. AccountID is nil when the submitted email
// matched no account.
type LoginAttempt struct {
	ID            string
	AccountID     *string
	Email         string
	IP            *string
	UserAgent     *string
	Outcome       AttemptOutcome
	FailureReason string
	CreatedAt     time.Time
}

// AttemptFilter narrows ledger listings.
type AttemptFilter struct {
	AccountID *string
	Email     *string
	Outcome   *AttemptOutcome
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
