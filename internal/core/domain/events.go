package domain

import "time"

// AccountRegisteredEvent represents the payload for identity.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Email        string
	FirstName    string
	LastName     string
	Role         string
	Status       string
	RegisteredAt time.Time
	IPAddress    *string
	Metadata     map[string]any
}

// AccountLockedEvent represents the payload for identity.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	AccountID      string
	Email          string
	FailedAttempts int
	LockedUntil    time.Time
	LockedAt       time.Time
	IPAddress      *string
	Metadata       map[string]any
}

// AccountUnlockedEvent represents the payload for identity.account.unlocked messages.
type AccountUnlockedEvent struct {
	EventID    string
	AccountID  string
	Email      string
	UnlockedBy string
	UnlockedAt time.Time
	Metadata   map[string]any
}

// PasswordChangedEvent represents the payload for identity.account.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	ChangedBy string
	Metadata  map[string]any
}
