package port

import (
	"context"

	"github.com/pofara/identity-service/internal/core/domain"
)

// AttemptLedger appends to and reads the append-only login attempt
// ledger. Entries are never mutated once written.
type AttemptLedger interface {
	Append(ctx context.Context, attempt domain.LoginAttempt) error
	List(ctx context.Context, filter domain.AttemptFilter) ([]domain.LoginAttempt, error)
	CountByFilter(ctx context.Context, filter domain.AttemptFilter) (int, error)
}
