package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pofara/identity-service/internal/core/port"
)

// UnitOfWork implements port.UnitOfWork on a pgx pool. Repositories
// handed to the callback share one transaction, so an authentication
// attempt's counter mutation and ledger append commit or roll back
// together.
type UnitOfWork struct {
	pool     *pgxpool.Pool
	accounts *AccountRepository
	attempts *AttemptLedger
}

var _ port.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork constructs a UnitOfWork over the shared repositories.
func NewUnitOfWork(pool *pgxpool.Pool, accounts *AccountRepository, attempts *AttemptLedger) *UnitOfWork {
	return &UnitOfWork{
		pool:     pool,
		accounts: accounts,
		attempts: attempts,
	}
}

// WithinTx runs fn with transaction-bound repositories.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(stores port.AuthTxStores) error) error {
	err := pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(port.AuthTxStores{
			Accounts: u.accounts.WithTx(tx),
			Attempts: u.attempts.WithTx(tx),
		})
	})
	if err != nil {
		return fmt.Errorf("auth transaction: %w", err)
	}
	return nil
}
