package port

import "context"

// AuthTxStores bundles the repositories that participate in a single
// authentication transaction.
type AuthTxStores struct {
	Accounts AccountRepository
	Attempts AttemptLedger
}

// UnitOfWork runs fn with repositories bound to one database
// transaction. The transaction commits when fn returns nil and rolls
// back otherwise, so every write an authentication attempt performs
// lands atomically.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(stores AuthTxStores) error) error
}
