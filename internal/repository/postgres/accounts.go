package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/core/port"
	"github.com/pofara/identity-service/internal/repository"
)

const accountColumns = `id, email, password_hash, first_name, last_name, phone, role, status,
	is_active, email_verified, phone_verified, terms_accepted, terms_accepted_at,
	failed_login_attempts, account_locked_until, last_login, last_login_ip,
	password_changed_at, created_at, updated_at`

// AccountRepository implements port.AccountRepository on PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository wires a PostgreSQL-backed account repository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Insert("identity.accounts").
		Columns(
			"id",
			"email",
			"password_hash",
			"first_name",
			"last_name",
			"phone",
			"role",
			"status",
			"is_active",
			"email_verified",
			"phone_verified",
			"terms_accepted",
			"terms_accepted_at",
			"failed_login_attempts",
			"account_locked_until",
			"password_changed_at",
			"created_at",
			"updated_at",
		).
		Values(
			account.ID,
			strings.ToLower(account.Email),
			account.PasswordHash,
			account.FirstName,
			account.LastName,
			account.Phone,
			account.Role,
			account.Status,
			account.IsActive,
			account.EmailVerified,
			account.PhoneVerified,
			account.TermsAccepted,
			account.TermsAcceptedAt,
			account.FailedLoginAttempts,
			account.AccountLockedUntil,
			account.PasswordChangedAt,
			account.CreatedAt,
			account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns).
		From("identity.accounts").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves an account by email, case-insensitively.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns).
		From("identity.accounts").
		Where(squirrel.Expr("LOWER(email) = LOWER(?)", email)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// RecordFailedAttempt increments the failure counter and applies the
// lock in one statement. The CASE runs against the row's current value
// under the row lock the UPDATE takes, so concurrent attempts cannot
// lose increments or apply divergent locks.
func (r *AccountRepository) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (*port.FailedAttemptResult, error) {
	const stmt = `
		UPDATE identity.accounts
		SET failed_login_attempts = failed_login_attempts + 1,
			account_locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN $3
				ELSE account_locked_until
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, account_locked_until`

	var (
		attempts    int
		lockedUntil sql.NullTime
	)

	if err := r.exec.QueryRow(ctx, stmt, id, threshold, lockUntil).Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	result := &port.FailedAttemptResult{
		FailedLoginAttempts: attempts,
		LockApplied:         attempts >= threshold,
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		result.AccountLockedUntil = &t
	}

	return result, nil
}

// RecordSuccess clears protection state after a successful login.
func (r *AccountRepository) RecordSuccess(ctx context.Context, id string, ip *string, at time.Time) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("failed_login_attempts", 0).
		Set("account_locked_until", nil).
		Set("last_login", at).
		Set("last_login_ip", ip).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record success sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Unlock resets the lock timestamp and failure counter.
func (r *AccountRepository) Unlock(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("failed_login_attempts", 0).
		Set("account_locked_until", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unlock sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateStatus transitions the account to a new status.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	stmt, args, err := r.builder.Update("identity.accounts").
		Set("status", status).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account         domain.Account
		phone           sql.NullString
		termsAcceptedAt sql.NullTime
		lockedUntil     sql.NullTime
		lastLogin       sql.NullTime
		lastLoginIP     sql.NullString
	)

	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&phone,
		&account.Role,
		&account.Status,
		&account.IsActive,
		&account.EmailVerified,
		&account.PhoneVerified,
		&account.TermsAccepted,
		&termsAcceptedAt,
		&account.FailedLoginAttempts,
		&lockedUntil,
		&lastLogin,
		&lastLoginIP,
		&account.PasswordChangedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if phone.Valid {
		account.Phone = &phone.String
	}
	if termsAcceptedAt.Valid {
		account.TermsAcceptedAt = &termsAcceptedAt.Time
	}
	if lockedUntil.Valid {
		account.AccountLockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		account.LastLogin = &lastLogin.Time
	}
	if lastLoginIP.Valid {
		account.LastLoginIP = &lastLoginIP.String
	}

	return &account, nil
}
