package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/core/port"
	"github.com/pofara/identity-service/internal/repository"
)

// AttemptLedger implements port.AttemptLedger on PostgreSQL. The
// login_attempts table is append-only: this type exposes no update or
// delete operations.
type AttemptLedger struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AttemptLedger = (*AttemptLedger)(nil)

// NewAttemptLedger wires a PostgreSQL-backed attempt ledger.
func NewAttemptLedger(pool *pgxpool.Pool) *AttemptLedger {
	return &AttemptLedger{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a ledger instance executing within the provided transaction.
func (r *AttemptLedger) WithTx(tx pgx.Tx) *AttemptLedger {
	if tx == nil {
		return r
	}
	return &AttemptLedger{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Append inserts a new ledger entry.
func (r *AttemptLedger) Append(ctx context.Context, attempt domain.LoginAttempt) error {
	stmt, args, err := r.builder.Insert("identity.login_attempts").
		Columns(
			"id",
			"account_id",
			"email",
			"ip_address",
			"user_agent",
			"outcome",
			"failure_reason",
			"created_at",
		).
		Values(
			attempt.ID,
			attempt.AccountID,
			strings.ToLower(attempt.Email),
			attempt.IP,
			attempt.UserAgent,
			attempt.Outcome,
			attempt.FailureReason,
			attempt.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}

	return nil
}

// List returns ledger entries matching the filter, newest first.
func (r *AttemptLedger) List(ctx context.Context, filter domain.AttemptFilter) ([]domain.LoginAttempt, error) {
	query := r.builder.Select(
		"id",
		"account_id",
		"email",
		"ip_address",
		"user_agent",
		"outcome",
		"failure_reason",
		"created_at",
	).
		From("identity.login_attempts").
		OrderBy("created_at DESC")

	query = applyAttemptFilter(query, filter)

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list login attempts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.LoginAttempt
	for rows.Next() {
		var (
			attempt   domain.LoginAttempt
			accountID sql.NullString
			ip        sql.NullString
			userAgent sql.NullString
		)

		if err := rows.Scan(
			&attempt.ID,
			&accountID,
			&attempt.Email,
			&ip,
			&userAgent,
			&attempt.Outcome,
			&attempt.FailureReason,
			&attempt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan login attempt: %w", err)
		}

		if accountID.Valid {
			attempt.AccountID = &accountID.String
		}
		if ip.Valid {
			attempt.IP = &ip.String
		}
		if userAgent.Valid {
			attempt.UserAgent = &userAgent.String
		}

		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login attempts: %w", err)
	}

	return attempts, nil
}

// CountByFilter returns the number of ledger entries matching the filter.
func (r *AttemptLedger) CountByFilter(ctx context.Context, filter domain.AttemptFilter) (int, error) {
	query := r.builder.Select("COUNT(*)").From("identity.login_attempts")
	query = applyAttemptFilter(query, filter)

	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count login attempts sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("count login attempts: %w", err)
	}

	return count, nil
}

func applyAttemptFilter(query squirrel.SelectBuilder, filter domain.AttemptFilter) squirrel.SelectBuilder {
	if filter.AccountID != nil {
		query = query.Where(squirrel.Eq{"account_id": *filter.AccountID})
	}
	if filter.Email != nil {
		query = query.Where(squirrel.Expr("LOWER(email) = LOWER(?)", *filter.Email))
	}
	if filter.Outcome != nil {
		query = query.Where(squirrel.Eq{"outcome": *filter.Outcome})
	}
	if filter.From != nil {
		query = query.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		query = query.Where(squirrel.Lt{"created_at": *filter.To})
	}
	return query
}
