package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/entity"
)

// schema: pkg/database/migrations/00001_create_accounts.sql

const uniqueViolation = "23505"

// PostgresRepo provides data access for the accounts table using sqlx.
type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const accountColumns = `id, email, password_hash, name, address, phone, role, is_admin, created_at, updated_at`

// Create inserts a new account row. A unique violation on email yields ErrDuplicate.
func (r *PostgresRepo) Create(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO accounts (` + accountColumns + `)
		VALUES (:id, :email, :password_hash, :name, :address, :phone, :role, :is_admin, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, a); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByEmail matches email exactly (case-sensitive).
func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return r.get(ctx, q, email)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return r.get(ctx, q, id)
}

func (r *PostgresRepo) get(ctx context.Context, q string, arg any) (*entity.Account, error) {
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}
