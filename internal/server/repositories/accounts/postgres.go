package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/dbx"
	"github.com/artelie/backend/internal/server/models"
	"github.com/google/uuid"
)

const accountColumns = `id, username, email, full_name, password_hash,
		is_active, is_verified, is_staff, is_superuser,
		verification_token, verification_token_created_at,
		failed_login_attempts, locked_until, created_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a         models.Account
		token     sql.NullString
		issuedAt  sql.NullTime
		lockedTil sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FullName, &a.PasswordHash,
		&a.IsActive, &a.IsVerified, &a.IsStaff, &a.IsSuperuser,
		&token, &issuedAt, &a.FailedLoginAttempts, &lockedTil, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if token.Valid {
		a.VerificationToken = &token.String
	}
	if issuedAt.Valid {
		a.VerificationTokenCreatedAt = &issuedAt.Time
	}
	if lockedTil.Valid {
		a.LockedUntil = &lockedTil.Time
	}
	return &a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO users (username, email, full_name, password_hash,
		    is_active, is_verified, is_staff, is_superuser,
		    verification_token, verification_token_created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		a.Username, a.Email, a.FullName, a.PasswordHash,
		a.IsActive, a.IsVerified, a.IsStaff, a.IsSuperuser,
		a.VerificationToken, a.VerificationTokenCreatedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			return nil, conflictError(constraint)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func conflictError(constraint string) error {
	v := common.NewValidationError()
	switch constraint {
	case "users_email_key":
		v.Add("email", "a user with this email already exists")
	case "users_username_key":
		v.Add("username", "this username is already taken")
	default:
		v.Add("non_field_errors", "account already exists")
	}
	return v
}

// validID reports whether id can name a row. Anything else would make
// Postgres reject the uuid parameter, so it is treated as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1 FOR UPDATE`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByVerificationToken(ctx context.Context, token string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE verification_token = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return found, nil
}

func (r *PostgresRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id, token string, issuedAt time.Time) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	query :=
		`UPDATE users SET verification_token = $2, verification_token_created_at = $3
		 WHERE id = $1 AND is_verified = FALSE AND deactivated_at IS NULL`
	return r.execOne(ctx, query, id, token, issuedAt)
}

func (r *PostgresRepository) ActivateByToken(ctx context.Context, token string, notBefore time.Time) (*models.Account, error) {
	query :=
		`UPDATE users SET is_active = TRUE, is_verified = TRUE,
		    verification_token = NULL, verification_token_created_at = NULL
		 WHERE verification_token = $1 AND verification_token_created_at >= $2
		 RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(ctx, query, token, notBefore))
}

func (r *PostgresRepository) SaveLoginState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	query :=
		`UPDATE users SET failed_login_attempts = $2, locked_until = $3
		 WHERE id = $1`
	return r.execOne(ctx, query, id, failedAttempts, lockedUntil)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	query :=
		`UPDATE users SET password_hash = $3
		 WHERE id = $1 AND password_hash = $2`
	return r.execOne(ctx, query, id, oldHash, newHash)
}

func (r *PostgresRepository) UpdateFullName(ctx context.Context, id, fullName string) (*models.Account, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	query := `UPDATE users SET full_name = $2 WHERE id = $1 RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRowContext(ctx, query, id, fullName))
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	query :=
		`UPDATE users SET is_active = FALSE, deactivated_at = COALESCE(deactivated_at, now()),
		    verification_token = NULL, verification_token_created_at = NULL
		 WHERE id = $1`
	return r.execOne(ctx, query, id)
}
