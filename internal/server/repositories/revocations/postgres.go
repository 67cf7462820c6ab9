package revocations

import (
	"context"
	"fmt"

	"github.com/artelie/backend/internal/dbx"
	"github.com/artelie/backend/internal/server/models"
)

// PostgresRepository keeps revocations in the token_blacklist table. Rows are
// never deleted here; purging rows past expires_at is a maintenance job.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Revoke(ctx context.Context, rev models.Revocation) (bool, error) {
	query := `
		INSERT INTO token_blacklist (jti, user_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, rev.JTI, rev.UserID, rev.ExpiresAt, rev.RevokedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`

	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return revoked, nil
}
