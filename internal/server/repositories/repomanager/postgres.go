// Package repomanager provides the RepositoryManager implementations, wiring
// repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/artelie/backend/internal/dbx"
	"github.com/artelie/backend/internal/server/migrations"
	"github.com/artelie/backend/internal/server/repositories/accounts"
	"github.com/artelie/backend/internal/server/repositories/revocations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories. When a
// Redis client is attached the revocation set lives in Redis instead.
type PostgresRepositoryManager struct {
	redis       redis.UniversalClient
	redisPrefix string
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// Revocations returns the revocation set. The Redis variant ignores db.
func (m *PostgresRepositoryManager) Revocations(db dbx.DBTX) revocations.Repository {
	if m.redis != nil {
		return revocations.NewRedisRepository(m.redis, m.redisPrefix)
	}
	return revocations.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// Option customises a PostgresRepositoryManager.
type Option func(*PostgresRepositoryManager)

// WithRedisRevocations keeps revoked refresh tokens in Redis under prefix.
func WithRedisRevocations(client redis.UniversalClient, prefix string) Option {
	return func(m *PostgresRepositoryManager) {
		m.redis = client
		m.redisPrefix = prefix
	}
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...Option) RepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, o := range opts {
		o(m)
	}
	return m
}
