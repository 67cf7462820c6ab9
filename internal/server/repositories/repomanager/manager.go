package repomanager

import (
	"context"
	"database/sql"

	"github.com/artelie/backend/internal/dbx"
	"github.com/artelie/backend/internal/server/repositories/accounts"
	"github.com/artelie/backend/internal/server/repositories/revocations"
)

// RepositoryManager vends repositories bound to a DBTX so services can run
// them either directly on the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Revocations(db dbx.DBTX) revocations.Repository
}
