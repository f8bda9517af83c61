package repomanager

import (
	"context"
	"database/sql"

	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/server/migrations"
	"github.com/dbelyaev/authcore/internal/server/repositories/credentials"
	"github.com/dbelyaev/authcore/internal/server/repositories/sessions"
	"github.com/dbelyaev/authcore/internal/server/repositories/trusteddevices"
	"github.com/dbelyaev/authcore/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories and runs
// the embedded goose migrations.
type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Credentials(db dbx.DBTX) credentials.Repository {
	return credentials.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) TrustedDevices(db dbx.DBTX) trusteddevices.Repository {
	return trusteddevices.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
