// Package repomanager vends repository implementations bound to a database
// handle, either the pooled *sql.DB or a transaction, and exposes the
// schema migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/server/repositories/credentials"
	"github.com/dbelyaev/authcore/internal/server/repositories/sessions"
	"github.com/dbelyaev/authcore/internal/server/repositories/trusteddevices"
	"github.com/dbelyaev/authcore/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	TrustedDevices(db dbx.DBTX) trusteddevices.Repository
}
