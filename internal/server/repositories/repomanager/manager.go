package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keepotp/internal/dbx"
	"github.com/dmitrijs2005/keepotp/internal/server/repositories/users"
	"github.com/dmitrijs2005/keepotp/internal/server/repositories/vaults"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Vaults(db dbx.DBTX) vaults.Repository
}
