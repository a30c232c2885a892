package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/timecapsule/internal/dbx"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/capsules"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/messages"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs against *sql.DB or inside a *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Capsules(db dbx.DBTX) capsules.Repository
	Messages(db dbx.DBTX) messages.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
