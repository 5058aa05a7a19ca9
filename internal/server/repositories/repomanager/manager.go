package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/evidencekeeper/internal/dbx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/cases"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/checksumjobs"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/executions"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/vaults"
)

// RepositoryManager vends repositories bound to a DBTX.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Vaults(db dbx.DBTX) vaults.Repository
	Cases(db dbx.DBTX) cases.Repository
	Executions(db dbx.DBTX) executions.Repository
	Nodes(db dbx.DBTX) nodes.Repository
	ChecksumJobs(db dbx.DBTX) checksumjobs.Repository
}

// Repositories is one consistent set of repositories, either bound to the
// database directly or to a single transaction.
type Repositories interface {
	Vaults() vaults.Repository
	Cases() cases.Repository
	Executions() executions.Repository
	Nodes() nodes.Repository
	ChecksumJobs() checksumjobs.Repository
}

// Store is the catalog persistence entry point used by the services.
type Store interface {
	Repos() Repositories
	// RunInTx runs fn as one unit of work: every write made through the
	// repositories passed to fn commits or none does.
	RunInTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	RunMigrations(ctx context.Context) error
	Close() error
}
