// Package repomanager wires the catalog repositories to a storage backend:
// PostgreSQL (with goose migrations) or the in-memory store.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/evidencekeeper/internal/dbx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/cases"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/checksumjobs"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/executions"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/vaults"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Vaults(db dbx.DBTX) vaults.Repository {
	return vaults.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Cases(db dbx.DBTX) cases.Repository {
	return cases.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Executions(db dbx.DBTX) executions.Repository {
	return executions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Nodes(db dbx.DBTX) nodes.Repository {
	return nodes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ChecksumJobs(db dbx.DBTX) checksumjobs.Repository {
	return checksumjobs.NewPostgresRepository(db)
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
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

type boundRepos struct {
	m  RepositoryManager
	db dbx.DBTX
}

func (b boundRepos) Vaults() vaults.Repository             { return b.m.Vaults(b.db) }
func (b boundRepos) Cases() cases.Repository               { return b.m.Cases(b.db) }
func (b boundRepos) Executions() executions.Repository     { return b.m.Executions(b.db) }
func (b boundRepos) Nodes() nodes.Repository               { return b.m.Nodes(b.db) }
func (b boundRepos) ChecksumJobs() checksumjobs.Repository { return b.m.ChecksumJobs(b.db) }

// PostgresStore runs units of work as database transactions.
type PostgresStore struct {
	db      *sql.DB
	manager RepositoryManager
}

func NewPostgresStore(db *sql.DB, manager RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, manager: manager}
}

// OpenPostgresStore opens a pgx connection pool for dsn.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(db, NewPostgresRepositoryManager()), nil
}

func (s *PostgresStore) Repos() Repositories {
	return boundRepos{m: s.manager, db: s.db}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, boundRepos{m: s.manager, db: tx})
	})
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	return s.manager.RunMigrations(ctx, s.db)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
