// Package executions persists ingestion runs and their destination folders.
package executions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/dbx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.Execution) error {
	query :=
		`INSERT INTO executions (id, vault_id, destination_folder)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, e.ID, e.VaultID, e.DestinationFolder); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Execution, error) {
	query :=
		`SELECT id, vault_id, destination_folder, created_at FROM executions
		 WHERE id = $1
		 `

	e := &models.Execution{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.VaultID, &e.DestinationFolder, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}
