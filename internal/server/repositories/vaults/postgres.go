// Package vaults persists vault records and their object counters.
package vaults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/dbx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a vault. An empty ID is filled with a fresh UUID.
func (r *PostgresRepository) Create(ctx context.Context, vault *models.Vault) (*models.Vault, error) {
	if vault.ID == "" {
		vault.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO vaults (id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, vault.ID, vault.Name, vault.Description).Scan(&vault.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return vault, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Vault, error) {
	query :=
		`SELECT id, name, description, object_count, total_size, created_at FROM vaults
		 WHERE id = $1
		 `

	v := &models.Vault{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.Name, &v.Description, &v.ObjectCount, &v.TotalSize, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return v, nil
}

func (r *PostgresRepository) AddCounters(ctx context.Context, id string, objects, bytes int64) error {
	query :=
		`UPDATE vaults SET object_count = object_count + $2, total_size = total_size + $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, objects, bytes)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
