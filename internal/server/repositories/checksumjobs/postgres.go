// Package checksumjobs persists per-object checksum accumulation state.
package checksumjobs

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

func (r *PostgresRepository) Get(ctx context.Context, objectKey string) (*models.ChecksumJob, error) {
	query :=
		`SELECT object_key, vault_id, next_part_index, state, bytes_folded, content_type, status, version, created_at, updated_at
		 FROM checksum_jobs
		 WHERE object_key = $1
		 `

	var (
		job    models.ChecksumJob
		status string
	)
	err := r.db.QueryRowContext(ctx, query, objectKey).Scan(&job.ObjectKey, &job.VaultID, &job.NextPartIndex,
		&job.State, &job.BytesFolded, &job.ContentType, &status, &job.Version, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}

func (r *PostgresRepository) Create(ctx context.Context, job *models.ChecksumJob) error {
	query :=
		`INSERT INTO checksum_jobs (object_key, vault_id, next_part_index, state, bytes_folded, content_type, status, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		 ON CONFLICT (object_key) DO NOTHING
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, job.ObjectKey, job.VaultID, job.NextPartIndex, job.State,
		job.BytesFolded, job.ContentType, string(job.Status)).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	job.Version = 1
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, job *models.ChecksumJob) error {
	query :=
		`UPDATE checksum_jobs SET next_part_index = $3, state = $4, bytes_folded = $5, content_type = $6,
			status = $7, version = version + 1, updated_at = now()
		 WHERE object_key = $1 AND version = $2
		 `

	res, err := r.db.ExecContext(ctx, query, job.ObjectKey, job.Version, job.NextPartIndex, job.State,
		job.BytesFolded, job.ContentType, string(job.Status))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		job.Version++
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Delete(ctx context.Context, objectKey string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM checksum_jobs WHERE object_key = $1`, objectKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
