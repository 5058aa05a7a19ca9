// Package nodes persists the folder and leaf records of vault and case trees.
package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/dbx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const nodeColumns = `id, owner_kind, owner_id, name, path, is_file, size, content_type, content_hash,
	execution_id, object_key, hold_status, source_vault_id, source_file_id, child_count, scoped_cases,
	version, created_at, updated_at, object_version`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*models.Node, error) {
	var (
		n      models.Node
		kind   string
		hold   string
		scoped []byte
	)
	err := row.Scan(&n.ID, &kind, &n.Owner.ID, &n.Name, &n.Path, &n.IsFile, &n.Size, &n.ContentType,
		&n.ContentHash, &n.ExecutionID, &n.ObjectKey, &hold, &n.SourceVaultID, &n.SourceFileID,
		&n.ChildCount, &scoped, &n.Version, &n.CreatedAt, &n.UpdatedAt, &n.ObjectVersion)
	if err != nil {
		return nil, err
	}
	n.Owner.Kind = models.OwnerKind(kind)
	n.HoldStatus = models.HoldStatus(hold)
	if len(scoped) > 0 {
		if err := json.Unmarshal(scoped, &n.ScopedCases); err != nil {
			return nil, fmt.Errorf("scoped cases: %w", err)
		}
	}
	return &n, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Node, error) {
	n, err := scanNode(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select nodes: %w", err)
	}
	defer rows.Close()

	var result []*models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, owner models.Owner, path, name string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
		WHERE owner_kind = $1 AND owner_id = $2 AND path = $3 AND name = $4`
	return r.getOne(ctx, query, string(owner.Kind), owner.ID, path, name)
}

func (r *PostgresRepository) GetByID(ctx context.Context, owner models.Owner, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
		WHERE owner_kind = $1 AND owner_id = $2 AND id = $3`
	return r.getOne(ctx, query, string(owner.Kind), owner.ID, id)
}

func (r *PostgresRepository) GetByObjectKey(ctx context.Context, vaultID, objectKey string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
		WHERE owner_kind = 'vault' AND owner_id = $1 AND object_key = $2 AND is_file`
	return r.getOne(ctx, query, vaultID, objectKey)
}

func (r *PostgresRepository) FindBySource(ctx context.Context, caseID, sourceFileID string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
		WHERE owner_kind = 'case' AND owner_id = $1 AND source_file_id = $2`
	return r.getOne(ctx, query, caseID, sourceFileID)
}

func (r *PostgresRepository) ListChildren(ctx context.Context, owner models.Owner, path, afterName string, limit int) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
		WHERE owner_kind = $1 AND owner_id = $2 AND path = $3 AND name > $4 AND (is_file OR child_count > 0)
		ORDER BY name
		LIMIT $5`
	return r.list(ctx, query, string(owner.Kind), owner.ID, path, afterName, limit)
}

func (r *PostgresRepository) ListByCreation(ctx context.Context, owner models.Owner, after *CreationCursor, limit int) ([]*models.Node, error) {
	if after == nil {
		query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
			WHERE owner_kind = $1 AND owner_id = $2 AND is_file
			ORDER BY created_at, id
			LIMIT $3`
		return r.list(ctx, query, string(owner.Kind), owner.ID, limit)
	}
	query := `SELECT ` + nodeColumns + ` FROM catalog_nodes
		WHERE owner_kind = $1 AND owner_id = $2 AND is_file AND (created_at, id) > ($3, $4)
		ORDER BY created_at, id
		LIMIT $5`
	return r.list(ctx, query, string(owner.Kind), owner.ID, after.CreatedAt, after.ID, limit)
}

func (r *PostgresRepository) InsertFolder(ctx context.Context, owner models.Owner, path, name string) (bool, error) {
	query := `INSERT INTO catalog_nodes (id, owner_kind, owner_id, name, path, is_file, hold_status)
		VALUES ($1, $2, $3, $4, $5, false, 'none')
		ON CONFLICT (owner_kind, owner_id, path, name) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, uuid.NewString(), string(owner.Kind), owner.ID, name, path)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// InsertLeaf inserts n as a new leaf. A concurrent insert of the same
// (path, name) surfaces as common.ErrVersionConflict.
func (r *PostgresRepository) InsertLeaf(ctx context.Context, n *models.Node) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	scoped, err := json.Marshal(scopedOrEmpty(n.ScopedCases))
	if err != nil {
		return fmt.Errorf("scoped cases: %w", err)
	}

	query := `INSERT INTO catalog_nodes (id, owner_kind, owner_id, name, path, is_file, size, content_type,
			content_hash, execution_id, object_key, hold_status, source_vault_id, source_file_id, scoped_cases,
			object_version, version)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
		ON CONFLICT (owner_kind, owner_id, path, name) DO NOTHING
		RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query, n.ID, string(n.Owner.Kind), n.Owner.ID, n.Name, n.Path,
		n.Size, n.ContentType, n.ContentHash, n.ExecutionID, n.ObjectKey, string(n.HoldStatus),
		n.SourceVaultID, n.SourceFileID, string(scoped), n.ObjectVersion).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n.IsFile = true
	n.Version = 1
	return nil
}

func (r *PostgresRepository) UpdateLeaf(ctx context.Context, n *models.Node) error {
	query := `UPDATE catalog_nodes SET size = $3, content_type = $4, content_hash = $5, execution_id = $6,
			object_key = $7, hold_status = $8, source_vault_id = $9, source_file_id = $10,
			object_version = $11, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND is_file`

	res, err := r.db.ExecContext(ctx, query, n.ID, n.Version, n.Size, n.ContentType, n.ContentHash,
		n.ExecutionID, n.ObjectKey, string(n.HoldStatus), n.SourceVaultID, n.SourceFileID, n.ObjectVersion)
	if err := versioned(res, err); err != nil {
		return err
	}
	n.Version++
	return nil
}

func (r *PostgresRepository) AddChildCount(ctx context.Context, owner models.Owner, path, name string, delta int64) error {
	query := `UPDATE catalog_nodes SET child_count = child_count + $5, updated_at = now()
		WHERE owner_kind = $1 AND owner_id = $2 AND path = $3 AND name = $4 AND NOT is_file`

	res, err := r.db.ExecContext(ctx, query, string(owner.Kind), owner.ID, path, name, delta)
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

func (r *PostgresRepository) DeleteLeaf(ctx context.Context, n *models.Node) error {
	query := `DELETE FROM catalog_nodes WHERE id = $1 AND version = $2 AND is_file`
	res, err := r.db.ExecContext(ctx, query, n.ID, n.Version)
	return versioned(res, err)
}

func (r *PostgresRepository) DeleteFolderIfEmpty(ctx context.Context, owner models.Owner, path, name string) (bool, error) {
	query := `DELETE FROM catalog_nodes
		WHERE owner_kind = $1 AND owner_id = $2 AND path = $3 AND name = $4 AND NOT is_file AND child_count = 0`

	res, err := r.db.ExecContext(ctx, query, string(owner.Kind), owner.ID, path, name)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetScopedCases(ctx context.Context, n *models.Node) error {
	scoped, err := json.Marshal(scopedOrEmpty(n.ScopedCases))
	if err != nil {
		return fmt.Errorf("scoped cases: %w", err)
	}

	query := `UPDATE catalog_nodes SET scoped_cases = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`

	res, err := r.db.ExecContext(ctx, query, n.ID, n.Version, string(scoped))
	if err := versioned(res, err); err != nil {
		return err
	}
	n.Version++
	return nil
}

func (r *PostgresRepository) SetContentHash(ctx context.Context, id, hash string) (bool, error) {
	query := `UPDATE catalog_nodes SET content_hash = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND content_hash = ''`

	res, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// SetHoldStatus records status for the object version the leaf still
// points at. A leaf moved to another version, or gone, reports
// common.ErrVersionConflict.
func (r *PostgresRepository) SetHoldStatus(ctx context.Context, id, objectVersion string, status models.HoldStatus) error {
	query := `UPDATE catalog_nodes SET hold_status = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND object_version = $3`

	res, err := r.db.ExecContext(ctx, query, id, string(status), objectVersion)
	return versioned(res, err)
}

func (r *PostgresRepository) SetCaseFileHashes(ctx context.Context, sourceFileID, hash string) error {
	query := `UPDATE catalog_nodes SET content_hash = $2, version = version + 1, updated_at = now()
		WHERE owner_kind = 'case' AND source_file_id = $1 AND content_hash <> $2`

	if _, err := r.db.ExecContext(ctx, query, sourceFileID, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func versioned(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func scopedOrEmpty(s []models.ScopedCase) []models.ScopedCase {
	if s == nil {
		return []models.ScopedCase{}
	}
	return s
}
