package nodes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

// CreationCursor marks the last node of a creation-order page.
type CreationCursor struct {
	CreatedAt time.Time
	ID        string
}

// Repository stores the folder and leaf records of vault and case trees.
//
// Writes that may race are conditional: versioned updates and deletes report
// common.ErrVersionConflict when the row changed underneath the caller.
type Repository interface {
	Get(ctx context.Context, owner models.Owner, path, name string) (*models.Node, error)
	GetByID(ctx context.Context, owner models.Owner, id string) (*models.Node, error)
	GetByObjectKey(ctx context.Context, vaultID, objectKey string) (*models.Node, error)
	FindBySource(ctx context.Context, caseID, sourceFileID string) (*models.Node, error)

	// ListChildren returns up to limit children of path named after afterName,
	// ordered by name. Folders without children are skipped.
	ListChildren(ctx context.Context, owner models.Owner, path, afterName string, limit int) ([]*models.Node, error)
	// ListByCreation returns leaves in creation order, starting after the cursor.
	ListByCreation(ctx context.Context, owner models.Owner, after *CreationCursor, limit int) ([]*models.Node, error)

	// InsertFolder inserts a folder record unless (path, name) is taken and
	// reports whether it was created.
	InsertFolder(ctx context.Context, owner models.Owner, path, name string) (bool, error)
	InsertLeaf(ctx context.Context, n *models.Node) error
	UpdateLeaf(ctx context.Context, n *models.Node) error
	AddChildCount(ctx context.Context, owner models.Owner, path, name string, delta int64) error
	DeleteLeaf(ctx context.Context, n *models.Node) error
	DeleteFolderIfEmpty(ctx context.Context, owner models.Owner, path, name string) (bool, error)

	SetScopedCases(ctx context.Context, n *models.Node) error
	// SetContentHash stores hash unless the node already has one and
	// reports whether it was stored.
	SetContentHash(ctx context.Context, id, hash string) (bool, error)
	// SetHoldStatus sets the hold status of a leaf still at objectVersion;
	// otherwise it fails with common.ErrVersionConflict.
	SetHoldStatus(ctx context.Context, id, objectVersion string, status models.HoldStatus) error
	SetCaseFileHashes(ctx context.Context, sourceFileID, hash string) error
}
