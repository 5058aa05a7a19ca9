package checksumjobs

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

// Repository stores the rolling hash state of objects being ingested.
type Repository interface {
	Get(ctx context.Context, objectKey string) (*models.ChecksumJob, error)
	// Create inserts a new job. An existing job for the key yields
	// common.ErrVersionConflict.
	Create(ctx context.Context, job *models.ChecksumJob) error
	// Update persists job if its version is unchanged and bumps the version.
	Update(ctx context.Context, job *models.ChecksumJob) error
	Delete(ctx context.Context, objectKey string) error
}
