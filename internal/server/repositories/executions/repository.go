package executions

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

type Repository interface {
	// Create registers an execution. Registering the same ID again is a no-op.
	Create(ctx context.Context, e *models.Execution) error
	Get(ctx context.Context, id string) (*models.Execution, error)
}
