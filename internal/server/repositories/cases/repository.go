package cases

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Case) (*models.Case, error)
	Get(ctx context.Context, id string) (*models.Case, error)
	AddObjectCount(ctx context.Context, id string, delta int64) error
}
