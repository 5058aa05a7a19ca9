package vaults

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, vault *models.Vault) (*models.Vault, error)
	Get(ctx context.Context, id string) (*models.Vault, error)
	// AddCounters shifts the object count and the byte total of a vault.
	AddCounters(ctx context.Context, id string, objects, bytes int64) error
}
