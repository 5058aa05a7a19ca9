package catalog

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
	"github.com/google/uuid"
)

// RegisterExecution records a bulk-transfer run into a vault folder. The
// folder is stored normalized; re-registering an existing ID is a no-op.
func (s *Service) RegisterExecution(ctx context.Context, e *models.Execution) (*models.Execution, error) {
	if e.VaultID == "" {
		return nil, fmt.Errorf("%w: vault is required", common.ErrInvalidArgument)
	}
	folder, err := vpath.Normalize(e.DestinationFolder)
	if err != nil {
		return nil, err
	}
	out := *e
	out.DestinationFolder = folder
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	r := s.store.Repos()
	if err := checkOwner(ctx, r, models.VaultOwner(out.VaultID)); err != nil {
		return nil, err
	}
	if err := r.Executions().Create(ctx, &out); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "execution registered", "execution_id", out.ID, "vault_id", out.VaultID, "folder", folder)
	return r.Executions().Get(ctx, out.ID)
}
