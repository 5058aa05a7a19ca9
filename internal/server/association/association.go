// Package association links vault files to cases.
//
// A case gets its own copy of the file's catalog record (a case file) at
// the file's path relative to the destination folder of the execution that
// ingested it. The vault file tracks the cases it is linked to in its
// scoped-case set. Both sides, and the case object counters, change in the
// same unit of work.
package association

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/catalog"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
)

const (
	opAssociate    = "associate"
	opDisassociate = "disassociate"
)

type Service struct {
	store   repomanager.Store
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewService(store repomanager.Store, logger logging.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, logger: logger, metrics: m}
}

// Associate links every file to every case. Links that already exist are
// left alone. Either all new links are written or none is. It returns the
// number of case files created.
func (s *Service) Associate(ctx context.Context, vaultID string, fileIDs, caseIDs []string) (int, error) {
	fileIDs, caseIDs = dedup(fileIDs), dedup(caseIDs)
	if vaultID == "" || len(fileIDs) == 0 || len(caseIDs) == 0 {
		return 0, fmt.Errorf("%w: vault, files and cases are required", common.ErrInvalidArgument)
	}

	var created int
	err := repomanager.RunInTxWithRetry(ctx, s.store, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		created, err = associateTx(ctx, r, vaultID, fileIDs, caseIDs)
		return err
	})
	s.record(opAssociate, err)
	if err != nil {
		s.logger.Warn(ctx, "associate failed", "vault_id", vaultID, "files", len(fileIDs), "cases", len(caseIDs), "error", err)
		return 0, err
	}
	s.logger.Info(ctx, "files associated", "vault_id", vaultID, "created", created)
	return created, nil
}

type target struct {
	caseID string
	path   string
	name   string
}

func associateTx(ctx context.Context, r repomanager.Repositories, vaultID string, fileIDs, caseIDs []string) (int, error) {
	if _, err := r.Vaults().Get(ctx, vaultID); err != nil {
		return 0, fmt.Errorf("vault %s: %w", vaultID, err)
	}

	cases := make([]*models.Case, 0, len(caseIDs))
	for _, id := range caseIDs {
		c, err := r.Cases().Get(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("case %s: %w", id, err)
		}
		cases = append(cases, c)
	}

	files := make([]*models.Node, 0, len(fileIDs))
	for _, id := range fileIDs {
		f, err := r.Nodes().GetByID(ctx, models.VaultOwner(vaultID), id)
		if err != nil {
			return 0, fmt.Errorf("file %s: %w", id, err)
		}
		if !f.IsFile {
			return 0, fmt.Errorf("%w: %s is a folder", common.ErrInvalidArgument, id)
		}
		if f.HoldStatus != models.HoldApplied {
			return 0, fmt.Errorf("file %s: %w", id, common.ErrHoldPending)
		}
		files = append(files, f)
	}

	claimed := map[target]string{}
	created := 0
	for _, f := range files {
		casePath, err := CasePath(ctx, r, f)
		if err != nil {
			return 0, err
		}
		scopedBefore := len(f.ScopedCases)

		for _, c := range cases {
			t := target{caseID: c.ID, path: casePath, name: f.Name}
			if other, ok := claimed[t]; ok && other != f.ID {
				return 0, fmt.Errorf("%w: %s%s in case %s", common.ErrNameConflict, casePath, f.Name, c.Name)
			}
			claimed[t] = f.ID

			_, err := r.Nodes().FindBySource(ctx, c.ID, f.ID)
			switch {
			case err == nil:
				if !f.HasScopedCase(c.ID) {
					f.ScopedCases = append(f.ScopedCases, models.ScopedCase{CaseID: c.ID, CaseName: c.Name})
				}
				continue
			case !errors.Is(err, common.ErrorNotFound):
				return 0, err
			}

			occupant, err := r.Nodes().Get(ctx, models.CaseOwner(c.ID), casePath, f.Name)
			switch {
			case err == nil && occupant.IsFile:
				return 0, fmt.Errorf("%w: %s%s in case %s", common.ErrNameConflict, casePath, f.Name, c.Name)
			case err != nil && !errors.Is(err, common.ErrorNotFound):
				return 0, err
			}

			_, err = catalog.UpsertLeafTx(ctx, r, models.CaseOwner(c.ID), casePath, f.Name, models.LeafAttrs{
				Size:          f.Size,
				ContentType:   f.ContentType,
				ContentHash:   f.ContentHash,
				ExecutionID:   f.ExecutionID,
				HoldStatus:    models.HoldNone,
				SourceVaultID: vaultID,
				SourceFileID:  f.ID,
			})
			if err != nil {
				return 0, err
			}
			created++
			if !f.HasScopedCase(c.ID) {
				f.ScopedCases = append(f.ScopedCases, models.ScopedCase{CaseID: c.ID, CaseName: c.Name})
			}
		}

		if len(f.ScopedCases) != scopedBefore {
			if err := r.Nodes().SetScopedCases(ctx, f); err != nil {
				return 0, err
			}
		}
	}
	return created, nil
}

// Disassociate unlinks the file from each case. Cases the file is not
// linked to are skipped. It returns the number of case files removed.
func (s *Service) Disassociate(ctx context.Context, vaultID, fileID string, caseIDs []string) (int, error) {
	caseIDs = dedup(caseIDs)
	if vaultID == "" || fileID == "" || len(caseIDs) == 0 {
		return 0, fmt.Errorf("%w: vault, file and cases are required", common.ErrInvalidArgument)
	}

	var removed int
	err := repomanager.RunInTxWithRetry(ctx, s.store, func(ctx context.Context, r repomanager.Repositories) error {
		removed = 0
		f, err := r.Nodes().GetByID(ctx, models.VaultOwner(vaultID), fileID)
		if err != nil {
			return fmt.Errorf("file %s: %w", fileID, err)
		}

		drop := map[string]bool{}
		for _, caseID := range caseIDs {
			drop[caseID] = true
			cf, err := r.Nodes().FindBySource(ctx, caseID, fileID)
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := catalog.RemoveLeafTx(ctx, r, models.CaseOwner(caseID), cf.Path, cf.Name); err != nil {
				return err
			}
			removed++
		}

		kept := make([]models.ScopedCase, 0, len(f.ScopedCases))
		for _, sc := range f.ScopedCases {
			if !drop[sc.CaseID] {
				kept = append(kept, sc)
			}
		}
		if len(kept) == len(f.ScopedCases) {
			return nil
		}
		f.ScopedCases = kept
		return r.Nodes().SetScopedCases(ctx, f)
	})
	s.record(opDisassociate, err)
	if err != nil {
		s.logger.Warn(ctx, "disassociate failed", "vault_id", vaultID, "file_id", fileID, "error", err)
		return 0, err
	}
	s.logger.Info(ctx, "files disassociated", "vault_id", vaultID, "file_id", fileID, "removed", removed)
	return removed, nil
}

// CasePath maps the folder of a vault file to its folder inside a case: the
// destination folder of the ingesting execution is stripped. Files of an
// unknown execution keep their vault path.
func CasePath(ctx context.Context, r repomanager.Repositories, f *models.Node) (string, error) {
	if f.ExecutionID == "" {
		return f.Path, nil
	}
	exec, err := r.Executions().Get(ctx, f.ExecutionID)
	if errors.Is(err, common.ErrorNotFound) {
		return f.Path, nil
	}
	if err != nil {
		return "", err
	}
	return vpath.StripPrefix(f.Path, exec.DestinationFolder), nil
}

func (s *Service) record(op string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.Association(op, outcome)
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
