package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
)

// UpsertResult describes the leaf left by an upsert.
type UpsertResult struct {
	Node    *models.Node
	Created bool
}

// UpsertLeaf creates or updates the leaf (path, name) of owner together
// with any missing folders, in one unit of work.
func (s *Service) UpsertLeaf(ctx context.Context, owner models.Owner, path, name string, attrs models.LeafAttrs) (*UpsertResult, error) {
	var res *UpsertResult
	err := repomanager.RunInTxWithRetry(ctx, s.store, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		res, err = UpsertLeafTx(ctx, r, owner, path, name, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Created {
		s.logger.Debug(ctx, "leaf created", "owner", owner.String(), "path", path, "name", name)
	}
	return res, nil
}

// UpsertLeafTx is UpsertLeaf inside a caller's unit of work.
//
// The owner's object counter moves only when the leaf is new. For vaults
// the byte total follows the leaf size. Empty attributes leave the stored
// value alone. An applied hold is only downgraded by a new object version.
func UpsertLeafTx(ctx context.Context, r repomanager.Repositories, owner models.Owner, path, name string, attrs models.LeafAttrs) (*UpsertResult, error) {
	if !vpath.IsNormalized(path) {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, path)
	}
	if err := vpath.ValidName(name); err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, r, owner); err != nil {
		return nil, err
	}
	if err := ensureFolders(ctx, r, owner, path); err != nil {
		return nil, err
	}

	existing, err := r.Nodes().Get(ctx, owner, path, name)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		n := &models.Node{Owner: owner, Path: path, Name: name}
		applyAttrs(n, attrs)
		if n.HoldStatus == "" {
			n.HoldStatus = models.HoldNone
		}
		if err := r.Nodes().InsertLeaf(ctx, n); err != nil {
			return nil, err
		}
		if err := bumpFolder(ctx, r, owner, path, 1); err != nil {
			return nil, err
		}
		if err := addCounters(ctx, r, owner, 1, n.Size); err != nil {
			return nil, err
		}
		return &UpsertResult{Node: n, Created: true}, nil
	case err != nil:
		return nil, err
	case !existing.IsFile:
		return nil, fmt.Errorf("%w: %s%s", common.ErrFolderConflict, path, name)
	}

	updated := *existing
	applyAttrs(&updated, attrs)
	if sameLeaf(existing, &updated) {
		return &UpsertResult{Node: existing}, nil
	}
	if err := r.Nodes().UpdateLeaf(ctx, &updated); err != nil {
		return nil, err
	}
	if delta := updated.Size - existing.Size; delta != 0 {
		if err := addCounters(ctx, r, owner, 0, delta); err != nil {
			return nil, err
		}
	}
	return &UpsertResult{Node: &updated}, nil
}

func applyAttrs(n *models.Node, a models.LeafAttrs) {
	// a hashed leaf keeps the size its checksum was computed over
	if n.ContentHash == "" || a.ContentHash != "" {
		n.Size = a.Size
	}
	if a.ContentType != "" {
		n.ContentType = a.ContentType
	}
	if a.ContentHash != "" {
		n.ContentHash = a.ContentHash
	}
	if a.ExecutionID != "" {
		n.ExecutionID = a.ExecutionID
	}
	if a.ObjectKey != "" {
		n.ObjectKey = a.ObjectKey
	}
	if a.ObjectVersion != "" && a.ObjectVersion != n.ObjectVersion {
		n.ObjectVersion = a.ObjectVersion
		if n.HoldStatus == models.HoldApplied {
			n.HoldStatus = models.HoldPending
		}
	}
	if a.HoldStatus != "" && n.HoldStatus != models.HoldApplied {
		n.HoldStatus = a.HoldStatus
	}
	if a.SourceVaultID != "" {
		n.SourceVaultID = a.SourceVaultID
	}
	if a.SourceFileID != "" {
		n.SourceFileID = a.SourceFileID
	}
}

func sameLeaf(a, b *models.Node) bool {
	return a.Size == b.Size &&
		a.ContentType == b.ContentType &&
		a.ContentHash == b.ContentHash &&
		a.ExecutionID == b.ExecutionID &&
		a.ObjectKey == b.ObjectKey &&
		a.ObjectVersion == b.ObjectVersion &&
		a.HoldStatus == b.HoldStatus &&
		a.SourceVaultID == b.SourceVaultID &&
		a.SourceFileID == b.SourceFileID
}

// ensureFolders creates the missing folders along path top-down. Each newly
// created folder counts as a child of its parent.
func ensureFolders(ctx context.Context, r repomanager.Repositories, owner models.Owner, path string) error {
	parent := vpath.Root
	for _, seg := range vpath.Segments(path) {
		created, err := r.Nodes().InsertFolder(ctx, owner, parent, seg)
		if err != nil {
			return err
		}
		if created {
			if err := bumpFolder(ctx, r, owner, parent, 1); err != nil {
				return err
			}
		} else {
			existing, err := r.Nodes().Get(ctx, owner, parent, seg)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					// removed between the insert and the read
					return common.ErrVersionConflict
				}
				return err
			}
			if existing.IsFile {
				return fmt.Errorf("%w: %s%s", common.ErrFolderConflict, parent, seg)
			}
		}
		parent = vpath.Join(parent, seg)
	}
	return nil
}

// bumpFolder shifts the child count of folder. A folder deleted by a
// concurrent removal surfaces as a version conflict so the unit of work is
// started over.
func bumpFolder(ctx context.Context, r repomanager.Repositories, owner models.Owner, folder string, delta int64) error {
	if folder == vpath.Root {
		return nil
	}
	pp, pn := vpath.Split(folder)
	err := r.Nodes().AddChildCount(ctx, owner, pp, pn, delta)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrVersionConflict
	}
	return err
}

func addCounters(ctx context.Context, r repomanager.Repositories, owner models.Owner, objects, bytes int64) error {
	switch owner.Kind {
	case models.OwnerVault:
		return r.Vaults().AddCounters(ctx, owner.ID, objects, bytes)
	case models.OwnerCase:
		if objects == 0 {
			return nil
		}
		return r.Cases().AddObjectCount(ctx, owner.ID, objects)
	}
	return fmt.Errorf("%w: owner kind %q", common.ErrInvalidArgument, owner.Kind)
}

// RemoveLeaf deletes the leaf (path, name) of owner and every folder it
// leaves empty.
func (s *Service) RemoveLeaf(ctx context.Context, owner models.Owner, path, name string) error {
	return repomanager.RunInTxWithRetry(ctx, s.store, func(ctx context.Context, r repomanager.Repositories) error {
		return RemoveLeafTx(ctx, r, owner, path, name)
	})
}

// RemoveLeafTx is RemoveLeaf inside a caller's unit of work.
func RemoveLeafTx(ctx context.Context, r repomanager.Repositories, owner models.Owner, path, name string) error {
	n, err := r.Nodes().Get(ctx, owner, path, name)
	if err != nil {
		return err
	}
	if !n.IsFile {
		return fmt.Errorf("%w: %s%s is a folder", common.ErrInvalidArgument, path, name)
	}
	if err := r.Nodes().DeleteLeaf(ctx, n); err != nil {
		return err
	}
	if err := addCounters(ctx, r, owner, -1, -n.Size); err != nil {
		return err
	}

	folder := path
	for folder != vpath.Root {
		if err := bumpFolder(ctx, r, owner, folder, -1); err != nil {
			return err
		}
		pp, pn := vpath.Split(folder)
		deleted, err := r.Nodes().DeleteFolderIfEmpty(ctx, owner, pp, pn)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		folder = pp
	}
	return nil
}
