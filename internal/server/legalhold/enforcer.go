// Package legalhold applies object-lock legal holds to ingested objects and
// gates downloads on them. A file is downloadable only once its vault file
// records an applied hold and the blob store confirms it for the recorded
// object version.
package legalhold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/catalog"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
)

const defaultCacheTTL = 10 * time.Minute

var applied = []byte(models.HoldApplied)

type Enforcer struct {
	store     repomanager.Store
	blobs     blobstore.Store
	logger    logging.Logger
	held      *bigcache.BigCache
	urlExpiry time.Duration
}

// NewEnforcer builds an Enforcer. Object versions verified as held are
// cached for cacheTTL on the download path.
func NewEnforcer(store repomanager.Store, blobs blobstore.Store, logger logging.Logger, cacheTTL, urlExpiry time.Duration) (*Enforcer, error) {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	cfg := bigcache.DefaultConfig(cacheTTL)
	cfg.Shards = 64
	cfg.Verbose = false
	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("hold cache: %w", err)
	}
	return &Enforcer{
		store:     store,
		blobs:     blobs,
		logger:    logger.With("module", "legalhold"),
		held:      cache,
		urlExpiry: urlExpiry,
	}, nil
}

func (e *Enforcer) Close() error {
	return e.held.Close()
}

// HandleObjectCreated makes sure the object version named by the event has
// a legal hold and records it on the vault file, registering the file first
// when needed. The blob store is asked on every delivery; the catalog status
// only mirrors it. Failures to apply the hold are returned for redelivery.
func (e *Enforcer) HandleObjectCreated(ctx context.Context, ev models.ObjectCreated) error {
	if ev.ObjectKey == "" || ev.VaultID == "" {
		return fmt.Errorf("%w: object key and vault are required", common.ErrInvalidArgument)
	}
	path, err := vpath.Normalize(ev.DestinationPath)
	if err != nil {
		return err
	}

	var file *models.Node
	err = repomanager.RunInTxWithRetry(ctx, e.store, func(ctx context.Context, r repomanager.Repositories) error {
		res, err := catalog.UpsertLeafTx(ctx, r, models.VaultOwner(ev.VaultID), path, ev.FileName, models.LeafAttrs{
			Size:          ev.SizeBytes,
			ExecutionID:   ev.ExecutionID,
			ObjectKey:     ev.ObjectKey,
			ObjectVersion: ev.VersionID,
			HoldStatus:    models.HoldPending,
		})
		if err != nil {
			return err
		}
		file = res.Node
		return nil
	})
	if err != nil {
		return err
	}

	ref := blobstore.ObjectRef{Key: file.ObjectKey, VersionID: file.ObjectVersion}
	held, err := e.blobs.HoldStatus(ctx, ref)
	if err != nil {
		return fmt.Errorf("hold status of %s: %w", ref, err)
	}
	if held && file.HoldStatus == models.HoldApplied {
		e.logger.Debug(ctx, "hold already applied", "object", ref.String())
		return nil
	}

	if !held {
		if file.HoldStatus == models.HoldApplied {
			e.logger.Warn(ctx, "catalog records a hold the store does not have", "object", ref.String(), "file_id", file.ID)
			if err := e.setHoldStatus(ctx, file, models.HoldPending); err != nil {
				return err
			}
		}
		if err := e.blobs.ApplyImmutabilityHold(ctx, ref); err != nil {
			e.logger.Warn(ctx, "apply hold failed", "object", ref.String(), "error", err)
			return fmt.Errorf("apply hold to %s: %w", ref, err)
		}
	}

	if err := e.setHoldStatus(ctx, file, models.HoldApplied); err != nil {
		return err
	}
	e.remember(ref)
	e.logger.Info(ctx, "legal hold applied", "object", ref.String(), "file_id", file.ID)
	return nil
}

// setHoldStatus records status for the object version file was read at. A
// file that moved on to a newer version is left to that version's event.
func (e *Enforcer) setHoldStatus(ctx context.Context, file *models.Node, status models.HoldStatus) error {
	err := e.store.RunInTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		return r.Nodes().SetHoldStatus(ctx, file.ID, file.ObjectVersion, status)
	})
	if errors.Is(err, common.ErrVersionConflict) {
		e.logger.Info(ctx, "object version superseded", "object_key", file.ObjectKey, "version", file.ObjectVersion)
		return nil
	}
	return err
}

// DownloadURL returns a time-limited URL for a vault or case file, pinned
// to the object version the hold was recorded for. Case files resolve to
// their source vault file. Files whose hold is not applied yet, in the
// catalog or in the blob store, are refused with common.ErrHoldPending.
func (e *Enforcer) DownloadURL(ctx context.Context, owner models.Owner, fileID string) (string, error) {
	r := e.store.Repos()
	n, err := r.Nodes().GetByID(ctx, owner, fileID)
	if err != nil {
		return "", err
	}
	if !n.IsFile {
		return "", fmt.Errorf("%w: %s is a folder", common.ErrInvalidArgument, fileID)
	}

	src := n
	if owner.Kind == models.OwnerCase {
		src, err = r.Nodes().GetByID(ctx, models.VaultOwner(n.SourceVaultID), n.SourceFileID)
		if err != nil {
			return "", fmt.Errorf("source of %s: %w", fileID, err)
		}
	}
	if src.HoldStatus != models.HoldApplied {
		return "", fmt.Errorf("%w: %s", common.ErrHoldPending, src.ObjectKey)
	}

	ref := blobstore.ObjectRef{Key: src.ObjectKey, VersionID: src.ObjectVersion}
	if !e.cached(ref) {
		held, err := e.blobs.HoldStatus(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("hold status of %s: %w", ref, err)
		}
		if !held {
			return "", fmt.Errorf("%w: %s", common.ErrHoldPending, ref)
		}
		e.remember(ref)
	}
	return e.blobs.GenerateDownloadURL(ctx, ref, e.urlExpiry)
}

// cached reports whether ref was recently seen held in the blob store.
func (e *Enforcer) cached(ref blobstore.ObjectRef) bool {
	_, err := e.held.Get(ref.String())
	return err == nil
}

// remember caches a verified hold. Only versioned refs are cached: an
// unversioned key can be overwritten by an unheld object.
func (e *Enforcer) remember(ref blobstore.ObjectRef) {
	if ref.VersionID == "" {
		return
	}
	if err := e.held.Set(ref.String(), applied); err != nil {
		e.logger.Warn(context.Background(), "hold cache set failed", "object", ref.String(), "error", err)
	}
}
