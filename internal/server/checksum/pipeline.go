// Package checksum folds the parts of multipart uploads into a rolling
// SHA-256 as their completion events arrive, and stores the final digest on
// the vault file.
//
// The hash state after each accepted part is persisted in a checksum job,
// so parts can be folded by different deliveries, in strict part order.
package checksum

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/catalog"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sethvargo/go-retry"
)

const (
	conflictRetries   = 8
	conflictBaseDelay = 10 * time.Millisecond
)

type Pipeline struct {
	store       repomanager.Store
	blobs       blobstore.Store
	logger      logging.Logger
	metrics     *metrics.Metrics
	partTimeout time.Duration
}

func NewPipeline(store repomanager.Store, blobs blobstore.Store, logger logging.Logger, m *metrics.Metrics, partTimeout time.Duration) *Pipeline {
	return &Pipeline{store: store, blobs: blobs, logger: logger, metrics: m, partTimeout: partTimeout}
}

// HandlePartCompleted folds one part into the object's rolling hash.
//
// Parts already folded are acknowledged as duplicates, as are parts of an
// object the same execution already completed. A part that is ahead
// of the next expected one fails with common.ErrOutOfOrder and must be
// redelivered later. A lost optimistic write restarts the handling.
func (p *Pipeline) HandlePartCompleted(ctx context.Context, ev models.PartCompleted) error {
	if err := validate(&ev); err != nil {
		return err
	}

	b := retry.WithMaxRetries(conflictRetries, retry.NewExponential(conflictBaseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := p.handle(ctx, ev)
		if errors.Is(err, common.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func validate(ev *models.PartCompleted) error {
	if ev.ObjectKey == "" || ev.VaultID == "" {
		return fmt.Errorf("%w: object key and vault are required", common.ErrInvalidArgument)
	}
	if ev.PartIndex < models.FirstPartIndex {
		return fmt.Errorf("%w: part index %d", common.ErrInvalidArgument, ev.PartIndex)
	}
	path, err := vpath.Normalize(ev.DestinationPath)
	if err != nil {
		return err
	}
	ev.DestinationPath = path
	return vpath.ValidName(ev.FileName)
}

func (p *Pipeline) handle(ctx context.Context, ev models.PartCompleted) error {
	jobs := p.store.Repos().ChecksumJobs()

	job, err := jobs.Get(ctx, ev.ObjectKey)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		done, err := p.completed(ctx, ev)
		if err != nil {
			return err
		}
		if done {
			p.logger.Debug(ctx, "part of a completed object", "object_key", ev.ObjectKey, "part", ev.PartIndex)
			return nil
		}
		if ev.PartIndex != models.FirstPartIndex {
			return fmt.Errorf("%w: %s part %d before part %d", common.ErrOutOfOrder, ev.ObjectKey, ev.PartIndex, models.FirstPartIndex)
		}
		return p.start(ctx, ev)
	case err != nil:
		return err
	}

	if job.Status == models.JobFinalizing {
		return p.finalize(ctx, job)
	}
	switch {
	case ev.PartIndex < job.NextPartIndex:
		p.logger.Debug(ctx, "duplicate part", "object_key", ev.ObjectKey, "part", ev.PartIndex)
		return nil
	case ev.PartIndex > job.NextPartIndex:
		return fmt.Errorf("%w: %s part %d, expecting %d", common.ErrOutOfOrder, ev.ObjectKey, ev.PartIndex, job.NextPartIndex)
	}

	h, err := newHash(job.State)
	if err != nil {
		return err
	}
	n, _, err := p.fold(ctx, h, ev, false)
	if err != nil {
		return err
	}
	if job.State, err = saveHash(h); err != nil {
		return err
	}
	job.NextPartIndex++
	job.BytesFolded += n
	if ev.IsFinalPart {
		job.Status = models.JobFinalizing
	}
	if err := jobs.Update(ctx, job); err != nil {
		return err
	}
	p.metrics.BytesFolded(n)

	if ev.IsFinalPart {
		return p.finalize(ctx, job)
	}
	return nil
}

// completed reports whether the object was already checksummed for the
// execution that sent ev. Its parts are redeliveries once the job is gone.
func (p *Pipeline) completed(ctx context.Context, ev models.PartCompleted) (bool, error) {
	file, err := p.store.Repos().Nodes().GetByObjectKey(ctx, ev.VaultID, ev.ObjectKey)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return file.ContentHash != "" && file.ExecutionID == ev.ExecutionID, nil
}

// start folds the first part, creates the job and registers the vault file
// with a pending hold.
func (p *Pipeline) start(ctx context.Context, ev models.PartCompleted) error {
	h, err := newHash(nil)
	if err != nil {
		return err
	}
	n, sniffed, err := p.fold(ctx, h, ev, true)
	if err != nil {
		return err
	}
	state, err := saveHash(h)
	if err != nil {
		return err
	}

	job := &models.ChecksumJob{
		ObjectKey:     ev.ObjectKey,
		VaultID:       ev.VaultID,
		NextPartIndex: models.FirstPartIndex + 1,
		State:         state,
		BytesFolded:   n,
		ContentType:   sniffed,
		Status:        models.JobAccumulating,
	}
	if ev.IsFinalPart {
		job.Status = models.JobFinalizing
	}

	err = p.store.RunInTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		_, err := catalog.UpsertLeafTx(ctx, r, models.VaultOwner(ev.VaultID), ev.DestinationPath, ev.FileName, models.LeafAttrs{
			Size:        ev.SizeBytes,
			ContentType: sniffed,
			ExecutionID: ev.ExecutionID,
			ObjectKey:   ev.ObjectKey,
			HoldStatus:  models.HoldPending,
		})
		if err != nil {
			return err
		}
		return r.ChecksumJobs().Create(ctx, job)
	})
	if err != nil {
		return err
	}
	p.metrics.BytesFolded(n)
	p.logger.Info(ctx, "checksum job started", "object_key", ev.ObjectKey, "vault_id", ev.VaultID)

	if ev.IsFinalPart {
		return p.finalize(ctx, job)
	}
	return nil
}

// fold streams the part into h under the part timeout. With sniff set the
// content type of the first bytes is detected too.
func (p *Pipeline) fold(ctx context.Context, h io.Writer, ev models.PartCompleted, sniff bool) (int64, string, error) {
	started := time.Now()
	if p.partTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.partTimeout)
		defer cancel()
	}

	rc, err := p.blobs.ReadPart(ctx, ev.ObjectKey, ev.PartIndex)
	if err != nil {
		return 0, "", fmt.Errorf("read part %d of %s: %w", ev.PartIndex, ev.ObjectKey, err)
	}
	defer rc.Close()

	var w io.Writer = h
	first := &head{limit: sniffLimit}
	if sniff {
		w = io.MultiWriter(h, first)
	}
	n, err := io.Copy(w, rc)
	if err != nil {
		return 0, "", fmt.Errorf("read part %d of %s: %w", ev.PartIndex, ev.ObjectKey, err)
	}
	p.metrics.PartFolded(time.Since(started))

	if !sniff {
		return n, "", nil
	}
	return n, mimetype.Detect(first.buf).String(), nil
}

// finalize stores the digest of a finished job on its vault file and on the
// case files copied from it, then drops the job. It is safe to repeat.
func (p *Pipeline) finalize(ctx context.Context, job *models.ChecksumJob) error {
	h, err := newHash(job.State)
	if err != nil {
		return err
	}
	digest := hex.EncodeToString(h.Sum(nil))

	err = p.store.RunInTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		file, err := r.Nodes().GetByObjectKey(ctx, job.VaultID, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("vault file for %s: %w", job.ObjectKey, err)
		}

		if file.Size != job.BytesFolded {
			_, err := catalog.UpsertLeafTx(ctx, r, file.Owner, file.Path, file.Name, models.LeafAttrs{
				Size:        job.BytesFolded,
				ContentType: job.ContentType,
			})
			if err != nil {
				return err
			}
		}

		stored, err := r.Nodes().SetContentHash(ctx, file.ID, digest)
		if err != nil {
			return err
		}
		if !stored && file.ContentHash != digest {
			return fmt.Errorf("%w: %s stored %s, computed %s", common.ErrIntegrity, job.ObjectKey, file.ContentHash, digest)
		}
		if err := r.Nodes().SetCaseFileHashes(ctx, file.ID, digest); err != nil {
			return err
		}
		return r.ChecksumJobs().Delete(ctx, job.ObjectKey)
	})

	if errors.Is(err, common.ErrorNotFound) {
		// nothing can ever claim this digest
		if derr := p.store.Repos().ChecksumJobs().Delete(ctx, job.ObjectKey); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			p.logger.Error(ctx, "checksum mismatch", "object_key", job.ObjectKey, "error", err)
		}
		return err
	}
	p.logger.Info(ctx, "checksum stored", "object_key", job.ObjectKey, "sha256", digest, "bytes", job.BytesFolded)
	return nil
}
