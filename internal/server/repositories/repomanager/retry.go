package repomanager

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/sethvargo/go-retry"
)

const (
	conflictRetries   = 8
	conflictBaseDelay = 5 * time.Millisecond
	conflictMaxDelay  = 200 * time.Millisecond
)

// RunInTxWithRetry runs fn as one unit of work and starts it over, with a
// fresh transaction, whenever it fails with common.ErrVersionConflict.
func RunInTxWithRetry(ctx context.Context, s Store, fn func(ctx context.Context, r Repositories) error) error {
	b := retry.NewExponential(conflictBaseDelay)
	b = retry.WithCappedDuration(conflictMaxDelay, b)
	b = retry.WithMaxRetries(conflictRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.RunInTx(ctx, fn)
		if errors.Is(err, common.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
