package solana

import (
	"context"

	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LatestBlockhash fetches a recent blockhash with its validity window.
// Failed attempts are retried with a fixed delay up to the configured
// ceiling; when every attempt fails the last error is returned.
//
// Parameters:
// - ctx: the context for managing the request.
//
// Returns:
// - *types.BlockhashRef: the blockhash, its last valid block height and slot.
// - error: the last attempt error if no attempt succeeded.
func (l *Ledger) LatestBlockhash(ctx context.Context) (*types.BlockhashRef, error) {
	var ref *types.BlockhashRef

	err := l.opts.BlockhashPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		endpoint, client := l.selected()

		res, err := client.GetLatestBlockhash(ctx, l.opts.Commitment)
		if err == nil && (res == nil || res.Value == nil) {
			err = errors.New("empty blockhash response")
		}
		if err != nil {
			l.metrics.BlockhashFailed()
			l.logger.WithFields(logrus.Fields{
				"attempt":  attempt,
				"endpoint": endpoint.URL,
			}).WithError(err).Warn("Failed to get latest blockhash")
			l.pool.Demote(endpoint)
			return err
		}

		ref = &types.BlockhashRef{
			Blockhash:            res.Value.Blockhash,
			LastValidBlockHeight: res.Value.LastValidBlockHeight,
			Slot:                 res.Context.Slot,
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get latest blockhash after %d attempts", l.opts.BlockhashPolicy.MaxAttempts)
	}

	return ref, nil
}
