package solana

import (
	"context"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SubmitTransaction broadcasts a signed transaction with preflight checks and
// returns its signature. Resubmitting the same signed bytes is idempotent, so
// failed submissions are retried against the next preferred endpoint.
func (l *Ledger) SubmitTransaction(ctx context.Context, tx *sol.Transaction) (sol.Signature, error) {
	if tx == nil || len(tx.Signatures) == 0 {
		return sol.Signature{}, errors.New("transaction is not signed")
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to serialise transaction")
	}

	maxRetries := l.opts.NodeMaxRetries
	opts := rpc.TransactionOpts{
		SkipPreflight:       l.opts.SkipPreflight,
		PreflightCommitment: l.opts.PreflightCommitment,
		MaxRetries:          &maxRetries,
	}

	var sig sol.Signature
	err = l.opts.SubmitPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		endpoint, client := l.selected()

		submitted, sendErr := client.SendRawTransactionWithOpts(ctx, raw, opts)
		if sendErr != nil {
			l.fail(endpoint, "sendTransaction", sendErr)
			return sendErr
		}
		sig = submitted

		l.logger.WithFields(logrus.Fields{
			"signature": sig.String(),
			"endpoint":  endpoint.URL,
			"attempt":   attempt,
		}).Info("Transaction submitted")
		return nil
	})
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to send transaction")
	}

	return sig, nil
}
