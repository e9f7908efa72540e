package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var commitmentRank = map[string]int{
	string(rpc.CommitmentProcessed): 1,
	string(rpc.CommitmentConfirmed): 2,
	string(rpc.CommitmentFinalized): 3,
}

// ConfirmTransaction waits until sig reaches the configured commitment, fails
// on-chain, or the validity window of ref passes. On-chain failure and expiry
// are outcomes, not errors. An error is returned only when polling runs out
// or ctx is done.
//
// Parameters:
// - ctx: the context for managing the request.
// - sig: the transaction signature.
// - ref: the blockhash whose validity window bounds the wait.
//
// Returns:
// - *types.Confirmation: the outcome.
// - error: ErrConfirmationTimeout when every poll came back inconclusive.
func (l *Ledger) ConfirmTransaction(ctx context.Context, sig sol.Signature, ref types.BlockhashRef) (*types.Confirmation, error) {
	logger := l.logger.WithField("signature", sig.String())

	for poll := 1; poll <= l.opts.MaxPolls; poll++ {
		status, err := l.signatureStatus(ctx, sig)
		if err != nil {
			logger.WithError(err).WithField("poll", poll).Debug("Signature status unavailable")
		} else if status.Found {
			if status.Err != "" {
				logger.WithField("error", status.Err).Warn("Transaction failed on-chain")
				return &types.Confirmation{Slot: status.Slot, Err: status.Err}, nil
			}
			if reached(status.ConfirmationStatus, l.opts.Commitment) {
				logger.WithField("slot", status.Slot).Info("Transaction confirmed")
				return &types.Confirmation{Confirmed: true, Slot: status.Slot}, nil
			}
		}

		if ref.LastValidBlockHeight > 0 {
			if height, err := l.blockHeight(ctx); err == nil && height > ref.LastValidBlockHeight {
				logger.WithFields(logrus.Fields{
					"blockHeight":          height,
					"lastValidBlockHeight": ref.LastValidBlockHeight,
				}).Warn("Blockhash expired before confirmation")
				return &types.Confirmation{Expired: true, Err: commonerrors.ErrBlockhashExpired.Error()}, nil
			}
		}

		if poll == l.opts.MaxPolls {
			break
		}

		timer := time.NewTimer(l.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrap(ctx.Err(), "confirmation cancelled")
		case <-timer.C:
		}
	}

	return nil, errors.Wrapf(commonerrors.ErrConfirmationTimeout, "signature %s after %d polls", sig, l.opts.MaxPolls)
}

// SignatureStatus looks up a signature, searching the ledger history.
func (l *Ledger) SignatureStatus(ctx context.Context, sig sol.Signature) (*types.SignatureStatus, error) {
	status, err := l.signatureStatus(ctx, sig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get signature status")
	}
	return status, nil
}

func (l *Ledger) signatureStatus(ctx context.Context, sig sol.Signature) (*types.SignatureStatus, error) {
	endpoint, client := l.selected()

	res, err := client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		l.fail(endpoint, "getSignatureStatuses", err)
		return nil, err
	}

	status := &types.SignatureStatus{Signature: sig.String()}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return status, nil
	}

	value := res.Value[0]
	status.Found = true
	status.Slot = value.Slot
	status.Confirmations = value.Confirmations
	status.ConfirmationStatus = string(value.ConfirmationStatus)
	if value.Err != nil {
		status.Err = describeError(value.Err)
	}
	return status, nil
}

func (l *Ledger) blockHeight(ctx context.Context) (uint64, error) {
	endpoint, client := l.selected()

	height, err := client.GetBlockHeight(ctx, l.opts.Commitment)
	if err != nil {
		l.fail(endpoint, "getBlockHeight", err)
		return 0, err
	}
	return height, nil
}

func reached(status string, target rpc.CommitmentType) bool {
	got, ok := commitmentRank[status]
	if !ok {
		return false
	}
	return got >= commitmentRank[string(target)]
}

func describeError(v interface{}) string {
	if raw, err := json.Marshal(v); err == nil {
		return string(raw)
	}
	return fmt.Sprint(v)
}
