package settlement

import (
	"context"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/signer"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultSigningTimeout bounds the wait for an external signer.
const DefaultSigningTimeout = 2 * time.Minute

// Ledger is the ledger access the coordinator needs.
type Ledger interface {
	LatestBlockhash(ctx context.Context) (*types.BlockhashRef, error)
	SubmitTransaction(ctx context.Context, tx *sol.Transaction) (sol.Signature, error)
	ConfirmTransaction(ctx context.Context, sig sol.Signature, ref types.BlockhashRef) (*types.Confirmation, error)
}

// Result is the outcome of one settlement attempt.
//
// Fields:
// - Signature: the submitted transaction signature, empty if nothing was submitted.
// - Confirmed: true when the transaction reached the configured commitment.
// - Reason: why the attempt was not confirmed.
// - Slot: the slot the transaction landed in, when known.
type Result struct {
	Signature string
	Confirmed bool
	Reason    string
	Slot      uint64
}

// Coordinator drives an attempt through sign, submit and confirm.
type Coordinator struct {
	ledger         Ledger
	logger         *logrus.Logger
	signingTimeout time.Duration
}

// NewCoordinator creates a coordinator.
//
// Parameters:
// - ledger: the ledger used to submit and confirm.
// - logger: the logger for logging purposes.
// - signingTimeout: the bound on the signer, DefaultSigningTimeout when zero.
//
// Returns:
// - *Coordinator: the new coordinator.
func NewCoordinator(ledger Ledger, logger *logrus.Logger, signingTimeout time.Duration) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if signingTimeout <= 0 {
		signingTimeout = DefaultSigningTimeout
	}
	return &Coordinator{ledger: ledger, logger: logger, signingTimeout: signingTimeout}
}

// Execute signs, submits and confirms a built attempt. Stages run strictly
// in order and the attempt's State follows them.
//
// A transaction that fails on-chain or outlives its blockhash is reported
// with Confirmed=false and a nil error. Errors are returned when the attempt
// could not get that far: signing failed, submission failed, or no blockhash
// could be fetched for confirmation.
//
// Parameters:
// - ctx: the context for managing the request.
// - attempt: the attempt in BUILT state.
// - s: the signer of the fee payer.
//
// Returns:
// - *Result: the outcome, nil when nothing was submitted.
// - error: the failure that stopped the attempt.
func (c *Coordinator) Execute(ctx context.Context, attempt *types.TransactionAttempt, s signer.Signer) (*Result, error) {
	if attempt == nil || attempt.Tx == nil {
		return nil, commonerrors.Validationf("transaction attempt is required")
	}
	if attempt.State != types.AttemptBuilt {
		return nil, commonerrors.Validationf("attempt is %s, expected %s", attempt.State, types.AttemptBuilt)
	}
	if s == nil {
		return nil, commonerrors.Validationf("signer is required")
	}

	logger := c.logger.WithFields(logrus.Fields{
		"payer": s.PublicKey().String(),
		"mode":  attempt.Mode,
	})

	if !s.Supports(attempt.Encoding) {
		attempt.State = types.AttemptFailed
		return nil, errors.Wrapf(commonerrors.ErrUnsupportedEncoding, "%s", attempt.Encoding)
	}

	signed, err := c.sign(ctx, attempt.Tx, s)
	if err != nil {
		attempt.State = types.AttemptFailed
		logger.WithError(err).Warn("Signing failed")
		return nil, err
	}
	sig, err := signer.SignatureOf(signed, s.PublicKey())
	if err != nil {
		attempt.State = types.AttemptFailed
		logger.WithError(err).Warn("Signer returned an unusable transaction")
		return nil, err
	}
	attempt.Tx = signed
	attempt.Signature = sig
	attempt.State = types.AttemptSigned
	logger = logger.WithField("signature", sig.String())

	submitted, err := c.ledger.SubmitTransaction(ctx, signed)
	if err != nil {
		attempt.State = types.AttemptFailed
		logger.WithError(err).Error("Submission failed")
		return nil, errors.Wrap(err, "failed to submit transaction")
	}
	if submitted != sig {
		logger.WithField("reported", submitted.String()).Warn("Node reported a different signature")
	}
	attempt.State = types.AttemptSubmitted

	result := &Result{Signature: sig.String()}

	ref, err := c.ledger.LatestBlockhash(ctx)
	if err != nil {
		attempt.State = types.AttemptFailed
		result.Reason = err.Error()
		logger.WithError(err).Error("No blockhash for confirmation")
		return result, errors.Wrap(err, "failed to get blockhash for confirmation")
	}

	conf, err := c.ledger.ConfirmTransaction(ctx, sig, *ref)
	if err != nil {
		attempt.State = types.AttemptFailed
		result.Reason = err.Error()
		if errors.Is(err, commonerrors.ErrConfirmationTimeout) {
			logger.WithError(err).Warn("Transaction not confirmed in time")
			return result, nil
		}
		return result, errors.Wrap(err, "failed to confirm transaction")
	}

	result.Slot = conf.Slot
	if !conf.Confirmed {
		attempt.State = types.AttemptFailed
		result.Reason = conf.Err
		logger.WithField("reason", conf.Err).Warn("Transaction not confirmed")
		return result, nil
	}

	attempt.State = types.AttemptConfirmed
	result.Confirmed = true
	logger.WithField("slot", conf.Slot).Info("Transaction confirmed")
	return result, nil
}

type signOutcome struct {
	tx  *sol.Transaction
	err error
}

// sign runs the signer under the signing timeout. A signer that ignores its
// context is abandoned when the timeout fires.
func (c *Coordinator) sign(ctx context.Context, tx *sol.Transaction, s signer.Signer) (*sol.Transaction, error) {
	signCtx, cancel := context.WithTimeout(ctx, c.signingTimeout)
	defer cancel()

	done := make(chan signOutcome, 1)
	go func() {
		signed, err := s.SignTransaction(signCtx, tx)
		done <- signOutcome{tx: signed, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, errors.Wrapf(commonerrors.ErrSigningTimeout, "after %s", c.signingTimeout)
			}
			return nil, out.err
		}
		if out.tx == nil {
			return nil, errors.Wrap(commonerrors.ErrSignerRejected, "signer returned no transaction")
		}
		return out.tx, nil
	case <-signCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(commonerrors.ErrSigningTimeout, "after %s", c.signingTimeout)
	}
}
