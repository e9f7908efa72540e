package engine

import (
	"context"

	"github.com/ClipFinance/settlement-lib/chains/solana"
	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/config"
	"github.com/ClipFinance/settlement-lib/endpointpool"
	"github.com/ClipFinance/settlement-lib/payments"
	"github.com/ClipFinance/settlement-lib/pricing"
	"github.com/ClipFinance/settlement-lib/settlement"
	"github.com/ClipFinance/settlement-lib/signer"
	"github.com/ClipFinance/settlement-lib/txbuilder"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentRequest carries everything needed to settle one payment.
//
// Fields:
// - Payment: the PENDING payment being settled.
// - Quote: the quote the payer accepted.
// - Recipient: the merchant wallet, base58.
// - Signer: the payer's signer, also the fee payer.
type PaymentRequest struct {
	Payment   *types.Payment
	Quote     *types.Quote
	Recipient string
	Signer    signer.Signer
}

// Engine is the payment execution engine: price discovery, transaction
// construction and settlement on one ledger network.
type Engine struct {
	config      *config.Config
	logger      *logrus.Logger
	mode        types.Mode
	pool        *endpointpool.Pool
	ledger      *solana.Ledger
	pricer      *pricing.Engine
	builder     *txbuilder.Builder
	coordinator *settlement.Coordinator
	payments    *payments.Service
	ownedStore  *payments.PostgresStore
}

// Start begins background endpoint probing and prepares an owned payment
// store. It returns without waiting for the probes.
func (e *Engine) Start(ctx context.Context) error {
	if e.ownedStore != nil {
		if err := e.ownedStore.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if err := e.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start endpoint pool")
	}
	e.logger.WithFields(logrus.Fields{
		"network": e.config.Network,
		"mode":    e.mode,
	}).Info("Payment engine started")
	return nil
}

// Close stops background work and releases an owned payment store.
func (e *Engine) Close() {
	e.pool.Stop()
	if e.ownedStore != nil {
		if err := e.ownedStore.Close(); err != nil {
			e.logger.WithError(err).Warn("Failed to close payment store")
		}
	}
}

// Mode returns how settlement transactions are constructed.
func (e *Engine) Mode() types.Mode {
	return e.mode
}

// GetPrice quotes amountIn of tokenIn in the reference token. Degraded
// quotes are returned without error and flagged through their Source.
func (e *Engine) GetPrice(ctx context.Context, tokenIn string, amountIn decimal.Decimal) (*types.Quote, error) {
	return e.pricer.GetPrice(ctx, tokenIn, amountIn)
}

// OpenPayment records a PENDING payment.
func (e *Engine) OpenPayment(ctx context.Context, intent types.PaymentIntent) (*types.Payment, error) {
	return e.payments.Open(ctx, intent)
}

// GetPayment returns a stored payment.
func (e *Engine) GetPayment(ctx context.Context, id string) (*types.Payment, error) {
	return e.payments.Get(ctx, id)
}

// SubscribePayments subscribes to payment status changes.
func (e *Engine) SubscribePayments(buffer int) *types.Subscription {
	return e.payments.SubscribeStatus(buffer)
}

// ExecutePayment builds, signs, submits and confirms the settlement of a
// PENDING payment, then settles the payment record.
//
// Invalid requests are rejected with ErrValidation and leave the payment
// PENDING. Every later failure settles the payment FAILED. A transaction that
// was submitted but not confirmed yields the result, with its signature, and
// an error wrapping ErrTransactionFailed.
//
// Parameters:
// - ctx: the context for managing the request.
// - req: the payment, quote, recipient and signer.
//
// Returns:
// - *settlement.Result: the settlement outcome, nil when nothing was submitted.
// - error: the failure, nil when the payment is CONFIRMED.
func (e *Engine) ExecutePayment(ctx context.Context, req PaymentRequest) (*settlement.Result, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	payment := req.Payment
	payer := req.Signer.PublicKey().String()
	logger := e.logger.WithFields(logrus.Fields{
		"payment": payment.ID,
		"payer":   payer,
		"mode":    e.mode,
	})

	if req.Quote.Degraded() && e.mode == types.ModeLive {
		logger.WithField("source", req.Quote.Source).Warn("Settling a degraded quote")
	}

	attempt, err := e.builder.Build(ctx, req.Quote, payer, req.Recipient, e.mode)
	if err != nil {
		if errors.Is(err, commonerrors.ErrValidation) {
			return nil, err
		}
		e.fail(ctx, logger, payment, "", err.Error())
		return nil, errors.Wrap(err, "failed to build transaction")
	}

	result, err := e.coordinator.Execute(ctx, attempt, req.Signer)
	if err != nil {
		signature := ""
		if result != nil {
			signature = result.Signature
		}
		e.fail(ctx, logger, payment, signature, err.Error())
		return result, err
	}

	if !result.Confirmed {
		e.fail(ctx, logger, payment, result.Signature, result.Reason)
		return result, errors.Wrapf(commonerrors.ErrTransactionFailed, "%s: %s", result.Signature, result.Reason)
	}

	if err := e.payments.Settle(context.WithoutCancel(ctx), payment, types.StatusConfirmed, result.Signature, ""); err != nil {
		logger.WithError(err).Error("Confirmed transaction could not be recorded")
		return result, err
	}
	return result, nil
}

// WalletBalance returns the balance of token held by wallet. An empty token
// or the native mint selects the native balance.
func (e *Engine) WalletBalance(ctx context.Context, wallet, token string) (*types.Balance, error) {
	return e.ledger.GetTokenBalance(ctx, wallet, token)
}

// TransactionStatus looks up a submitted signature.
func (e *Engine) TransactionStatus(ctx context.Context, signature string) (*types.SignatureStatus, error) {
	sig, err := sol.SignatureFromBase58(signature)
	if err != nil {
		return nil, commonerrors.Validationf("invalid signature %q", signature)
	}
	return e.ledger.SignatureStatus(ctx, sig)
}

func (e *Engine) validate(req PaymentRequest) error {
	if req.Payment == nil {
		return commonerrors.Validationf("payment is required")
	}
	if req.Payment.Status != types.StatusPending {
		return commonerrors.Validationf("payment %s is %s", req.Payment.ID, req.Payment.Status)
	}
	if req.Quote == nil {
		return commonerrors.Validationf("quote is required")
	}
	if req.Signer == nil {
		return commonerrors.Validationf("signer is required")
	}
	from := req.Payment.FromWallet
	if from != "" && from != payments.UnknownWallet && from != req.Signer.PublicKey().String() {
		return commonerrors.Validationf("payment %s belongs to wallet %s", req.Payment.ID, from)
	}
	return nil
}

// fail settles the payment FAILED. The record is written even when ctx is
// already cancelled.
func (e *Engine) fail(ctx context.Context, logger *logrus.Entry, payment *types.Payment, signature, reason string) {
	if err := e.payments.Settle(context.WithoutCancel(ctx), payment, types.StatusFailed, signature, reason); err != nil {
		logger.WithError(err).Error("Failed payment could not be recorded")
	}
}
