package txbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/ClipFinance/settlement-lib/aggregator"
	"github.com/ClipFinance/settlement-lib/chains/solana/utils"
	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/retry"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BlockhashSource returns a recent blockhash, retrying internally.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (*types.BlockhashRef, error)
}

// SwapClient requests swap transactions from an aggregator mirror.
type SwapClient interface {
	SwapTransaction(ctx context.Context, baseURL string, req aggregator.SwapRequest) (*aggregator.SwapResponse, error)
}

// EndpointPool supplies ranked aggregator mirrors and is told which failed.
type EndpointPool interface {
	Candidates(role types.EndpointRole) []types.Endpoint
	Demote(endpoint types.Endpoint)
}

// Options configures the builder.
type Options struct {
	Network types.Network
	// ReferenceSymbol is used in the simulated settlement memo.
	ReferenceSymbol string
	// ReferencePerNative is the fixed number of reference tokens per SOL used
	// to size simulated transfers.
	ReferencePerNative decimal.Decimal
	// SwapPolicy bounds POST /swap attempts across mirrors.
	SwapPolicy retry.Policy
}

// Builder produces unsigned settlement transactions.
type Builder struct {
	blockhashes BlockhashSource
	swaps       SwapClient
	pool        EndpointPool
	logger      *logrus.Logger
	opts        Options
}

// NewBuilder creates a transaction builder.
//
// Parameters:
// - blockhashes: the source of recent blockhashes for simulated transfers.
// - swaps: the aggregator client used in live mode.
// - pool: the endpoint pool holding the aggregator mirrors.
// - logger: the logger for logging purposes.
// - opts: network, memo symbol, simulation rate and swap retry policy.
//
// Returns:
// - *Builder: the new builder.
func NewBuilder(blockhashes BlockhashSource, swaps SwapClient, pool EndpointPool, logger *logrus.Logger, opts Options) *Builder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.ReferenceSymbol == "" {
		opts.ReferenceSymbol = "USDC"
	}
	if !opts.ReferencePerNative.IsPositive() {
		opts.ReferencePerNative = decimal.NewFromInt(100)
	}
	if opts.SwapPolicy.MaxAttempts == 0 {
		opts.SwapPolicy = retry.Exponential(3, 500*time.Millisecond, 2, 15*time.Second)
	}
	return &Builder{
		blockhashes: blockhashes,
		swaps:       swaps,
		pool:        pool,
		logger:      logger,
		opts:        opts,
	}
}

// Build produces the unsigned transaction settling quote from payer to
// recipient. Inputs are validated before any network call.
//
// Parameters:
// - ctx: the context for managing the request.
// - quote: the quote being settled.
// - payer: the fee payer and source wallet, base58.
// - recipient: the merchant wallet, base58.
// - mode: simulated or live.
//
// Returns:
// - *types.TransactionAttempt: the attempt in BUILT state.
// - error: ErrValidation for bad input, otherwise the construction error.
func (b *Builder) Build(ctx context.Context, quote *types.Quote, payer, recipient string, mode types.Mode) (*types.TransactionAttempt, error) {
	if quote == nil {
		return nil, commonerrors.Validationf("quote is required")
	}
	payerKey, err := sol.PublicKeyFromBase58(payer)
	if err != nil {
		return nil, commonerrors.Validationf("invalid payer address %q", payer)
	}
	recipientKey, err := sol.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, commonerrors.Validationf("invalid recipient address %q", recipient)
	}

	switch mode {
	case types.ModeSimulated:
		return b.buildSimulated(ctx, quote, payerKey, recipientKey)
	case types.ModeLive:
		return b.buildLive(ctx, quote, payerKey, recipientKey)
	default:
		return nil, commonerrors.Validationf("unknown mode %q", mode)
	}
}

// buildSimulated builds a native transfer approximating the quote's
// reference-token value plus a memo marking it as simulated.
func (b *Builder) buildSimulated(ctx context.Context, quote *types.Quote, payer, recipient sol.PublicKey) (*types.TransactionAttempt, error) {
	settled := quote.OutAmount.Ceil()
	lamports, err := utils.ReferenceToLamports(settled, b.opts.ReferencePerNative)
	if err != nil {
		return nil, commonerrors.Validationf("quote out amount %s: %v", quote.OutAmount, err)
	}
	if lamports == 0 {
		return nil, commonerrors.Validationf("quote out amount %s is not positive", quote.OutAmount)
	}

	memo := fmt.Sprintf("Simulated swap settlement: %s %s (%s)", settled.String(), b.opts.ReferenceSymbol, b.opts.Network)

	ref, err := b.blockhashes.LatestBlockhash(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get blockhash from %s", b.opts.Network)
	}

	tx, err := sol.NewTransaction(
		[]sol.Instruction{
			utils.CreateNativeTransferInstruction(payer, recipient, lamports),
			utils.CreateMemoInstruction(memo),
		},
		ref.Blockhash,
		sol.TransactionPayer(payer),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transaction")
	}

	b.logger.WithFields(logrus.Fields{
		"payer":     payer.String(),
		"recipient": recipient.String(),
		"lamports":  lamports,
		"settled":   settled.String(),
		"network":   b.opts.Network,
	}).Info("Built simulated settlement transaction")

	return &types.TransactionAttempt{
		Tx:                   tx,
		Encoding:             types.EncodingLegacy,
		Mode:                 types.ModeSimulated,
		Blockhash:            ref.Blockhash,
		LastValidBlockHeight: ref.LastValidBlockHeight,
		State:                types.AttemptBuilt,
	}, nil
}

// buildLive asks the aggregator for the swap transaction of a live quote,
// delivering the output to the recipient's token account. The transaction
// is decoded without alteration.
func (b *Builder) buildLive(ctx context.Context, quote *types.Quote, payer, recipient sol.PublicKey) (*types.TransactionAttempt, error) {
	if quote.Source == types.SourceEstimate || len(quote.Raw) == 0 {
		return nil, commonerrors.Validationf("live settlement requires an aggregator quote, got %s", quote.Source)
	}
	outputMint, err := sol.PublicKeyFromBase58(quote.OutputToken)
	if err != nil {
		return nil, commonerrors.Validationf("invalid quote output token %q", quote.OutputToken)
	}
	if quote.Source == types.SourceStaleCache {
		b.logger.WithField("reason", quote.FallbackReason).Warn("Building live swap from an expired quote")
	}

	destination, err := utils.GetAssociatedTokenAddress(outputMint, recipient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive recipient token account")
	}

	candidates := b.pool.Candidates(types.RoleQuoteAPI)
	if len(candidates) == 0 {
		return nil, errors.New("no aggregator endpoints configured")
	}

	req := aggregator.SwapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           payer.String(),
		DestinationTokenAccount: destination.String(),
	}

	var resp *aggregator.SwapResponse
	err = b.opts.SwapPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		endpoint := candidates[(attempt-1)%len(candidates)]

		swap, err := b.swaps.SwapTransaction(ctx, endpoint.URL, req)
		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"attempt":  attempt,
				"endpoint": endpoint.URL,
				"error":    err,
			}).Warn("Swap transaction request failed")
			if errors.Is(err, commonerrors.ErrValidation) || errors.Is(err, commonerrors.ErrNoRoute) {
				return retry.Permanent(err)
			}
			b.pool.Demote(endpoint)
			return err
		}
		resp = swap
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get swap transaction")
	}

	tx, err := utils.DecodeTransaction(resp.SwapTransaction)
	if err != nil {
		return nil, err
	}
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(payer) {
		return nil, errors.New("swap transaction fee payer does not match payer")
	}

	b.logger.WithFields(logrus.Fields{
		"payer":       payer.String(),
		"destination": destination.String(),
		"encoding":    types.EncodingOf(tx),
	}).Info("Built live swap transaction")

	return &types.TransactionAttempt{
		Tx:                   tx,
		Encoding:             types.EncodingOf(tx),
		Mode:                 types.ModeLive,
		Blockhash:            tx.Message.RecentBlockhash,
		LastValidBlockHeight: resp.LastValidBlockHeight,
		State:                types.AttemptBuilt,
	}, nil
}
