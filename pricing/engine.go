package pricing

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ClipFinance/settlement-lib/aggregator"
	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/metrics"
	"github.com/ClipFinance/settlement-lib/retry"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// QuoteFetcher requests quotes from one aggregator mirror.
type QuoteFetcher interface {
	Quote(ctx context.Context, baseURL string, req aggregator.QuoteRequest) (*aggregator.QuoteResponse, error)
}

// EndpointPool supplies ranked aggregator mirrors and is told which failed.
type EndpointPool interface {
	Candidates(role types.EndpointRole) []types.Endpoint
	Demote(endpoint types.Endpoint)
}

// DecimalsFunc returns the decimal count of a mint.
type DecimalsFunc func(mint string) uint8

// Options configures the engine.
type Options struct {
	// ReferenceToken is the mint every quote is priced in.
	ReferenceToken string
	Decimals       DecimalsFunc
	// FallbackPrices maps a mint to its rough reference-token price.
	// Mints without an entry are estimated 1:1.
	FallbackPrices map[string]decimal.Decimal
	CacheTTL       time.Duration
	SlippageBps    int
	FeeBps         int
	Policy         retry.Policy
	Metrics        *metrics.Metrics
}

// Engine converts token amounts into reference-token quotes. It never fails
// for valid input: when the aggregator is unreachable it serves a stale
// cache entry, and failing that a static estimate.
type Engine struct {
	fetcher QuoteFetcher
	pool    EndpointPool
	cache   *Cache
	logger  *logrus.Logger
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine creates a price quote engine.
//
// Parameters:
// - fetcher: the aggregator client.
// - pool: the endpoint pool holding the aggregator mirrors.
// - logger: the logger for logging purposes.
// - opts: reference token, decimals, fallback prices, cache TTL and retry policy.
//
// Returns:
// - *Engine: the new engine.
func NewEngine(fetcher QuoteFetcher, pool EndpointPool, logger *logrus.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Decimals == nil {
		opts.Decimals = func(string) uint8 { return 6 }
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.Exponential(3, 500*time.Millisecond, 2, 10*time.Second)
	}
	return &Engine{
		fetcher: fetcher,
		pool:    pool,
		cache:   NewCache(),
		logger:  logger,
		opts:    opts,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// GetPrice returns the reference-token value of amountIn units of tokenIn.
//
// The only error is a validation error for malformed input. Network trouble
// degrades the result instead: the returned quote's Source tells whether it
// is live, cached, stale or estimated.
//
// Parameters:
// - ctx: the context for managing the request.
// - tokenIn: the input mint, base58.
// - amountIn: the input amount in token units.
//
// Returns:
// - *types.Quote: a copy of the quote.
// - error: ErrValidation when the input is malformed.
func (e *Engine) GetPrice(ctx context.Context, tokenIn string, amountIn decimal.Decimal) (*types.Quote, error) {
	if _, err := sol.PublicKeyFromBase58(tokenIn); err != nil {
		return nil, commonerrors.Validationf("invalid input token %q", tokenIn)
	}
	if !amountIn.IsPositive() {
		return nil, commonerrors.Validationf("amount must be positive, got %s", amountIn)
	}

	decimals := e.opts.Decimals(tokenIn)
	rawAmount := amountIn.Shift(int32(decimals)).Floor()
	if !rawAmount.IsPositive() {
		return nil, commonerrors.Validationf("amount %s is below the smallest unit of %s", amountIn, tokenIn)
	}
	if rawAmount.GreaterThan(maxUint64) {
		return nil, commonerrors.Validationf("amount %s is too large", amountIn)
	}
	inAmount := rawAmount.BigInt().Uint64()

	key := types.CacheKey{InputToken: tokenIn, InAmount: inAmount}
	logger := e.logger.WithFields(logrus.Fields{
		"token":  tokenIn,
		"amount": inAmount,
	})

	cached, hasCached := e.cache.Get(key)
	if hasCached && cached.Fresh(e.now()) {
		quote := cached.Quote
		if quote.Source == types.SourceLive {
			quote.Source = types.SourceCache
		}
		logger.WithField("source", quote.Source).Debug("Serving cached quote")
		return e.serve(&quote), nil
	}

	quote, err := e.fetch(ctx, tokenIn, inAmount, logger)
	if err == nil {
		e.cache.Put(key, CacheEntry{Quote: *quote, FetchedAt: quote.FetchedAt, TTL: e.opts.CacheTTL})
		return e.serve(quote), nil
	}

	logger.WithError(err).Warn("Live price discovery failed")

	// An expired estimate is re-estimated, never relabelled as stale-cache.
	if hasCached && cached.Quote.Source != types.SourceEstimate {
		quote := cached.Quote
		quote.Source = types.SourceStaleCache
		quote.FallbackReason = err.Error()
		logger.WithField("age", e.now().Sub(cached.FetchedAt).String()).Warn("Serving expired cached quote")
		return e.serve(&quote), nil
	}

	estimate := e.estimate(tokenIn, amountIn, inAmount, err)
	e.cache.Put(key, CacheEntry{Quote: *estimate, FetchedAt: estimate.FetchedAt, TTL: e.opts.CacheTTL / 2})
	logger.WithField("outAmount", estimate.OutAmount.String()).Warn("Serving estimated quote")
	return e.serve(estimate), nil
}

// fetch runs the bounded retry loop over the aggregator mirrors. Attempt i
// goes to the i-th mirror of the ranking taken when the call started, so
// every retry hits a different mirror while there are enough of them.
func (e *Engine) fetch(ctx context.Context, tokenIn string, inAmount uint64, logger *logrus.Entry) (*types.Quote, error) {
	candidates := e.pool.Candidates(types.RoleQuoteAPI)
	if len(candidates) == 0 {
		return nil, errors.New("no aggregator endpoints configured")
	}

	req := aggregator.QuoteRequest{
		InputMint:   tokenIn,
		OutputMint:  e.opts.ReferenceToken,
		Amount:      inAmount,
		SlippageBps: e.opts.SlippageBps,
		FeeBps:      e.opts.FeeBps,
	}

	var quote *types.Quote
	err := e.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		endpoint := candidates[(attempt-1)%len(candidates)]

		resp, err := e.fetcher.Quote(ctx, endpoint.URL, req)
		if err == nil {
			quote, err = e.toQuote(tokenIn, inAmount, resp)
		}
		if err != nil {
			e.metrics.QuoteAttemptFailed(endpoint.URL)
			logger.WithFields(logrus.Fields{
				"attempt":  attempt,
				"endpoint": endpoint.URL,
				"error":    err,
			}).Warn("Quote attempt failed")

			if errors.Is(err, commonerrors.ErrNoRoute) {
				return retry.Permanent(err)
			}
			e.pool.Demote(endpoint)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (e *Engine) toQuote(tokenIn string, inAmount uint64, resp *aggregator.QuoteResponse) (*types.Quote, error) {
	outRaw, err := resp.OutAmount.Uint64()
	if err != nil || outRaw == 0 {
		return nil, errors.Wrap(commonerrors.ErrNoRoute, "quote without positive outAmount")
	}

	refDecimals := e.opts.Decimals(e.opts.ReferenceToken)
	impact := decimal.Zero
	if resp.PriceImpactPct != "" {
		if parsed, err := decimal.NewFromString(resp.PriceImpactPct); err == nil {
			impact = parsed
		}
	}

	return &types.Quote{
		InputToken:     tokenIn,
		OutputToken:    e.opts.ReferenceToken,
		InAmount:       inAmount,
		OutAmountRaw:   outRaw,
		OutAmount:      decimal.NewFromBigInt(new(big.Int).SetUint64(outRaw), -int32(refDecimals)),
		PriceImpactPct: impact,
		PriceImpactBps: impact.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Raw:            append([]byte(nil), resp.Raw...),
		Source:         types.SourceLive,
		FetchedAt:      e.now(),
	}, nil
}

func (e *Engine) estimate(tokenIn string, amountIn decimal.Decimal, inAmount uint64, cause error) *types.Quote {
	price, ok := e.opts.FallbackPrices[tokenIn]
	if !ok {
		price = decimal.NewFromInt(1)
	}

	refDecimals := int32(e.opts.Decimals(e.opts.ReferenceToken))
	out := amountIn.Mul(price)
	outRaw := out.Shift(refDecimals).Floor()

	var raw uint64
	if outRaw.IsPositive() && outRaw.LessThanOrEqual(maxUint64) {
		raw = outRaw.BigInt().Uint64()
	}

	return &types.Quote{
		InputToken:     tokenIn,
		OutputToken:    e.opts.ReferenceToken,
		InAmount:       inAmount,
		OutAmountRaw:   raw,
		OutAmount:      out,
		PriceImpactPct: decimal.Zero,
		Source:         types.SourceEstimate,
		FetchedAt:      e.now(),
		FallbackReason: cause.Error(),
	}
}

func (e *Engine) serve(quote *types.Quote) *types.Quote {
	e.metrics.QuoteServed(quote.Source.String())
	out := *quote
	out.Raw = append([]byte(nil), quote.Raw...)
	return &out
}
