package engine

import (
	"net/http"

	"github.com/ClipFinance/settlement-lib/aggregator"
	"github.com/ClipFinance/settlement-lib/chains/solana"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/config"
	"github.com/ClipFinance/settlement-lib/connectionmonitor"
	"github.com/ClipFinance/settlement-lib/endpointpool"
	"github.com/ClipFinance/settlement-lib/metrics"
	"github.com/ClipFinance/settlement-lib/payments"
	"github.com/ClipFinance/settlement-lib/pricing"
	"github.com/ClipFinance/settlement-lib/retry"
	"github.com/ClipFinance/settlement-lib/settlement"
	"github.com/ClipFinance/settlement-lib/txbuilder"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// EngineBuilder assembles an Engine from configuration. Every collaborator
// has a production default; the With methods replace them, mostly for tests.
type EngineBuilder struct {
	config     *config.Config        // Engine configuration.
	logger     *logrus.Logger        // Shared logger.
	store      payments.Store        // Payment store, chosen from config when nil.
	dial       solana.Dialer         // RPC client factory.
	httpClient *http.Client          // HTTP client for the aggregator.
	registerer prometheus.Registerer // Metrics registerer, metrics stay unregistered when nil.
}

// NewEngineBuilder creates a new engine builder instance.
//
// Parameters:
// - cfg: the engine configuration, config.Default() when nil.
//
// Returns:
// - *EngineBuilder: a new EngineBuilder instance.
func NewEngineBuilder(cfg *config.Config) *EngineBuilder {
	return &EngineBuilder{
		config: cfg,
	}
}

// WithLogger sets the logger shared by every component.
//
// Parameters:
// - logger: the logger.
//
// Returns:
// - *EngineBuilder: the updated EngineBuilder instance.
func (b *EngineBuilder) WithLogger(logger *logrus.Logger) *EngineBuilder {
	b.logger = logger
	return b
}

// WithStore sets the payment store.
//
// Parameters:
// - store: the payment store implementation.
//
// Returns:
// - *EngineBuilder: the updated EngineBuilder instance.
func (b *EngineBuilder) WithStore(store payments.Store) *EngineBuilder {
	b.store = store
	return b
}

// WithRPCDialer sets the factory for ledger RPC clients.
//
// Parameters:
// - dial: the dialer.
//
// Returns:
// - *EngineBuilder: the updated EngineBuilder instance.
func (b *EngineBuilder) WithRPCDialer(dial solana.Dialer) *EngineBuilder {
	b.dial = dial
	return b
}

// WithHTTPClient sets the HTTP client used for aggregator calls.
//
// Parameters:
// - client: the HTTP client.
//
// Returns:
// - *EngineBuilder: the updated EngineBuilder instance.
func (b *EngineBuilder) WithHTTPClient(client *http.Client) *EngineBuilder {
	b.httpClient = client
	return b
}

// WithRegisterer sets the Prometheus registerer for the engine metrics.
//
// Parameters:
// - reg: the registerer.
//
// Returns:
// - *EngineBuilder: the updated EngineBuilder instance.
func (b *EngineBuilder) WithRegisterer(reg prometheus.Registerer) *EngineBuilder {
	b.registerer = reg
	return b
}

// Build validates the configuration and wires the engine.
//
// Returns:
// - *Engine: the engine, not yet started.
// - error: ErrInvalidConfig or a store construction error.
func (b *EngineBuilder) Build() (*Engine, error) {
	cfg := b.config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	m := metrics.New(b.registerer)

	endpoints := append(cfg.RPCEndpointList(), cfg.QuoteEndpointList()...)
	pool := endpointpool.New(endpoints, logger, endpointpool.Options{
		ProbeTimeout: cfg.Pool.ProbeTimeout.Duration,
		Monitor: connectionmonitor.Options{
			Interval: cfg.Pool.HealthCheckInterval.Duration,
		},
		Metrics: m,
	})

	ledger := solana.NewLedger(pool, b.dial, logger, solana.Options{
		Commitment:          rpc.CommitmentType(cfg.Ledger.Commitment),
		PreflightCommitment: rpc.CommitmentType(cfg.Ledger.PreflightCommitment),
		SkipPreflight:       cfg.Ledger.SkipPreflight,
		BlockhashPolicy:     retry.Fixed(cfg.Ledger.BlockhashAttempts, cfg.Ledger.BlockhashDelay.Duration),
		SubmitPolicy:        retry.Fixed(cfg.Ledger.SubmitAttempts, cfg.Ledger.SubmitDelay.Duration),
		PollInterval:        cfg.Ledger.ConfirmPollInterval.Duration,
		MaxPolls:            cfg.Ledger.ConfirmMaxPolls,
		Metrics:             m,
	})

	client := aggregator.NewClient(b.httpClient, logger, aggregator.Options{
		RequestsPerSecond: cfg.Aggregator.RequestsPerSecond,
		Burst:             cfg.Aggregator.Burst,
	})

	pool.RegisterProber(types.RoleRPC, endpointpool.ProberFunc(ledger.Probe))
	pool.RegisterProber(types.RoleQuoteAPI, client)

	fallback := make(map[string]decimal.Decimal, len(cfg.FallbackPrices))
	for mint, price := range cfg.FallbackPrices {
		fallback[mint] = decimal.NewFromFloat(price)
	}
	pricer := pricing.NewEngine(client, pool, logger, pricing.Options{
		ReferenceToken: cfg.PricingReferenceToken(),
		Decimals:       cfg.Decimals,
		FallbackPrices: fallback,
		CacheTTL:       cfg.Pricing.CacheTTL.Duration,
		SlippageBps:    cfg.Pricing.SlippageBps,
		FeeBps:         cfg.Pricing.FeeBps,
		Policy: retry.Exponential(
			cfg.Pricing.Attempts,
			cfg.Pricing.BaseDelay.Duration,
			cfg.Pricing.Multiplier,
			cfg.Pricing.AttemptTimeout.Duration,
		),
		Metrics: m,
	})

	builder := txbuilder.NewBuilder(ledger, client, pool, logger, txbuilder.Options{
		Network:            cfg.Network,
		ReferenceSymbol:    cfg.ReferenceSymbol,
		ReferencePerNative: decimal.NewFromFloat(cfg.Simulation.ReferencePerNative),
		SwapPolicy: retry.Exponential(
			cfg.Pricing.Attempts,
			cfg.Pricing.BaseDelay.Duration,
			cfg.Pricing.Multiplier,
			cfg.Aggregator.SwapTimeout.Duration,
		),
	})

	store := b.store
	var owned *payments.PostgresStore
	if store == nil {
		if cfg.Database.DSN != "" {
			pg, err := payments.NewPostgresStore(cfg.Database.DSN)
			if err != nil {
				return nil, errors.Wrap(err, "failed to open payment store")
			}
			owned = pg
			store = pg
		} else {
			store = payments.NewMemoryStore()
		}
	}

	return &Engine{
		config:      cfg,
		logger:      logger,
		mode:        cfg.Mode(),
		pool:        pool,
		ledger:      ledger,
		pricer:      pricer,
		builder:     builder,
		coordinator: settlement.NewCoordinator(ledger, logger, cfg.Signing.Timeout.Duration),
		payments:    payments.NewService(store, logger, m),
		ownedStore:  owned,
	}, nil
}
