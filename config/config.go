package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return errors.New("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", raw)
	}
	d.Duration = parsed
	return nil
}

// Config is the read-only configuration surface of the payment engine.
type Config struct {
	Network         types.Network              `yaml:"network"`
	Production      bool                       `yaml:"production"`
	UseRealSwaps    bool                       `yaml:"use_real_swaps"`
	RPCEndpoints    map[types.Network][]string `yaml:"rpc_endpoints"`
	QuoteEndpoints  []string                   `yaml:"quote_endpoints"`
	ReferenceTokens map[types.Network]string   `yaml:"reference_tokens"`
	ReferenceSymbol string                     `yaml:"reference_symbol"`
	TokenDecimals   map[string]uint8           `yaml:"token_decimals"`
	FallbackPrices  map[string]float64         `yaml:"fallback_prices"`
	Pricing         PricingConfig              `yaml:"pricing"`
	Aggregator      AggregatorConfig           `yaml:"aggregator"`
	Ledger          LedgerConfig               `yaml:"ledger"`
	Pool            PoolConfig                 `yaml:"pool"`
	Simulation      SimulationConfig           `yaml:"simulation"`
	Signing         SigningConfig              `yaml:"signing"`
	Database        DatabaseConfig             `yaml:"database"`
}

// PricingConfig tunes price discovery.
type PricingConfig struct {
	// ReferenceNetwork is the cluster whose reference token quotes are priced in.
	// Aggregator liquidity only exists on mainnet, so it defaults to mainnet-beta.
	ReferenceNetwork types.Network `yaml:"reference_network"`
	CacheTTL         Duration      `yaml:"cache_ttl"`
	SlippageBps      int           `yaml:"slippage_bps"`
	FeeBps           int           `yaml:"fee_bps"`
	Attempts         int           `yaml:"attempts"`
	BaseDelay        Duration      `yaml:"base_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	AttemptTimeout   Duration      `yaml:"attempt_timeout"`
}

// AggregatorConfig tunes the aggregator HTTP client.
type AggregatorConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	SwapTimeout       Duration `yaml:"swap_timeout"`
}

// LedgerConfig tunes RPC access.
type LedgerConfig struct {
	Commitment          string   `yaml:"commitment"`
	PreflightCommitment string   `yaml:"preflight_commitment"`
	SkipPreflight       bool     `yaml:"skip_preflight"`
	BlockhashAttempts   int      `yaml:"blockhash_attempts"`
	BlockhashDelay      Duration `yaml:"blockhash_delay"`
	SubmitAttempts      int      `yaml:"submit_attempts"`
	SubmitDelay         Duration `yaml:"submit_delay"`
	ConfirmPollInterval Duration `yaml:"confirm_poll_interval"`
	ConfirmMaxPolls     int      `yaml:"confirm_max_polls"`
}

// PoolConfig tunes endpoint probing.
type PoolConfig struct {
	ProbeTimeout        Duration `yaml:"probe_timeout"`
	HealthCheckInterval Duration `yaml:"health_check_interval"`
}

// SimulationConfig configures the simulated settlement used outside production.
type SimulationConfig struct {
	// ReferencePerNative is the fixed illustrative number of reference tokens per
	// native token. It is a staging placeholder, not a market rate.
	ReferencePerNative float64 `yaml:"reference_per_native"`
}

// SigningConfig bounds the wait for the external signer.
type SigningConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// DatabaseConfig points at the payment store. Empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from the supplied path, applies environment
// overrides and then defaults, and validates the result.
//
// Parameters:
// - path: the YAML file path.
//
// Returns:
// - *Config: the loaded configuration.
// - error: an error if the file cannot be read or the configuration is invalid.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer file.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv returns the default configuration with environment overrides applied.
// The network default follows APP_ENV when SOLANA_NETWORK is unset.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Network == "" {
		if cfg.Production {
			cfg.Network = types.Mainnet
		} else {
			cfg.Network = types.Devnet
		}
	} else {
		cfg.Network = types.ParseNetwork(cfg.Network.String())
	}
	if cfg.RPCEndpoints == nil {
		cfg.RPCEndpoints = defaultRPCEndpoints()
	}
	if len(cfg.QuoteEndpoints) == 0 {
		cfg.QuoteEndpoints = defaultQuoteEndpoints()
	}
	if cfg.ReferenceTokens == nil {
		cfg.ReferenceTokens = defaultReferenceTokens()
	}
	if cfg.ReferenceSymbol == "" {
		cfg.ReferenceSymbol = "USDC"
	}
	decimals := defaultTokenDecimals()
	for mint, d := range cfg.TokenDecimals {
		decimals[mint] = d
	}
	cfg.TokenDecimals = decimals
	if cfg.FallbackPrices == nil {
		cfg.FallbackPrices = defaultFallbackPrices()
	}

	if cfg.Pricing.ReferenceNetwork == "" {
		cfg.Pricing.ReferenceNetwork = types.Mainnet
	} else {
		cfg.Pricing.ReferenceNetwork = types.ParseNetwork(cfg.Pricing.ReferenceNetwork.String())
	}
	if cfg.Pricing.CacheTTL.Duration == 0 {
		cfg.Pricing.CacheTTL.Duration = 5 * time.Minute
	}
	if cfg.Pricing.SlippageBps == 0 {
		cfg.Pricing.SlippageBps = 50
	}
	if cfg.Pricing.Attempts == 0 {
		cfg.Pricing.Attempts = 3
	}
	if cfg.Pricing.BaseDelay.Duration == 0 {
		cfg.Pricing.BaseDelay.Duration = 500 * time.Millisecond
	}
	if cfg.Pricing.Multiplier == 0 {
		cfg.Pricing.Multiplier = 2
	}
	if cfg.Pricing.AttemptTimeout.Duration == 0 {
		cfg.Pricing.AttemptTimeout.Duration = 10 * time.Second
	}

	if cfg.Aggregator.Burst == 0 {
		cfg.Aggregator.Burst = 1
	}
	if cfg.Aggregator.SwapTimeout.Duration == 0 {
		cfg.Aggregator.SwapTimeout.Duration = 15 * time.Second
	}

	if cfg.Ledger.Commitment == "" {
		cfg.Ledger.Commitment = "confirmed"
	}
	if cfg.Ledger.PreflightCommitment == "" {
		cfg.Ledger.PreflightCommitment = "confirmed"
	}
	if cfg.Ledger.BlockhashAttempts == 0 {
		cfg.Ledger.BlockhashAttempts = 3
	}
	if cfg.Ledger.BlockhashDelay.Duration == 0 {
		cfg.Ledger.BlockhashDelay.Duration = time.Second
	}
	if cfg.Ledger.SubmitAttempts == 0 {
		cfg.Ledger.SubmitAttempts = 3
	}
	if cfg.Ledger.SubmitDelay.Duration == 0 {
		cfg.Ledger.SubmitDelay.Duration = time.Second
	}
	if cfg.Ledger.ConfirmPollInterval.Duration == 0 {
		cfg.Ledger.ConfirmPollInterval.Duration = 2 * time.Second
	}
	if cfg.Ledger.ConfirmMaxPolls == 0 {
		cfg.Ledger.ConfirmMaxPolls = 45
	}

	if cfg.Pool.ProbeTimeout.Duration == 0 {
		cfg.Pool.ProbeTimeout.Duration = 3 * time.Second
	}
	if cfg.Pool.HealthCheckInterval.Duration == 0 {
		cfg.Pool.HealthCheckInterval.Duration = 30 * time.Second
	}

	if cfg.Simulation.ReferencePerNative == 0 {
		cfg.Simulation.ReferencePerNative = 100
	}
	if cfg.Signing.Timeout.Duration == 0 {
		cfg.Signing.Timeout.Duration = 2 * time.Minute
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		cfg.Production = strings.EqualFold(v, "production")
	}
	if v := strings.TrimSpace(os.Getenv("SOLANA_NETWORK")); v != "" {
		cfg.Network = types.ParseNetwork(v)
	}
	if v := strings.TrimSpace(os.Getenv("USE_REAL_SWAPS")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.UseRealSwaps = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("PAYMENTS_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Network == types.UnknownNetwork {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "unknown network")
	}
	if len(types.NewEndpoints(types.RoleRPC, c.RPCEndpoints[c.Network])) == 0 {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "no rpc endpoints for network %s", c.Network)
	}
	if len(types.NewEndpoints(types.RoleQuoteAPI, c.QuoteEndpoints)) == 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "no quote endpoints")
	}
	if c.ReferenceTokens[c.Network] == "" {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "no reference token for network %s", c.Network)
	}
	if c.ReferenceTokens[c.Pricing.ReferenceNetwork] == "" {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "no reference token for pricing network %s", c.Pricing.ReferenceNetwork)
	}
	if c.Pricing.Attempts < 1 || c.Ledger.BlockhashAttempts < 1 || c.Ledger.SubmitAttempts < 1 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "retry attempts must be at least 1")
	}
	if c.Pricing.SlippageBps < 0 || c.Pricing.FeeBps < 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "slippage and fee must not be negative")
	}
	if c.Simulation.ReferencePerNative <= 0 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "simulation reference_per_native must be positive")
	}
	if c.Ledger.ConfirmMaxPolls < 1 {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "confirm_max_polls must be at least 1")
	}
	return nil
}

// Mode returns the transaction construction mode. Live swaps are used only
// when running in production with real swaps enabled.
func (c *Config) Mode() types.Mode {
	if c.Production && c.UseRealSwaps {
		return types.ModeLive
	}
	return types.ModeSimulated
}

// ReferenceToken returns the settlement token mint for the configured network.
func (c *Config) ReferenceToken() string {
	return c.ReferenceTokens[c.Network]
}

// PricingReferenceToken returns the reference token mint quotes are priced in.
func (c *Config) PricingReferenceToken() string {
	return c.ReferenceTokens[c.Pricing.ReferenceNetwork]
}

// Decimals returns the decimal count of a mint, defaulting to 6 for unknown mints.
func (c *Config) Decimals(mint string) uint8 {
	if d, ok := c.TokenDecimals[mint]; ok {
		return d
	}
	return defaultDecimalsFallback
}

// RPCEndpointList returns the ranked RPC endpoints for the configured network.
func (c *Config) RPCEndpointList() []types.Endpoint {
	return types.NewEndpoints(types.RoleRPC, c.RPCEndpoints[c.Network])
}

// QuoteEndpointList returns the ranked aggregator mirrors.
func (c *Config) QuoteEndpointList() []types.Endpoint {
	return types.NewEndpoints(types.RoleQuoteAPI, c.QuoteEndpoints)
}
