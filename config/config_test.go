package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, types.Devnet, cfg.Network)
	assert.Equal(t, types.ModeSimulated, cfg.Mode())
	assert.Equal(t, USDCDevnetMint, cfg.ReferenceToken())
	assert.Equal(t, USDCMainnetMint, cfg.PricingReferenceToken())
	assert.Equal(t, 5*time.Minute, cfg.Pricing.CacheTTL.Duration)
	assert.Equal(t, 3, cfg.Pricing.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Pricing.BaseDelay.Duration)
	assert.Equal(t, 10*time.Second, cfg.Pricing.AttemptTimeout.Duration)
	assert.Equal(t, 3, cfg.Ledger.BlockhashAttempts)
	assert.Equal(t, time.Second, cfg.Ledger.BlockhashDelay.Duration)
	assert.Equal(t, "confirmed", cfg.Ledger.Commitment)
	assert.Len(t, cfg.QuoteEndpointList(), 3)
}

func TestDecimals(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint8(9), cfg.Decimals(SOLMint))
	assert.Equal(t, uint8(5), cfg.Decimals(BONKMint))
	assert.Equal(t, uint8(6), cfg.Decimals("UnknownMint1111111111111111111111111111111"))
}

func TestLoad(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SOLANA_NETWORK", "")
	t.Setenv("USE_REAL_SWAPS", "")
	t.Setenv("PAYMENTS_DATABASE_DSN", "")

	path := writeConfig(t, `
network: mainnet
production: true
use_real_swaps: true
rpc_endpoints:
  mainnet-beta:
    - https://rpc-a.example/
    - https://rpc-b.example
quote_endpoints:
  - https://quote.example/v6
token_decimals:
  CustomMint: 8
pricing:
  cache_ttl: 1m
  attempts: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, types.Mainnet, cfg.Network)
	assert.Equal(t, types.ModeLive, cfg.Mode())
	assert.Equal(t, time.Minute, cfg.Pricing.CacheTTL.Duration)
	assert.Equal(t, 5, cfg.Pricing.Attempts)
	assert.Equal(t, uint8(8), cfg.Decimals("CustomMint"))
	assert.Equal(t, uint8(9), cfg.Decimals(SOLMint))

	rpcs := cfg.RPCEndpointList()
	require.Len(t, rpcs, 2)
	assert.Equal(t, "https://rpc-a.example", rpcs[0].URL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SOLANA_NETWORK", "mainnet-beta")
	t.Setenv("USE_REAL_SWAPS", "false")
	t.Setenv("PAYMENTS_DATABASE_DSN", "postgres://localhost/payments")

	cfg, err := Load(writeConfig(t, "network: devnet\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Production)
	assert.Equal(t, types.Mainnet, cfg.Network)
	assert.Equal(t, types.ModeSimulated, cfg.Mode())
	assert.Equal(t, "postgres://localhost/payments", cfg.Database.DSN)
}

func TestProductionDefaultsToMainnet(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SOLANA_NETWORK", "")
	t.Setenv("USE_REAL_SWAPS", "true")
	t.Setenv("PAYMENTS_DATABASE_DSN", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Production)
	assert.Equal(t, types.Mainnet, cfg.Network)
	assert.Equal(t, types.ModeLive, cfg.Mode())
	assert.Equal(t, USDCMainnetMint, cfg.ReferenceToken())

	cfg, err = Load(writeConfig(t, "quote_endpoints: [https://quote.example/v6]\n"))
	require.NoError(t, err)
	assert.Equal(t, types.Mainnet, cfg.Network)
}

func TestNonProductionDefaultsToDevnet(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("SOLANA_NETWORK", "")
	t.Setenv("USE_REAL_SWAPS", "true")
	t.Setenv("PAYMENTS_DATABASE_DSN", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, types.Devnet, cfg.Network)
	assert.Equal(t, types.ModeSimulated, cfg.Mode())
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SOLANA_NETWORK", "")
	t.Setenv("USE_REAL_SWAPS", "")

	t.Run("unknown network", func(t *testing.T) {
		_, err := Load(writeConfig(t, "network: localnet\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, commonerrors.ErrInvalidConfig))
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pricing:\n  cache_ttl: soon\n"))
		require.Error(t, err)
	})

	t.Run("network without endpoints", func(t *testing.T) {
		_, err := Load(writeConfig(t, "network: testnet\nrpc_endpoints:\n  devnet: [https://a.example]\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, commonerrors.ErrInvalidConfig))
	})
}
