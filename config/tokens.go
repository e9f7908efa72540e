package config

import "github.com/ClipFinance/settlement-lib/common/types"

// Well-known mints.
const (
	SOLMint         = "So11111111111111111111111111111111111111112"
	USDCMainnetMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetMint  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	BONKMint        = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	JUPMint         = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	RAYMint         = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	MNGOMint        = "MangoCzJ36AjZyKwVj3VnYU4GTonjfVEnJmvvWaxLac"
	JSOLMint        = "7Q2afV64in6N6SeZsAAB181TxT9uK7ve6s1xXYquJ9NN"
	ORCAMint        = "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE"
)

// defaultDecimalsFallback is used for mints missing from the decimals table.
const defaultDecimalsFallback = 6

func defaultReferenceTokens() map[types.Network]string {
	return map[types.Network]string{
		types.Mainnet: USDCMainnetMint,
		types.Devnet:  USDCDevnetMint,
		types.Testnet: USDCDevnetMint,
	}
}

func defaultTokenDecimals() map[string]uint8 {
	return map[string]uint8{
		SOLMint:         9,
		USDCMainnetMint: 6,
		USDCDevnetMint:  6,
		BONKMint:        5,
		JUPMint:         6,
		RAYMint:         6,
		MNGOMint:        6,
		JSOLMint:        9,
		ORCAMint:        6,
	}
}

// defaultFallbackPrices are rough reference-token prices used only when live
// price discovery fails and no cached quote exists. They carry no freshness
// guarantee and quotes derived from them are flagged as estimates.
func defaultFallbackPrices() map[string]float64 {
	return map[string]float64{
		SOLMint:  154.0,
		BONKMint: 0.000008,
		JUPMint:  1.4,
	}
}

func defaultRPCEndpoints() map[types.Network][]string {
	return map[types.Network][]string{
		types.Devnet: {"https://api.devnet.solana.com"},
		types.Mainnet: {
			"https://api.mainnet-beta.solana.com",
			"https://rpc.ankr.com/solana",
			"https://solana-mainnet.rpc.extrnode.com",
		},
		types.Testnet: {"https://api.testnet.solana.com"},
	}
}

func defaultQuoteEndpoints() []string {
	return []string{
		"https://quote-api.jup.ag/v6",
		"https://quote-api.jup.ag/v4",
		"https://jup-ag.publicnode.com",
	}
}
