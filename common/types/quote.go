package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a conversion price of InAmount of InputToken into the reference token.
// A quote is immutable once produced; the engine hands out copies.
//
// Fields:
// - InputToken: the mint being paid with.
// - OutputToken: the reference token mint.
// - InAmount: the input amount in the input token's smallest unit.
// - OutAmountRaw: the output amount in the reference token's smallest unit.
// - OutAmount: the output amount in reference token units.
// - PriceImpactPct: the price impact percentage reported by the aggregator.
// - PriceImpactBps: PriceImpactPct in basis points.
// - Raw: the aggregator payload, required to request a swap transaction.
// - Source: where the quote came from.
// - FetchedAt: when the quote was produced.
// - FallbackReason: why a degraded quote was served, empty otherwise.
type Quote struct {
	InputToken     string
	OutputToken    string
	InAmount       uint64
	OutAmountRaw   uint64
	OutAmount      decimal.Decimal
	PriceImpactPct decimal.Decimal
	PriceImpactBps int64
	Raw            json.RawMessage
	Source         QuoteSource
	FetchedAt      time.Time
	FallbackReason string
}

// Degraded reports whether the quote is best-effort (stale cache or estimate).
func (q *Quote) Degraded() bool {
	return q.Source.IsDegraded()
}

// CacheKey identifies a cached quote.
type CacheKey struct {
	InputToken string
	InAmount   uint64
}
