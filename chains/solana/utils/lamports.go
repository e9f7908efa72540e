package utils

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// LamportsToSol converts lamports (uint64) to SOL (float64)
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

// SolToLamports converts SOL (float64) to lamports (uint64)
func SolToLamports(sol float64) uint64 {
	return uint64(sol * LamportsPerSol)
}

// ReferenceToLamports converts a reference-token amount into lamports at a
// fixed rate of referencePerNative reference tokens per SOL, rounding up.
// A non-positive amount or rate yields zero. Results beyond the uint64
// lamport range are rejected.
func ReferenceToLamports(amount, referencePerNative decimal.Decimal) (uint64, error) {
	if !referencePerNative.IsPositive() || !amount.IsPositive() {
		return 0, nil
	}
	lamports := amount.Mul(decimal.NewFromInt(LamportsPerSol)).Div(referencePerNative).Ceil()
	if lamports.GreaterThan(maxLamports) {
		return 0, errors.Errorf("%s reference tokens exceed the lamport range", amount)
	}
	return lamports.BigInt().Uint64(), nil
}

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
