package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Balance is a wallet holding of one token.
//
// Fields:
// - Wallet: the owner address.
// - Token: the mint, empty for the native currency.
// - Raw: the balance in smallest units.
// - Decimals: the decimal count used to compute Amount.
// - Amount: the balance in token units.
type Balance struct {
	Wallet   string
	Token    string
	Raw      *big.Int
	Decimals uint8
	Amount   decimal.Decimal
}

// NewBalance builds a Balance from a smallest-unit amount.
func NewBalance(wallet, token string, raw *big.Int, decimals uint8) *Balance {
	return &Balance{
		Wallet:   wallet,
		Token:    token,
		Raw:      raw,
		Decimals: decimals,
		Amount:   decimal.NewFromBigInt(raw, -int32(decimals)),
	}
}
