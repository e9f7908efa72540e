package solana

import (
	"context"
	"math/big"

	"github.com/ClipFinance/settlement-lib/chains/solana/utils"
	"github.com/ClipFinance/settlement-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// GetTokenBalance gets token balance for the given address.
// For native SOL balances, use tokenAddress as empty string, the system
// program id or the wrapped SOL mint.
//
// Parameters:
// - ctx: the context for managing the request
// - address: the wallet to check balance for
// - tokenAddress: the token mint address
//
// Returns:
// - *types.Balance: the balance in smallest units and token units
// - error: an error if the balance check fails
func (l *Ledger) GetTokenBalance(ctx context.Context, address string, tokenAddress string) (*types.Balance, error) {
	userPubKey, err := sol.PublicKeyFromBase58(address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse wallet address")
	}

	if isNative(tokenAddress) {
		balance, err := l.getNativeBalance(ctx, userPubKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get native SOL balance")
		}
		return types.NewBalance(address, "", balance, 9), nil
	}

	tokenPubKey, err := sol.PublicKeyFromBase58(tokenAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenAddress")
	}

	ata, err := utils.GetAssociatedTokenAddress(tokenPubKey, userPubKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get associated token address")
	}

	balance, decimals, err := l.getSPLTokenBalance(ctx, ata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get token balance")
	}

	return types.NewBalance(address, tokenAddress, balance, decimals), nil
}

const wrappedSOLMint = "So11111111111111111111111111111111111111112"

func isNative(tokenAddress string) bool {
	return tokenAddress == "" ||
		tokenAddress == sol.SystemProgramID.String() ||
		tokenAddress == wrappedSOLMint
}

// getNativeBalance gets native SOL balance
func (l *Ledger) getNativeBalance(ctx context.Context, account sol.PublicKey) (*big.Int, error) {
	endpoint, client := l.selected()

	balance, err := client.GetBalance(ctx, account, l.opts.Commitment)
	if err != nil {
		l.fail(endpoint, "getBalance", err)
		return nil, err
	}

	return new(big.Int).SetUint64(balance.Value), nil
}

// getSPLTokenBalance gets SPL token balance
func (l *Ledger) getSPLTokenBalance(ctx context.Context, account sol.PublicKey) (*big.Int, uint8, error) {
	endpoint, client := l.selected()

	balance, err := client.GetTokenAccountBalance(ctx, account, l.opts.Commitment)
	if err != nil {
		l.fail(endpoint, "getTokenAccountBalance", err)
		return nil, 0, err
	}
	if balance == nil || balance.Value == nil {
		return nil, 0, errors.New("empty token balance response")
	}

	amount, ok := new(big.Int).SetString(balance.Value.Amount, 10)
	if !ok {
		return nil, 0, errors.New("failed to parse token balance")
	}

	return amount, balance.Value.Decimals, nil
}
