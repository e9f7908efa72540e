package signer

import (
	"context"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// SignFunc hands a transaction to an external wallet and returns what the
// wallet signed.
type SignFunc func(ctx context.Context, tx *sol.Transaction) (*sol.Transaction, error)

// WalletSigner delegates signing to an external wallet through a callback.
type WalletSigner struct {
	publicKey sol.PublicKey
	encodings map[types.TxEncoding]bool
	sign      SignFunc
}

// NewWalletSigner creates a signer for an external wallet.
//
// Parameters:
// - publicKey: the wallet address.
// - encodings: the message encodings the wallet can sign, legacy only when empty.
// - sign: the callback reaching the wallet.
//
// Returns:
// - *WalletSigner: the new signer.
// - error: an error if the public key or callback is missing.
func NewWalletSigner(publicKey sol.PublicKey, encodings []types.TxEncoding, sign SignFunc) (*WalletSigner, error) {
	if publicKey.IsZero() {
		return nil, errors.New("public key is required")
	}
	if sign == nil {
		return nil, errors.New("sign callback is required")
	}
	if len(encodings) == 0 {
		encodings = []types.TxEncoding{types.EncodingLegacy}
	}

	supported := make(map[types.TxEncoding]bool, len(encodings))
	for _, e := range encodings {
		supported[e] = true
	}
	return &WalletSigner{publicKey: publicKey, encodings: supported, sign: sign}, nil
}

// PublicKey returns the wallet address.
func (s *WalletSigner) PublicKey() sol.PublicKey {
	return s.publicKey
}

// Supports reports whether the wallet declared the encoding.
func (s *WalletSigner) Supports(encoding types.TxEncoding) bool {
	return s.encodings[encoding]
}

// SignTransaction calls the wallet. Any wallet failure other than context
// cancellation is reported as ErrSignerRejected.
func (s *WalletSigner) SignTransaction(ctx context.Context, tx *sol.Transaction) (*sol.Transaction, error) {
	signed, err := s.sign(ctx, tx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrapf(commonerrors.ErrSignerRejected, "wallet %s: %v", s.publicKey, err)
	}
	if signed == nil {
		return nil, errors.Wrapf(commonerrors.ErrSignerRejected, "wallet %s returned no transaction", s.publicKey)
	}
	return signed, nil
}
