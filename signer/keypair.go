package signer

import (
	"context"

	"github.com/ClipFinance/settlement-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// KeypairSigner signs with a private key held in process. It handles legacy
// and versioned messages.
type KeypairSigner struct {
	privateKey sol.PrivateKey
}

// NewKeypairSigner creates a signer from a private key.
func NewKeypairSigner(privateKey sol.PrivateKey) *KeypairSigner {
	return &KeypairSigner{privateKey: privateKey}
}

// NewKeypairSignerFromBase58 creates a signer from a base58-encoded private key.
func NewKeypairSignerFromBase58(privateKeyBase58 string) (*KeypairSigner, error) {
	privateKey, err := sol.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewKeypairSigner(privateKey), nil
}

// PublicKey returns the public key of the keypair.
func (s *KeypairSigner) PublicKey() sol.PublicKey {
	return s.privateKey.PublicKey()
}

// Supports reports true for both encodings.
func (s *KeypairSigner) Supports(encoding types.TxEncoding) bool {
	return encoding == types.EncodingLegacy || encoding == types.EncodingVersioned
}

// SignTransaction signs the serialised message and places the signature at
// the keypair's signer index.
func (s *KeypairSigner) SignTransaction(ctx context.Context, tx *sol.Transaction) (*sol.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}

	signature, err := s.privateKey.Sign(message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign")
	}

	if err := placeSignature(tx, s.PublicKey(), signature); err != nil {
		return nil, err
	}
	return tx, nil
}
