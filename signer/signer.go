package signer

import (
	"context"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Signer signs settlement transactions on behalf of the paying wallet.
type Signer interface {
	// PublicKey returns the signing wallet.
	PublicKey() sol.PublicKey
	// Supports reports whether the signer can sign messages of the encoding.
	Supports(encoding types.TxEncoding) bool
	// SignTransaction returns the transaction carrying the wallet's signature.
	SignTransaction(ctx context.Context, tx *sol.Transaction) (*sol.Transaction, error)
}

// SignerIndex returns the position of key among the required signers of tx.
func SignerIndex(tx *sol.Transaction, key sol.PublicKey) (int, error) {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		required = len(tx.Message.AccountKeys)
	}
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(key) {
			return i, nil
		}
	}
	return 0, errors.Errorf("%s is not a required signer of the transaction", key)
}

// SignatureOf returns the signature key placed on tx and checks it against
// the serialised message.
func SignatureOf(tx *sol.Transaction, key sol.PublicKey) (sol.Signature, error) {
	idx, err := SignerIndex(tx, key)
	if err != nil {
		return sol.Signature{}, err
	}
	if idx >= len(tx.Signatures) || tx.Signatures[idx] == (sol.Signature{}) {
		return sol.Signature{}, errors.Wrapf(commonerrors.ErrSignerRejected, "transaction carries no signature of %s", key)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to marshal message")
	}
	if !tx.Signatures[idx].Verify(key, message) {
		return sol.Signature{}, errors.Wrapf(commonerrors.ErrSignerRejected, "invalid signature of %s", key)
	}
	return tx.Signatures[idx], nil
}

// placeSignature stores sig at the signer slot of key, growing the
// signature list to the number of required signers.
func placeSignature(tx *sol.Transaction, key sol.PublicKey, sig sol.Signature) error {
	idx, err := SignerIndex(tx, key)
	if err != nil {
		return err
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		signatures := make([]sol.Signature, required)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[idx] = sig
	return nil
}
