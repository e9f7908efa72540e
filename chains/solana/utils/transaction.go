package utils

import (
	"encoding/base64"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"
)

// GetAssociatedTokenAddress returns the token account address for a given token and owner.
// This is a deterministic address that follows Solana's Associated Token Account Program conventions.
func GetAssociatedTokenAddress(tokenMint, owner sol.PublicKey) (sol.PublicKey, error) {
	seeds := [][]byte{
		owner.Bytes(),
		sol.TokenProgramID.Bytes(),
		tokenMint.Bytes(),
	}

	addr, _, err := sol.FindProgramAddress(seeds, sol.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return sol.PublicKey{}, errors.Wrap(err, "failed to derive associated token address")
	}
	return addr, nil
}

// CreateMemoInstruction creates a memo instruction with the given message
func CreateMemoInstruction(message string) sol.Instruction {
	return sol.NewInstruction(
		sol.MemoProgramID,
		sol.AccountMetaSlice{},
		[]byte(message),
	)
}

// CreateNativeTransferInstruction creates a system program transfer of lamports from -> to.
func CreateNativeTransferInstruction(from, to sol.PublicKey, lamports uint64) sol.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

// EncodeTransaction serialises a transaction and encodes it as base64.
func EncodeTransaction(tx *sol.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "failed to serialise transaction")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction decodes a base64 wire transaction without altering it.
// Legacy and versioned messages are both accepted.
func DecodeTransaction(encoded string) (*sol.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64 transaction")
	}
	tx, err := sol.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to deserialise transaction")
	}
	return tx, nil
}
