package types

import (
	sol "github.com/gagliardetto/solana-go"
)

// TxEncoding is the wire encoding of a transaction message.
type TxEncoding string

const (
	// EncodingLegacy is the pre-v0 transaction message format.
	EncodingLegacy TxEncoding = "legacy"
	// EncodingVersioned is the v0 message format with address lookup tables.
	EncodingVersioned TxEncoding = "versioned"
)

// String converts TxEncoding to string representation
func (e TxEncoding) String() string {
	return string(e)
}

// EncodingOf reports the encoding of a decoded transaction.
func EncodingOf(tx *sol.Transaction) TxEncoding {
	if tx != nil && tx.Message.IsVersioned() {
		return EncodingVersioned
	}
	return EncodingLegacy
}

// BlockhashRef is a recent blockhash together with its validity window.
//
// Fields:
// - Blockhash: the recent blockhash.
// - LastValidBlockHeight: the last block height at which a transaction using the blockhash is accepted.
// - Slot: the slot at which the blockhash was observed.
type BlockhashRef struct {
	Blockhash            sol.Hash
	LastValidBlockHeight uint64
	Slot                 uint64
}

// TransactionAttempt represents one construct -> sign -> submit -> confirm cycle.
// It lives only for the duration of the cycle and is never persisted.
//
// Fields:
// - Tx: the transaction, unsigned until the signer returns.
// - Encoding: the message encoding.
// - Mode: the mode the transaction was built in.
// - Blockhash: the blockhash the transaction references.
// - LastValidBlockHeight: the validity window of Blockhash.
// - Signature: the fee payer signature, zero until signed.
// - State: the current cycle state.
type TransactionAttempt struct {
	Tx                   *sol.Transaction
	Encoding             TxEncoding
	Mode                 Mode
	Blockhash            sol.Hash
	LastValidBlockHeight uint64
	Signature            sol.Signature
	State                AttemptState
}

// Confirmation is the outcome of a confirmation check.
//
// Fields:
// - Confirmed: true when the transaction reached the requested commitment without error.
// - Expired: true when the validity window passed before the transaction was seen.
// - Slot: the slot reported for the transaction, zero if unknown.
// - Err: the on-chain execution error, empty on success.
type Confirmation struct {
	Confirmed bool
	Expired   bool
	Slot      uint64
	Err       string
}

// SignatureStatus is the ledger's view of a submitted signature.
type SignatureStatus struct {
	Signature          string
	Found              bool
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus string
	Err                string
}
