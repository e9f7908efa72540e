package settlement

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ClipFinance/settlement-lib/chains/solana/utils"
	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/signer"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	submitErr    error
	blockhashErr error
	confirmation *types.Confirmation
	confirmErr   error

	submits     atomic.Int32
	blockhashes atomic.Int32
	confirmRef  types.BlockhashRef
}

func (f *fakeLedger) LatestBlockhash(context.Context) (*types.BlockhashRef, error) {
	f.blockhashes.Add(1)
	if f.blockhashErr != nil {
		return nil, f.blockhashErr
	}
	return &types.BlockhashRef{Blockhash: sol.Hash{9}, LastValidBlockHeight: 500}, nil
}

func (f *fakeLedger) SubmitTransaction(_ context.Context, tx *sol.Transaction) (sol.Signature, error) {
	f.submits.Add(1)
	if f.submitErr != nil {
		return sol.Signature{}, f.submitErr
	}
	return tx.Signatures[0], nil
}

func (f *fakeLedger) ConfirmTransaction(_ context.Context, _ sol.Signature, ref types.BlockhashRef) (*types.Confirmation, error) {
	f.confirmRef = ref
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmation, nil
}

func builtAttempt(t *testing.T, payer sol.PublicKey) *types.TransactionAttempt {
	t.Helper()
	tx, err := sol.NewTransaction(
		[]sol.Instruction{utils.CreateNativeTransferInstruction(payer, sol.NewWallet().PublicKey(), 1000)},
		sol.Hash{1},
		sol.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return &types.TransactionAttempt{
		Tx:                   tx,
		Encoding:             types.EncodingLegacy,
		Mode:                 types.ModeSimulated,
		Blockhash:            sol.Hash{1},
		LastValidBlockHeight: 100,
		State:                types.AttemptBuilt,
	}
}

func TestExecuteConfirmed(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{confirmation: &types.Confirmation{Confirmed: true, Slot: 77}}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	attempt := builtAttempt(t, wallet.PublicKey())
	result, err := c.Execute(context.Background(), attempt, signer.NewKeypairSigner(wallet.PrivateKey))
	require.NoError(t, err)

	assert.True(t, result.Confirmed)
	assert.Equal(t, uint64(77), result.Slot)
	assert.Equal(t, attempt.Signature.String(), result.Signature)
	assert.Equal(t, types.AttemptConfirmed, attempt.State)
	assert.Equal(t, int32(1), ledger.submits.Load())
	assert.Equal(t, uint64(500), ledger.confirmRef.LastValidBlockHeight, "confirmation uses a fresh blockhash window")
}

func TestExecuteOnChainFailure(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{confirmation: &types.Confirmation{Err: "InstructionError"}}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	attempt := builtAttempt(t, wallet.PublicKey())
	result, err := c.Execute(context.Background(), attempt, signer.NewKeypairSigner(wallet.PrivateKey))
	require.NoError(t, err)
	assert.False(t, result.Confirmed)
	assert.Equal(t, "InstructionError", result.Reason)
	assert.NotEmpty(t, result.Signature)
	assert.Equal(t, types.AttemptFailed, attempt.State)
}

func TestExecuteConfirmationTimeoutIsNotConfirmed(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{confirmErr: errors.Wrap(commonerrors.ErrConfirmationTimeout, "after 5 polls")}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	result, err := c.Execute(context.Background(), builtAttempt(t, wallet.PublicKey()), signer.NewKeypairSigner(wallet.PrivateKey))
	require.NoError(t, err)
	assert.False(t, result.Confirmed)
	assert.Contains(t, result.Reason, "confirmation polling exhausted")
}

func TestExecuteBlockhashFailureIsHard(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{blockhashErr: errors.New("failed to get latest blockhash after 3 attempts")}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	attempt := builtAttempt(t, wallet.PublicKey())
	result, err := c.Execute(context.Background(), attempt, signer.NewKeypairSigner(wallet.PrivateKey))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Confirmed)
	assert.NotEmpty(t, result.Signature)
	assert.Equal(t, types.AttemptFailed, attempt.State)
}

func TestExecuteSubmitFailure(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{submitErr: errors.New("node unavailable")}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	attempt := builtAttempt(t, wallet.PublicKey())
	result, err := c.Execute(context.Background(), attempt, signer.NewKeypairSigner(wallet.PrivateKey))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, types.AttemptFailed, attempt.State)
	assert.Equal(t, int32(0), ledger.blockhashes.Load())
}

func TestExecuteSignerRejection(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	s, err := signer.NewWalletSigner(wallet.PublicKey(), nil, func(context.Context, *sol.Transaction) (*sol.Transaction, error) {
		return nil, errors.New("user rejected the request")
	})
	require.NoError(t, err)

	attempt := builtAttempt(t, wallet.PublicKey())
	_, err = c.Execute(context.Background(), attempt, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrSignerRejected))
	assert.Equal(t, types.AttemptFailed, attempt.State)
	assert.Equal(t, int32(0), ledger.submits.Load())
}

func TestExecuteSigningTimeout(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{}
	c := NewCoordinator(ledger, logrus.New(), 20*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	s, err := signer.NewWalletSigner(wallet.PublicKey(), nil, func(context.Context, *sol.Transaction) (*sol.Transaction, error) {
		<-release
		return nil, errors.New("too late")
	})
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), builtAttempt(t, wallet.PublicKey()), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrSigningTimeout))
	assert.Equal(t, int32(0), ledger.submits.Load())
}

func TestExecuteUnsupportedEncoding(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	s, err := signer.NewWalletSigner(wallet.PublicKey(), []types.TxEncoding{types.EncodingLegacy}, func(_ context.Context, tx *sol.Transaction) (*sol.Transaction, error) {
		return tx, nil
	})
	require.NoError(t, err)

	attempt := builtAttempt(t, wallet.PublicKey())
	attempt.Encoding = types.EncodingVersioned
	_, err = c.Execute(context.Background(), attempt, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrUnsupportedEncoding))
	assert.Equal(t, types.AttemptFailed, attempt.State)
	assert.Equal(t, int32(0), ledger.submits.Load())
}

func TestExecuteRejectsUnsignedReturn(t *testing.T) {
	wallet := sol.NewWallet()
	ledger := &fakeLedger{}
	c := NewCoordinator(ledger, logrus.New(), time.Second)

	s, err := signer.NewWalletSigner(wallet.PublicKey(), nil, func(_ context.Context, tx *sol.Transaction) (*sol.Transaction, error) {
		return tx, nil
	})
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), builtAttempt(t, wallet.PublicKey()), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrSignerRejected))
	assert.Equal(t, int32(0), ledger.submits.Load())
}

func TestExecuteValidation(t *testing.T) {
	wallet := sol.NewWallet()
	c := NewCoordinator(&fakeLedger{}, logrus.New(), 0)
	s := signer.NewKeypairSigner(wallet.PrivateKey)

	_, err := c.Execute(context.Background(), nil, s)
	assert.True(t, errors.Is(err, commonerrors.ErrValidation))

	_, err = c.Execute(context.Background(), builtAttempt(t, wallet.PublicKey()), nil)
	assert.True(t, errors.Is(err, commonerrors.ErrValidation))

	attempt := builtAttempt(t, wallet.PublicKey())
	attempt.State = types.AttemptSubmitted
	_, err = c.Execute(context.Background(), attempt, s)
	assert.True(t, errors.Is(err, commonerrors.ErrValidation))
}
