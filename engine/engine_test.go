package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ClipFinance/settlement-lib/chains/solana"
	"github.com/ClipFinance/settlement-lib/chains/solana/utils"
	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/config"
	"github.com/ClipFinance/settlement-lib/payments"
	"github.com/ClipFinance/settlement-lib/signer"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipientAddr = "Stake11111111111111111111111111111111111111"

type ledgerNode struct {
	mu sync.Mutex

	blockhashErr error
	onChainErr   interface{}
	lamports     uint64

	sent []*sol.Transaction
}

func (n *ledgerNode) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.blockhashErr != nil {
		return nil, n.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: sol.Hash{7}, LastValidBlockHeight: 1000},
	}, nil
}

func (n *ledgerNode) SendRawTransactionWithOpts(_ context.Context, rawTx []byte, _ rpc.TransactionOpts) (sol.Signature, error) {
	tx, err := utils.DecodeTransaction(base64.StdEncoding.EncodeToString(rawTx))
	if err != nil {
		return sol.Signature{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, tx)
	return tx.Signatures[0], nil
}

func (n *ledgerNode) GetSignatureStatuses(_ context.Context, _ bool, sigs ...sol.Signature) (*rpc.GetSignatureStatusesResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, tx := range n.sent {
		if tx.Signatures[0] == sigs[0] {
			return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{{
				Slot:               42,
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
				Err:                n.onChainErr,
			}}}, nil
		}
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
}

func (n *ledgerNode) GetBlockHeight(context.Context, rpc.CommitmentType) (uint64, error) {
	return 10, nil
}

func (n *ledgerNode) GetVersion(context.Context) (*rpc.GetVersionResult, error) {
	return &rpc.GetVersionResult{SolanaCore: "1.18.0"}, nil
}

func (n *ledgerNode) GetBalance(context.Context, sol.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: n.lamports}, nil
}

func (n *ledgerNode) GetTokenAccountBalance(context.Context, sol.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	return nil, errors.New("no token account")
}

func (n *ledgerNode) sentTransactions() []*sol.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*sol.Transaction(nil), n.sent...)
}

func newTestEngine(t *testing.T, node *ledgerNode, outAmount string) (*Engine, *prometheus.Registry) {
	t.Helper()

	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"inputMint":%q,"inAmount":%q,"outputMint":%q,"outAmount":%q,"priceImpactPct":"0.1"}`,
			r.URL.Query().Get("inputMint"), r.URL.Query().Get("amount"), r.URL.Query().Get("outputMint"), outAmount)
	}))
	t.Cleanup(aggregator.Close)

	cfg := config.Default()
	cfg.RPCEndpoints = map[types.Network][]string{types.Devnet: {"https://rpc.test"}}
	cfg.QuoteEndpoints = []string{aggregator.URL}
	cfg.Pricing.BaseDelay.Duration = time.Millisecond
	cfg.Ledger.BlockhashDelay.Duration = time.Millisecond
	cfg.Ledger.SubmitDelay.Duration = time.Millisecond
	cfg.Ledger.ConfirmPollInterval.Duration = time.Millisecond
	cfg.Ledger.ConfirmMaxPolls = 3

	reg := prometheus.NewRegistry()
	e, err := NewEngineBuilder(cfg).
		WithLogger(logrus.New()).
		WithStore(payments.NewMemoryStore()).
		WithRPCDialer(func(string) solana.RPCClient { return node }).
		WithHTTPClient(aggregator.Client()).
		WithRegisterer(reg).
		Build()
	require.NoError(t, err)
	return e, reg
}

func TestExecutePaymentConfirmed(t *testing.T) {
	ctx := context.Background()
	node := &ledgerNode{}
	e, reg := newTestEngine(t, node, "150000000")
	assert.Equal(t, types.ModeSimulated, e.Mode())

	quote, err := e.GetPrice(ctx, config.SOLMint, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, types.SourceLive, quote.Source)
	assert.True(t, decimal.NewFromInt(150).Equal(quote.OutAmount))

	wallet := sol.NewWallet()
	payment, err := e.OpenPayment(ctx, types.PaymentIntent{MerchantID: "m1", Amount: decimal.NewFromInt(1), Token: config.SOLMint})
	require.NoError(t, err)

	sub := e.SubscribePayments(1)
	defer sub.Close()

	result, err := e.ExecutePayment(ctx, PaymentRequest{
		Payment:   payment,
		Quote:     quote,
		Recipient: recipientAddr,
		Signer:    signer.NewKeypairSigner(wallet.PrivateKey),
	})
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Equal(t, uint64(42), result.Slot)

	sent := node.sentTransactions()
	require.Len(t, sent, 1)
	require.NoError(t, sent[0].VerifySignatures())
	assert.Equal(t, sent[0].Signatures[0].String(), result.Signature)

	transfer := sent[0].Message.Instructions[0]
	require.Less(t, int(transfer.ProgramIDIndex), len(sent[0].Message.AccountKeys))
	assert.Equal(t, sol.SystemProgramID, sent[0].Message.AccountKeys[transfer.ProgramIDIndex])
	assert.Equal(t, []byte{2, 0, 0, 0, 0x00, 0x2F, 0x68, 0x59, 0, 0, 0, 0}, []byte(transfer.Data), "1.5 SOL for 150 USDC")

	stored, err := e.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, stored.Status)
	assert.Equal(t, result.Signature, stored.Signature)

	select {
	case ev := <-sub.EventChan:
		assert.Equal(t, types.StatusConfirmed, ev.To)
	case <-time.After(time.Second):
		t.Fatal("no payment event")
	}

	count, err := testutil.GatherAndCount(reg, "settlement_payments_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExecutePaymentOnChainFailure(t *testing.T) {
	ctx := context.Background()
	node := &ledgerNode{onChainErr: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}
	e, _ := newTestEngine(t, node, "150000000")

	quote, err := e.GetPrice(ctx, config.SOLMint, decimal.NewFromInt(1))
	require.NoError(t, err)
	wallet := sol.NewWallet()
	payment, err := e.OpenPayment(ctx, types.PaymentIntent{MerchantID: "m1", FromWallet: wallet.PublicKey().String(), Amount: decimal.NewFromInt(1), Token: config.SOLMint})
	require.NoError(t, err)

	result, err := e.ExecutePayment(ctx, PaymentRequest{
		Payment:   payment,
		Quote:     quote,
		Recipient: recipientAddr,
		Signer:    signer.NewKeypairSigner(wallet.PrivateKey),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrTransactionFailed))
	require.NotNil(t, result)
	assert.False(t, result.Confirmed)
	assert.NotEmpty(t, result.Signature)

	stored, err := e.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
	assert.Equal(t, result.Signature, stored.Signature)
	assert.Contains(t, stored.FailureReason, "InstructionError")
}

func TestExecutePaymentBlockhashFailure(t *testing.T) {
	ctx := context.Background()
	node := &ledgerNode{blockhashErr: errors.New("node unavailable")}
	e, _ := newTestEngine(t, node, "150000000")

	quote, err := e.GetPrice(ctx, config.SOLMint, decimal.NewFromInt(1))
	require.NoError(t, err)
	wallet := sol.NewWallet()
	payment, err := e.OpenPayment(ctx, types.PaymentIntent{MerchantID: "m1", Amount: decimal.NewFromInt(1), Token: config.SOLMint})
	require.NoError(t, err)

	result, err := e.ExecutePayment(ctx, PaymentRequest{
		Payment:   payment,
		Quote:     quote,
		Recipient: recipientAddr,
		Signer:    signer.NewKeypairSigner(wallet.PrivateKey),
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "failed to get blockhash from devnet")
	assert.Empty(t, node.sentTransactions())

	stored, err := e.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status)
	assert.Empty(t, stored.Signature)
}

func TestExecutePaymentValidationKeepsPending(t *testing.T) {
	ctx := context.Background()
	node := &ledgerNode{}
	e, _ := newTestEngine(t, node, "150000000")

	quote, err := e.GetPrice(ctx, config.SOLMint, decimal.NewFromInt(1))
	require.NoError(t, err)
	payment, err := e.OpenPayment(ctx, types.PaymentIntent{MerchantID: "m1", FromWallet: sol.NewWallet().PublicKey().String(), Amount: decimal.NewFromInt(1), Token: config.SOLMint})
	require.NoError(t, err)

	s := signer.NewKeypairSigner(sol.NewWallet().PrivateKey)
	requests := []PaymentRequest{
		{Payment: payment, Quote: quote, Recipient: recipientAddr, Signer: s},
		{Payment: payment, Quote: quote, Recipient: "not-a-key", Signer: s},
		{Payment: payment, Recipient: recipientAddr, Signer: s},
		{Quote: quote, Recipient: recipientAddr, Signer: s},
	}
	for i, req := range requests {
		if i == 1 {
			req.Payment.FromWallet = payments.UnknownWallet
		}
		_, err := e.ExecutePayment(ctx, req)
		assert.True(t, errors.Is(err, commonerrors.ErrValidation), "request %d: %v", i, err)
	}

	stored, err := e.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, stored.Status)
	assert.Empty(t, node.sentTransactions())
}

func TestWalletBalanceAndTransactionStatus(t *testing.T) {
	ctx := context.Background()
	node := &ledgerNode{lamports: 2_500_000_000}
	e, _ := newTestEngine(t, node, "150000000")

	wallet := sol.NewWallet().PublicKey().String()
	balance, err := e.WalletBalance(ctx, wallet, "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.5").Equal(balance.Amount))

	status, err := e.TransactionStatus(ctx, sol.Signature{1}.String())
	require.NoError(t, err)
	assert.False(t, status.Found)

	_, err = e.TransactionStatus(ctx, "###")
	assert.True(t, errors.Is(err, commonerrors.ErrValidation))
}

func TestStartAndClose(t *testing.T) {
	e, _ := newTestEngine(t, &ledgerNode{}, "150000000")
	require.NoError(t, e.Start(context.Background()))
	e.Close()
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.QuoteEndpoints = []string{" "}
	_, err := NewEngineBuilder(cfg).Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrInvalidConfig))
}
