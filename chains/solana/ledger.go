package solana

import (
	"context"
	"sync"
	"time"

	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/metrics"
	"github.com/ClipFinance/settlement-lib/retry"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// RPCClient is the subset of *rpc.Client the ledger uses.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (sol.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetVersion(ctx context.Context) (*rpc.GetVersionResult, error)
	GetBalance(ctx context.Context, account sol.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account sol.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// Dialer creates an RPC client for an endpoint URL.
type Dialer func(endpoint string) RPCClient

// DialRPC is the default Dialer backed by solana-go's JSON-RPC client.
func DialRPC(endpoint string) RPCClient {
	return rpc.New(endpoint)
}

// EndpointSelector picks RPC endpoints and is told when one fails.
type EndpointSelector interface {
	Select(role types.EndpointRole) types.Endpoint
	Demote(endpoint types.Endpoint)
}

// Options tunes ledger access.
type Options struct {
	Commitment          rpc.CommitmentType
	PreflightCommitment rpc.CommitmentType
	SkipPreflight       bool
	// NodeMaxRetries is forwarded to sendTransaction as the node-side rebroadcast count.
	NodeMaxRetries  uint
	BlockhashPolicy retry.Policy
	SubmitPolicy    retry.Policy
	PollInterval    time.Duration
	MaxPolls        int
	Metrics         *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Commitment == "" {
		o.Commitment = rpc.CommitmentConfirmed
	}
	if o.PreflightCommitment == "" {
		o.PreflightCommitment = o.Commitment
	}
	if o.NodeMaxRetries == 0 {
		o.NodeMaxRetries = 3
	}
	if o.BlockhashPolicy.MaxAttempts == 0 {
		o.BlockhashPolicy = retry.Fixed(3, time.Second)
	}
	if o.SubmitPolicy.MaxAttempts == 0 {
		o.SubmitPolicy = retry.Fixed(3, time.Second)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = 45
	}
	return o
}

// Ledger gives access to the Solana JSON-RPC API through the endpoint pool.
// Every call runs against the currently selected RPC endpoint; a failing
// endpoint is demoted so the next call moves on.
type Ledger struct {
	pool    EndpointSelector
	dial    Dialer
	logger  *logrus.Logger
	opts    Options
	metrics *metrics.Metrics

	clientMutex sync.Mutex
	clients     map[string]RPCClient
}

// NewLedger creates a new ledger client.
//
// Parameters:
// - pool: the endpoint selector for the rpc role.
// - dial: creates clients for endpoints, DialRPC when nil.
// - logger: the logger for logging purposes.
// - opts: commitment levels, retry policies and confirmation polling.
//
// Returns:
// - *Ledger: the new ledger client.
func NewLedger(pool EndpointSelector, dial Dialer, logger *logrus.Logger, opts Options) *Ledger {
	if dial == nil {
		dial = DialRPC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts = opts.withDefaults()
	return &Ledger{
		pool:    pool,
		dial:    dial,
		logger:  logger,
		opts:    opts,
		metrics: opts.Metrics,
		clients: make(map[string]RPCClient),
	}
}

// Commitment returns the commitment level used for reads and confirmation.
func (l *Ledger) Commitment() rpc.CommitmentType {
	return l.opts.Commitment
}

// selected returns the preferred endpoint and its client.
func (l *Ledger) selected() (types.Endpoint, RPCClient) {
	endpoint := l.pool.Select(types.RoleRPC)
	return endpoint, l.client(endpoint)
}

func (l *Ledger) client(endpoint types.Endpoint) RPCClient {
	l.clientMutex.Lock()
	defer l.clientMutex.Unlock()

	client, ok := l.clients[endpoint.URL]
	if !ok {
		client = l.dial(endpoint.URL)
		l.clients[endpoint.URL] = client
	}
	return client
}

func (l *Ledger) fail(endpoint types.Endpoint, method string, err error) {
	l.logger.WithFields(logrus.Fields{
		"endpoint": endpoint.URL,
		"method":   method,
		"error":    err,
	}).Warn("RPC call failed")
	l.pool.Demote(endpoint)
}
