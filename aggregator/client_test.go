package aggregator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newTestClient() *Client {
	c := NewClient(nil, logrus.New(), Options{})
	c.now = func() time.Time { return time.Unix(0, 42) }
	return c
}

func TestQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, solMint, q.Get("inputMint"))
		assert.Equal(t, usdcMint, q.Get("outputMint"))
		assert.Equal(t, "1000000000", q.Get("amount"))
		assert.Equal(t, "50", q.Get("slippageBps"))
		assert.Equal(t, "0", q.Get("feeBps"))
		assert.Equal(t, "42", q.Get("_"))
		assert.Equal(t, "no-cache, no-store, must-revalidate", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		assert.Equal(t, "0", r.Header.Get("Expires"))

		_, _ = io.WriteString(w, `{"inputMint":"`+solMint+`","outputMint":"`+usdcMint+`","inAmount":"1000000000","outAmount":"150000000","priceImpactPct":"0.12","routePlan":[{"percent":100}]}`)
	}))
	defer server.Close()

	quote, err := newTestClient().Quote(context.Background(), server.URL+"/v6/", QuoteRequest{
		InputMint:   solMint,
		OutputMint:  usdcMint,
		Amount:      1_000_000_000,
		SlippageBps: 50,
	})
	require.NoError(t, err)

	out, err := quote.OutAmount.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000_000), out)
	assert.Equal(t, "0.12", quote.PriceImpactPct)
	assert.Contains(t, string(quote.Raw), `"routePlan"`)
}

func TestQuoteNumericAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"inAmount":1000,"outAmount":25}`)
	}))
	defer server.Close()

	quote, err := newTestClient().Quote(context.Background(), server.URL, QuoteRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, Amount("25"), quote.OutAmount)
}

func TestQuoteNoRoute(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "zero out amount", status: http.StatusOK, body: `{"outAmount":"0"}`},
		{name: "missing out amount", status: http.StatusOK, body: `{}`},
		{name: "route error code", status: http.StatusBadRequest, body: `{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient().Quote(context.Background(), server.URL, QuoteRequest{Amount: 1})
			require.Error(t, err)
			assert.True(t, errors.Is(err, commonerrors.ErrNoRoute))
		})
	}
}

func TestQuoteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	}))
	defer server.Close()

	_, err := newTestClient().Quote(context.Background(), server.URL, QuoteRequest{Amount: 1})
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, "rate limited", httpErr.Message)
	assert.False(t, errors.Is(err, commonerrors.ErrNoRoute))
}

func TestSwapTransaction(t *testing.T) {
	raw := json.RawMessage(`{"outAmount":"100"}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap", r.URL.Path)

		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, string(raw), string(body["quoteResponse"]))
		assert.JSONEq(t, `"payer"`, string(body["userPublicKey"]))
		assert.JSONEq(t, `"ata"`, string(body["destinationTokenAccount"]))

		_, _ = io.WriteString(w, `{"swapTransaction":"AQID","lastValidBlockHeight":1234}`)
	}))
	defer server.Close()

	resp, err := newTestClient().SwapTransaction(context.Background(), server.URL, SwapRequest{
		QuoteResponse:           raw,
		UserPublicKey:           "payer",
		DestinationTokenAccount: "ata",
	})
	require.NoError(t, err)
	assert.Equal(t, "AQID", resp.SwapTransaction)
	assert.Equal(t, uint64(1234), resp.LastValidBlockHeight)
}

func TestSwapTransactionRequiresQuote(t *testing.T) {
	_, err := newTestClient().SwapTransaction(context.Background(), "http://unused", SwapRequest{UserPublicKey: "payer"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, commonerrors.ErrValidation))
}

func TestProbe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	endpoint := types.Endpoint{URL: server.URL, Role: types.RoleQuoteAPI}
	c := newTestClient()

	require.NoError(t, c.Probe(context.Background(), endpoint))

	status.Store(http.StatusBadGateway)
	require.Error(t, c.Probe(context.Background(), endpoint))

	server.Close()
	require.Error(t, c.Probe(context.Background(), endpoint))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := NewClient(nil, logrus.New(), Options{RequestsPerSecond: 0.001, Burst: 1})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"outAmount":"1"}`)
	}))
	defer server.Close()

	_, err := c.Quote(context.Background(), server.URL, QuoteRequest{Amount: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Quote(ctx, server.URL, QuoteRequest{Amount: 1})
	require.Error(t, err)
}
