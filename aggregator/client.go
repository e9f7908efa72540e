package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// noRouteCodes are aggregator error codes meaning the pair cannot be routed.
var noRouteCodes = map[string]bool{
	"COULD_NOT_FIND_ANY_ROUTE": true,
	"NO_ROUTES_FOUND":          true,
	"TOKEN_NOT_TRADABLE":       true,
}

// Options tunes the client.
type Options struct {
	// RequestsPerSecond caps outgoing requests. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to aggregator mirrors. The base URL is chosen per call by the
// caller, so one client serves every mirror.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
	now        func() time.Time
}

// NewClient creates an aggregator client.
//
// Parameters:
// - httpClient: the HTTP client, http.DefaultClient when nil.
// - logger: the logger for logging purposes.
// - opts: rate limiting.
//
// Returns:
// - *Client: the new client.
func NewClient(httpClient *http.Client, logger *logrus.Logger, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Quote requests a quote from the mirror at baseURL. Every request carries a
// cache-busting parameter and no-cache headers so mirrors and proxies never
// answer from their own caches.
//
// A response with a missing or zero outAmount is reported as ErrNoRoute.
func (c *Client) Quote(ctx context.Context, baseURL string, req QuoteRequest) (*QuoteResponse, error) {
	query := url.Values{}
	query.Set("inputMint", req.InputMint)
	query.Set("outputMint", req.OutputMint)
	query.Set("amount", strconv.FormatUint(req.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	query.Set("feeBps", strconv.Itoa(req.FeeBps))
	query.Set("_", strconv.FormatInt(c.now().UnixNano(), 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(baseURL, "quote")+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build quote request")
	}
	setNoCacheHeaders(httpReq)

	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var quote QuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, errors.Wrap(err, "failed to decode quote response")
	}
	quote.Raw = json.RawMessage(body)

	out, err := quote.OutAmount.Uint64()
	if err != nil || out == 0 {
		return nil, errors.Wrapf(commonerrors.ErrNoRoute, "%s -> %s amount %d", req.InputMint, req.OutputMint, req.Amount)
	}

	return &quote, nil
}

// SwapTransaction asks the mirror at baseURL to build the swap transaction
// for a previously obtained quote.
func (c *Client) SwapTransaction(ctx context.Context, baseURL string, req SwapRequest) (*SwapResponse, error) {
	if len(req.QuoteResponse) == 0 {
		return nil, commonerrors.Validationf("swap request without quote payload")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode swap request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(baseURL, "swap"), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build swap request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setNoCacheHeaders(httpReq)

	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var swap SwapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, errors.Wrap(err, "failed to decode swap response")
	}
	if swap.SwapTransaction == "" {
		return nil, errors.New("swap response without transaction")
	}
	return &swap, nil
}

// Probe reports an error only when the mirror is unreachable or answers with
// a server error. Client errors (missing query parameters) prove it is up.
func (c *Client) Probe(ctx context.Context, endpoint types.Endpoint) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(endpoint.URL, "quote"), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build probe request")
	}
	setNoCacheHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "probe %s", endpoint.URL)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= http.StatusInternalServerError {
		return &HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := decodeError(resp.StatusCode, body)
		c.logger.WithFields(logrus.Fields{
			"host":   req.URL.Host,
			"path":   req.URL.Path,
			"status": resp.StatusCode,
			"code":   httpErr.Code,
		}).Debug("Aggregator request failed")
		if noRouteCodes[httpErr.Code] {
			return nil, errors.Wrap(commonerrors.ErrNoRoute, httpErr.Error())
		}
		return nil, httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read aggregator response")
	}
	return body, nil
}

func decodeError(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		httpErr.Code = parsed.ErrorCode
		switch {
		case parsed.Error != "":
			httpErr.Message = parsed.Error
		case parsed.Message != "":
			httpErr.Message = parsed.Message
		}
	}
	if httpErr.Message == "" {
		httpErr.Message = http.StatusText(status)
	}
	return httpErr
}

func endpointURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}

func setNoCacheHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")
}
