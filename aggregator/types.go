package aggregator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Amount is an integer amount in smallest units. The aggregator sends it as a
// JSON string, some mirrors send a bare number; both are accepted.
type Amount string

// UnmarshalJSON accepts "123" and 123.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrap(err, "amount")
	}
	*a = Amount(n.String())
	return nil
}

// Uint64 parses the amount. Empty, negative and fractional values fail.
func (a Amount) Uint64() (uint64, error) {
	return strconv.ParseUint(string(a), 10, 64)
}

// QuoteRequest holds the query of GET /quote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
	FeeBps      int
}

// QuoteResponse is the subset of the aggregator quote the engine reads.
// Raw keeps the full payload, which must be echoed back to POST /swap.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             Amount          `json:"inAmount"`
	OutAmount            Amount          `json:"outAmount"`
	OtherAmountThreshold Amount          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            json.RawMessage `json:"routePlan,omitempty"`
	ContextSlot          uint64          `json:"contextSlot,omitempty"`
	TimeTaken            float64         `json:"timeTaken,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// SwapRequest is the body of POST /swap.
type SwapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	DestinationTokenAccount string          `json:"destinationTokenAccount,omitempty"`
}

// SwapResponse carries the base64 encoded, unsigned swap transaction.
type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"`
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// HTTPError is returned for non-2xx aggregator responses.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("aggregator returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("aggregator returned %d: %s", e.StatusCode, e.Message)
}
