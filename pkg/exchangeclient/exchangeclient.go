// Package exchangeclient provides a client for the exchange venue API.
package exchangeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

// swapRequest is the body of an execute-swap call. Amounts travel as decimal
// strings, JSON numbers cannot carry 256-bit values.
type swapRequest struct {
	SwapID       uint64 `json:"swap_id"`
	Direction    string `json:"direction"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
}

// swapResponse is the venue's report of an executed swap.
type swapResponse struct {
	AmountOut    string `json:"amount_out"`
	ExecutionRef string `json:"execution_ref"`
}

// errorResponse is the structured body the venue returns on rejections.
type errorResponse struct {
	Error string `json:"error"`
}

// Client represents an exchange venue API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new exchange venue API client
func New(endpoint string, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

// Swap executes the source-side exchange on the venue. The venue deduplicates
// on swap id, so re-sending after a transport failure returns the original
// fill instead of executing twice.
func (c *Client) Swap(ctx context.Context, swapID uint64, direction models.Direction, amountIn, minAmountOut *big.Int) (*saga.ExchangeResult, error) {
	body, err := json.Marshal(swapRequest{
		SwapID:       swapID,
		Direction:    string(direction),
		AmountIn:     amountIn.String(),
		MinAmountOut: minAmountOut.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/v1/swaps", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build swap request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute swap request: %v", err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	// Read the response body regardless of status code
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	// 400 and 422 are definitive venue verdicts on this request, anything
	// else non-200 is a transport problem worth retrying
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, &saga.CollaboratorError{
			Collaborator: "exchange",
			Err:          fmt.Errorf("venue rejected swap %d: %s", swapID, rejectionMessage(bodyBytes)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var sr swapResponse
	if err := json.Unmarshal(bodyBytes, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode swap response: %v, body: %s", err, string(bodyBytes))
	}

	amountOut, ok := new(big.Int).SetString(sr.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount_out in swap response: %q", sr.AmountOut)
	}

	c.logger.Debug("Venue filled swap %d: %s in, %s out (ref %s)",
		swapID, amountIn.String(), amountOut.String(), sr.ExecutionRef)

	return &saga.ExchangeResult{
		AmountOut:    amountOut,
		ExecutionRef: sr.ExecutionRef,
	}, nil
}

// rejectionMessage extracts the error text from a rejection body, falling
// back to the raw body if it is not structured
func rejectionMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return string(body)
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
