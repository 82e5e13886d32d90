// Package bridgeclient provides a client for the bridge relayer API.
package bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/saga"
)

// transferRequest is the body of a submit-transfer call. The nonce is the
// swap id, which the relayer uses to deduplicate retried sends.
type transferRequest struct {
	SwapID      uint64 `json:"swap_id"`
	Amount      string `json:"amount"`
	DestDomain  uint32 `json:"dest_domain"`
	DestAddress string `json:"dest_address"`
	Nonce       uint64 `json:"nonce"`
}

// transferResponse is the relayer's acknowledgement of a submitted transfer.
type transferResponse struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// completionRequest is the body of a destination-side completion call.
type completionRequest struct {
	SwapID      uint64        `json:"swap_id"`
	DestAddress string        `json:"dest_address"`
	Message     hexutil.Bytes `json:"message"`
	Signature   hexutil.Bytes `json:"signature"`
}

// completionResponse is the relayer's report of an executed completion.
type completionResponse struct {
	AmountOut string `json:"amount_out"`
}

// errorResponse is the structured body the relayer returns on rejections.
type errorResponse struct {
	Error string `json:"error"`
}

// Client represents a bridge relayer API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new bridge relayer API client
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

// Send submits a cross-domain transfer and returns its handle. A response
// accepted without a handle means the relayer took custody but lost track of
// the transfer, surfaced as ErrTransferStranded so the caller can reclaim.
func (c *Client) Send(ctx context.Context, params saga.TransferParams) (common.Hash, error) {
	body, err := json.Marshal(transferRequest{
		SwapID:      params.SwapID,
		Amount:      params.Amount.String(),
		DestDomain:  params.DestDomain,
		DestAddress: params.DestAddress,
		Nonce:       params.Nonce,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transfer request: %v", err)
	}

	bodyBytes, status, err := c.post(ctx, "/api/v1/transfers", body)
	if err != nil {
		return common.Hash{}, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		return common.Hash{}, &saga.CollaboratorError{
			Collaborator: "bridge",
			Err:          fmt.Errorf("relayer rejected transfer for swap %d: %s", params.SwapID, rejectionMessage(bodyBytes)),
		}
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return common.Hash{}, fmt.Errorf("unexpected status code: %d, body: %s", status, string(bodyBytes))
	}

	var tr transferResponse
	if err := json.Unmarshal(bodyBytes, &tr); err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode transfer response: %v, body: %s", err, string(bodyBytes))
	}

	if tr.Status == "stranded" || tr.Handle == "" {
		return common.Hash{}, fmt.Errorf("transfer for swap %d accepted without a handle: %w", params.SwapID, saga.ErrTransferStranded)
	}

	handle := common.HexToHash(tr.Handle)
	if handle == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("transfer for swap %d returned unusable handle %q: %w", params.SwapID, tr.Handle, saga.ErrTransferStranded)
	}

	c.logger.Debug("Relayer accepted transfer for swap %d: handle %s", params.SwapID, handle.Hex())
	return handle, nil
}

// FetchAttestation returns the current attestation for a transfer handle.
// A handle the relayer does not know yet reads as pending, not as an error.
func (c *Client) FetchAttestation(ctx context.Context, ref common.Hash) (*models.Attestation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/v1/attestations/"+ref.Hex(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build attestation request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attestation: %v", err)
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

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var att models.Attestation
	if err := json.Unmarshal(bodyBytes, &att); err != nil {
		return nil, fmt.Errorf("failed to decode attestation: %v, body: %s", err, string(bodyBytes))
	}
	return &att, nil
}

// Reclaim pulls a stranded transfer back into coordinator custody, located
// relayer-side by our sender identity and nonce.
func (c *Client) Reclaim(ctx context.Context, nonce uint64) error {
	path := fmt.Sprintf("/api/v1/transfers/%d/reclaim", nonce)
	bodyBytes, status, err := c.post(ctx, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d, body: %s", status, string(bodyBytes))
	}

	c.logger.Notice("Reclaimed stranded transfer with nonce %d", nonce)
	return nil
}

// Complete executes the destination side of a swap by presenting the
// attestation and returns the amount delivered to the target address. The
// relayer serves completions idempotently per swap id.
func (c *Client) Complete(ctx context.Context, swapID uint64, att *models.Attestation, destAddress string) (*big.Int, error) {
	body, err := json.Marshal(completionRequest{
		SwapID:      swapID,
		DestAddress: destAddress,
		Message:     att.Message,
		Signature:   att.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %v", err)
	}

	bodyBytes, status, err := c.post(ctx, "/api/v1/completions", body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		return nil, &saga.CollaboratorError{
			Collaborator: "destination",
			Err:          fmt.Errorf("relayer rejected completion for swap %d: %s", swapID, rejectionMessage(bodyBytes)),
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", status, string(bodyBytes))
	}

	var cr completionResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %v, body: %s", err, string(bodyBytes))
	}

	amountOut, ok := new(big.Int).SetString(cr.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount_out in completion response: %q", cr.AmountOut)
	}

	c.logger.Debug("Relayer completed swap %d: delivered %s to %s", swapID, amountOut.String(), destAddress)
	return amountOut, nil
}

// post sends a JSON POST and returns the response body and status code
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request for %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call %s: %v", path, err)
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
		return nil, 0, fmt.Errorf("failed to read response body: %v", err)
	}
	return bodyBytes, resp.StatusCode, nil
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
