// Package intakeclient provides a client for the swap intake API.
package intakeclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
	"github.com/relayswap-hq/relayswap-coordinator/pkg/models"
)

// APIResponse represents the structure of the API response
type APIResponse struct {
	Requests   []models.SwapRequest `json:"requests,omitempty"`
	Data       []models.SwapRequest `json:"data,omitempty"`    // Some deployments use "data" as the key
	Results    []models.SwapRequest `json:"results,omitempty"` // Some deployments use "results" as the key
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalCount int                  `json:"total_count"`
	TotalPages int                  `json:"total_pages"`
}

// Client represents an intake API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new intake API client
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

// FetchPendingRequests gets pending swap requests from the API
func (c *Client) FetchPendingRequests() ([]models.SwapRequest, error) {
	resp, err := c.httpClient.Get(c.endpoint + "/api/v1/requests?status=pending")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending requests: %v", err)
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	// Try to unmarshal into our wrapper struct first
	var apiResp APIResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		// If that fails, try directly as an array
		var requests []models.SwapRequest
		if err := json.Unmarshal(bodyBytes, &requests); err != nil {
			return nil, fmt.Errorf("failed to decode requests: %v, body: %s", err, string(bodyBytes))
		}
		return requests, nil
	}

	// Handle paginated response with no data
	if apiResp.TotalCount == 0 && len(apiResp.Requests) == 0 && len(apiResp.Data) == 0 && len(apiResp.Results) == 0 {
		c.logger.Debug("No pending requests found (page %d/%d, total count: %d)",
			apiResp.Page, apiResp.TotalPages, apiResp.TotalCount)
		return []models.SwapRequest{}, nil
	}

	// Get requests from whatever field is populated
	var requests []models.SwapRequest
	if len(apiResp.Requests) > 0 {
		requests = apiResp.Requests
	} else if len(apiResp.Data) > 0 {
		requests = apiResp.Data
	} else if len(apiResp.Results) > 0 {
		requests = apiResp.Results
	} else {
		// Some deployments wrap the list in a field we do not know about.
		// Parse as a generic map and look for any array field.
		var genericResp map[string]interface{}
		if err := json.Unmarshal(bodyBytes, &genericResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %v", err)
		}

		for key, value := range genericResp {
			if arrayValue, ok := value.([]interface{}); ok && len(arrayValue) > 0 {
				arrayJSON, err := json.Marshal(arrayValue)
				if err != nil {
					continue
				}
				if err := json.Unmarshal(arrayJSON, &requests); err == nil && len(requests) > 0 {
					c.logger.Debug("Found requests in field: %s", key)
					break
				}
			}
		}

		if len(requests) == 0 {
			// This is a normal case when there are no pending requests
			c.logger.Debug("No pending requests found in API response")
			return []models.SwapRequest{}, nil
		}
	}
	return requests, nil
}

// Ack marks a request as accepted so the intake stops serving it. Requests
// left unacked reappear on the next poll, the coordinator dedupes those.
func (c *Client) Ack(requestID string) error {
	url := fmt.Sprintf("%s/api/v1/requests/%s/ack", c.endpoint, requestID)
	resp, err := c.httpClient.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to ack request %s: %v", requestID, err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
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
