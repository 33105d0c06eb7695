// Package client provides the HTTP client layer for the anchorctl CLI.
//
// This package implements communication with the anchord REST API including
// request/response serialization, error handling, retry logic, and structured
// logging for reliable relay operations.
//
// API CLIENT ARCHITECTURE:
// The AnchorAPIClient wraps the Resty HTTP client with relay-specific
// functionality:
//   - Connection Management: Timeout configuration and retry policies
//   - Request/Response Handling: JSON serialization and structured error parsing
//   - Versioning: User-Agent headers for compatibility tracking
//   - Fault Tolerance: Automatic retries on connection failures
//
// RESPONSE TYPE DEFINITIONS:
// The package defines response structures mirroring the daemon API including
// Payload, BatchResult, and StatsResponse with JSON tags matching the wire
// format, so commands and display functions share one data model.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/concave-dev/anchor/internal/logging"
	"github.com/go-resty/resty/v2"
)

// Payload mirrors the daemon's signed payload record on the wire.
type Payload struct {
	ID                 string          `json:"id"`
	PayloadType        string          `json:"payload_type"`
	SignerAddress      string          `json:"signer_address"`
	Nonce              uint64          `json:"nonce"`
	Payload            json.RawMessage `json:"payload"`
	PayloadHash        string          `json:"payload_hash"`
	StructuredDataHash string          `json:"structured_data_hash,omitempty"`
	Signature          string          `json:"signature,omitempty"`
	ExpiresAt          time.Time       `json:"expires_at"`
	Status             string          `json:"status"`
	TransactionHash    string          `json:"transaction_hash,omitempty"`
	BlockNumber        uint64          `json:"block_number,omitempty"`
	SubmissionAttempts int             `json:"submission_attempts"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PayloadList is the response body of the payload list endpoint.
type PayloadList struct {
	Payloads []Payload `json:"payloads"`
	Count    int       `json:"count"`
}

// SubmitResult mirrors the daemon's per-payload submission outcome.
type SubmitResult struct {
	PayloadID       string `json:"payload_id"`
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	AttemptNumber   int    `json:"attempt_number"`
	FailureType     string `json:"failure_type,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BatchResult mirrors the daemon's batch execution summary.
type BatchResult struct {
	BatchID       string         `json:"batch_id"`
	TotalPayloads int            `json:"total_payloads"`
	Successful    int            `json:"successful"`
	Failed        int            `json:"failed"`
	Results       []SubmitResult `json:"results"`
	ElapsedMs     int64          `json:"elapsed_ms"`
}

// StatsResponse mirrors the daemon's operational statistics.
type StatsResponse struct {
	StatusCounts map[string]int `json:"status_counts"`
	Attempts     struct {
		Total   int     `json:"total"`
		Average float64 `json:"average"`
		Count   int     `json:"count"`
	} `json:"attempts"`
	InFlight     int    `json:"in_flight"`
	BalanceWei   string `json:"balance_wei,omitempty"`
	BalanceError string `json:"balance_error,omitempty"`
}

// VerifyResult mirrors the daemon's view-only verification outcome.
type VerifyResult struct {
	PayloadID string `json:"payload_id"`
	Verified  bool   `json:"verified"`
}

// HealthResponse mirrors the daemon's health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// errorBody is the daemon's uniform error response.
type errorBody struct {
	Error string `json:"error"`
}

// AnchorAPIClient communicates with the anchord REST API.
type AnchorAPIClient struct {
	client  *resty.Client
	baseURL string
}

// NewAnchorAPIClient creates an API client targeting the given daemon
// address (host:port) with the given request timeout.
func NewAnchorAPIClient(apiAddr string, timeout time.Duration) *AnchorAPIClient {
	baseURL := fmt.Sprintf("http://%s/api/v1", apiAddr)

	client := resty.New().
		SetTimeout(timeout).
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "anchorctl").
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logging.Debug("API request: %s %s", req.Method, req.URL)
		return nil
	})

	return &AnchorAPIClient{client: client, baseURL: baseURL}
}

// apiError extracts the daemon's error message from a non-2xx response.
func apiError(resp *resty.Response) error {
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("API error (%d): %s", resp.StatusCode(), resp.Status())
}

// Health checks daemon reachability and returns its health report.
func (c *AnchorAPIClient) Health() (*HealthResponse, error) {
	var out HealthResponse
	resp, err := c.client.R().SetResult(&out).Get("/health")
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", c.baseURL, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// Stats returns relay-wide operational statistics.
func (c *AnchorAPIClient) Stats() (*StatsResponse, error) {
	var out StatsResponse
	resp, err := c.client.R().SetResult(&out).Get("/stats")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// CreatePayload registers a new signed payload from a raw JSON body.
func (c *AnchorAPIClient) CreatePayload(body []byte) (*Payload, error) {
	var out Payload
	resp, err := c.client.R().SetBody(body).SetResult(&out).Post("/payloads")
	if err != nil {
		return nil, fmt.Errorf("failed to create payload: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// GetPayload fetches one payload record by id.
func (c *AnchorAPIClient) GetPayload(id string) (*Payload, error) {
	var out Payload
	resp, err := c.client.R().SetResult(&out).Get("/payloads/" + id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payload %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// ListPayloads lists payloads, optionally filtered by status.
func (c *AnchorAPIClient) ListPayloads(status string) (*PayloadList, error) {
	req := c.client.R()
	if status != "" {
		req.SetQueryParam("status", status)
	}

	var out PayloadList
	resp, err := req.SetResult(&out).Get("/payloads")
	if err != nil {
		return nil, fmt.Errorf("failed to list payloads: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// SubmitPayload submits one payload to the chain and returns the outcome.
func (c *AnchorAPIClient) SubmitPayload(id string) (*SubmitResult, error) {
	var out SubmitResult
	resp, err := c.client.R().SetResult(&out).Post("/payloads/" + id + "/submit")
	if err != nil {
		return nil, fmt.Errorf("failed to submit payload %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// VerifyPayload runs the registry's view-only signature check for one
// payload without submitting it.
func (c *AnchorAPIClient) VerifyPayload(id string) (*VerifyResult, error) {
	var out VerifyResult
	resp, err := c.client.R().SetResult(&out).Get("/payloads/" + id + "/verify")
	if err != nil {
		return nil, fmt.Errorf("failed to verify payload %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// batchBody is the request body for batch endpoints.
type batchBody struct {
	PayloadIDs []string `json:"payload_ids,omitempty"`
	BatchID    string   `json:"batch_id,omitempty"`
}

// ProcessBatch runs a batch over explicit payload ids.
func (c *AnchorAPIClient) ProcessBatch(ids []string, batchID string) (*BatchResult, error) {
	var out BatchResult
	resp, err := c.client.R().
		SetBody(batchBody{PayloadIDs: ids, BatchID: batchID}).
		SetResult(&out).
		Post("/batches")
	if err != nil {
		return nil, fmt.Errorf("failed to process batch: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// RetryBatch retries failed payloads: the given ids, or the daemon's own
// selection of recent retryable failures when ids is empty.
func (c *AnchorAPIClient) RetryBatch(ids []string) (*BatchResult, error) {
	var out BatchResult
	resp, err := c.client.R().
		SetBody(batchBody{PayloadIDs: ids}).
		SetResult(&out).
		Post("/batches/retry")
	if err != nil {
		return nil, fmt.Errorf("failed to retry batch: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &out, nil
}
