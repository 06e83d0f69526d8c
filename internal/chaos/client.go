// Package chaos drives resilience experiments against a running
// deployment through the public API: fault injection via the worker
// config, synthetic uploads, and dead-letter observation, with a
// guaranteed restore of the pre-test state.
package chaos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient is a thin HTTP client for the api-service surface the
// experiments need.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client against the api-service base URL,
// e.g. "http://localhost:8080".
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WorkerConfig mirrors the operator config payload.
type WorkerConfig struct {
	FailureRate         float64 `json:"failure_rate"`
	InducedDelaySeconds int     `json:"induced_delay_seconds"`
	CircuitOpen         bool    `json:"circuit_open"`
	Paused              bool    `json:"paused"`
}

// UploadTarget is the capability half of an admission response.
type UploadTarget struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// AdmissionResponse is the admission half of the upload flow.
type AdmissionResponse struct {
	Cached      bool            `json:"cached"`
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Status      string          `json:"status,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Upload      *UploadTarget   `json:"upload,omitempty"`
}

// StatusResponse is the poll response.
type StatusResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// GetWorkerConfig reads the current worker runtime config.
func (c *APIClient) GetWorkerConfig(ctx context.Context) (WorkerConfig, error) {
	var cfg WorkerConfig
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/worker/config", nil, &cfg)
	return cfg, err
}

// UpdateWorkerConfig replaces the worker runtime config.
func (c *APIClient) UpdateWorkerConfig(ctx context.Context, cfg WorkerConfig) error {
	return c.doJSON(ctx, http.MethodPut, "/api/v1/worker/config", cfg, nil)
}

// Admit runs upload admission for one synthetic artifact.
func (c *APIClient) Admit(ctx context.Context, ownerID, filename, contentType string, size, lastModified int64) (AdmissionResponse, error) {
	req := map[string]any{
		"user_id":       ownerID,
		"filename":      filename,
		"content_type":  contentType,
		"size":          size,
		"last_modified": lastModified,
	}
	var resp AdmissionResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/uploads", req, &resp)
	return resp, err
}

// Upload writes the artifact body to the capability URL from admission.
func (c *APIClient) Upload(ctx context.Context, target *UploadTarget, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload rejected: status %d: %s", resp.StatusCode, payload)
	}
	return nil
}

// GetStatus polls one analysis.
func (c *APIClient) GetStatus(ctx context.Context, ownerID, fp string) (StatusResponse, error) {
	var resp StatusResponse
	path := fmt.Sprintf("/api/v1/analyses/%s/%s", ownerID, fp)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// DeadLetterCount reads the current depth of the dead-letter queue.
func (c *APIClient) DeadLetterCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/dlq", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// DrainDeadLetters empties the dead-letter queue.
func (c *APIClient) DrainDeadLetters(ctx context.Context) (int, error) {
	var resp struct {
		Drained int `json:"drained"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/dlq/drain", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Drained, nil
}

// RedriveDeadLetters moves dead letters back to the live queue.
func (c *APIClient) RedriveDeadLetters(ctx context.Context) (int, error) {
	var resp struct {
		Redriven int `json:"redriven"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/dlq/redrive", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Redriven, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s %s failed: status %d: %s", method, path, resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
