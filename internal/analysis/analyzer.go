// Package analysis defines the contract with the external video analysis
// service and the canonical result document. The service itself (frame
// extraction, model inference) is an external collaborator; only its
// interface is specified here.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Request carries everything the analysis backend needs for one artifact.
type Request struct {
	ObjectKey string `json:"object_key"`
	Name      string `json:"name"`
	// Context is opaque side-channel metadata attached at upload time
	// (e.g. conversation history). Best effort, may be empty.
	Context string `json:"context,omitempty"`
}

// Analyzer is the boundary to the external analysis step. Implementations
// must honor ctx cancellation: the worker always calls Analyze with a
// deadline strictly shorter than the queue visibility window.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}

// HTTPAnalyzer invokes the analysis service over HTTP.
type HTTPAnalyzer struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPAnalyzer builds an analyzer against the given endpoint. The
// timeout is the hard per-call budget; a hung backend surfaces as a
// transient error, not a stuck worker.
func NewHTTPAnalyzer(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Analyze posts the request to the analysis service and normalizes whatever
// comes back into the canonical result shape.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("analysis call failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read analysis response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("analysis service returned status %d", resp.StatusCode)
	}

	a.logger.Debug("Analysis call completed",
		slog.String("object_key", req.ObjectKey),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("payload_size", len(payload)),
	)

	return Normalize(payload), nil
}
