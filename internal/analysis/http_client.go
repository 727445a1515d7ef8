package analysis

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

// HTTPAnalyzer calls the external analysis service at POST {endpoint}/analyze.
type HTTPAnalyzer struct {
	endpoint   string
	httpClient *http.Client
}

var _ Analyzer = (*HTTPAnalyzer)(nil)

// NewHTTPAnalyzer creates a client with the given request timeout.
func NewHTTPAnalyzer(endpoint string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPAnalyzer{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze posts the request and decodes the JSON response.
// Transport errors, timeouts, non-2xx statuses and undecodable bodies are all errors.
func (c *HTTPAnalyzer) Analyze(ctx context.Context, req Request) (*ServiceResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPAnalyzer.Analyze: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPAnalyzer.Analyze: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTPAnalyzer.Analyze: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTPAnalyzer.Analyze: service error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result ServiceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("HTTPAnalyzer.Analyze: decode response: %w", err)
	}
	return &result, nil
}
