package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// HTTPProcessor sends statements to the statement-processing service at
// POST {endpoint}/process-statement.
type HTTPProcessor struct {
	endpoint   string
	httpClient *http.Client
}

type processResponse struct {
	Transactions []ExtractedTransaction `json:"transactions"`
	Error        string                 `json:"error,omitempty"`
}

var _ Processor = (*HTTPProcessor)(nil)

// NewHTTPProcessor creates a client with the given request timeout.
func NewHTTPProcessor(endpoint string, timeout time.Duration) *HTTPProcessor {
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	return &HTTPProcessor{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Process uploads the statement as multipart form data (file, user_id, file_url).
func (c *HTTPProcessor) Process(ctx context.Context, file StatementFile) ([]ExtractedTransaction, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	contentType := file.ContentType
	if contentType == "" {
		contentType = contentTypeFor(file.Filename)
	}

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(file.Filename))}
	h["Content-Type"] = []string{contentType}

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: copy file data: %w", err)
	}
	if err := writer.WriteField("user_id", file.UserID); err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: write user_id: %w", err)
	}
	if file.URL != "" {
		if err := writer.WriteField("file_url", file.URL); err != nil {
			return nil, fmt.Errorf("HTTPProcessor.Process: write file_url: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/process-statement", &buf)
	if err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTPProcessor.Process: service error (status %d): %s", resp.StatusCode, string(body))
	}

	var out processResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("HTTPProcessor.Process: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("HTTPProcessor.Process: processing error: %s", out.Error)
	}

	return out.Transactions, nil
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
