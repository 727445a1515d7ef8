package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProcessor extracts statement transactions with a Gemini model
// instead of the statement-processing service.
type GeminiProcessor struct {
	client     *genai.Client
	model      string
	categories []string
}

var _ Processor = (*GeminiProcessor)(nil)

// NewGeminiProcessor creates a genai client using the environment's credentials.
func NewGeminiProcessor(ctx context.Context, model string, categories []string) (*GeminiProcessor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiProcessor: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &GeminiProcessor{client: client, model: model, categories: categories}, nil
}

// Process sends the statement to Gemini and decodes the returned JSON array.
func (p *GeminiProcessor) Process(ctx context.Context, file StatementFile) ([]ExtractedTransaction, error) {
	mimeType := file.ContentType
	if mimeType == "" {
		mimeType = contentTypeFor(file.Filename)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildStatementPrompt(p.categories)},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     file.Data,
					},
				},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiProcessor.Process: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiProcessor.Process: empty response from model")
	}

	return decodeModelTransactions(rawText)
}

func decodeModelTransactions(rawText string) ([]ExtractedTransaction, error) {
	var txs []ExtractedTransaction
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &txs); err != nil {
		return nil, fmt.Errorf("decodeModelTransactions: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	return txs, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
