package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/budget-insights/internal/gcs"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const analysisPrompt = "You are a personal finance assistant.\n\n" +
	"Task:\n" +
	"- Analyze the attached CSV of a user's transactions (columns: id,type,date,amount,category,description).\n" +
	"- \"type\" is either \"expense\" or \"income\". Amounts are non-negative.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n" +
	"The JSON object must have these fields:\n" +
	"- \"insights\": array of 2 to 5 short strings\n" +
	"- \"recommendations\": array of 2 to 5 short, actionable strings\n" +
	"- \"budgetSuggestions\": array of {\"category\", \"currentSpending\", \"suggestedBudget\", \"percentChange\"}\n" +
	"- \"savingsProjection\": array of 6 {\"month\": \"YYYY-MM\", \"amount\"} for the coming months\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

const samplePrompt = "The user has not recorded any transactions yet. " +
	"Give general budgeting guidance for someone just starting to track spending.\n"

// GeminiAnalyzer asks a Gemini model for the same JSON shape the HTTP analysis service returns.
// It reads the export straight from object storage.
type GeminiAnalyzer struct {
	client  *genai.Client
	model   string
	storage gcs.StorageService
	bucket  string
}

var _ Analyzer = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer creates a genai client using the environment's credentials.
func NewGeminiAnalyzer(ctx context.Context, model string, storage gcs.StorageService, bucket string) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiAnalyzer: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiAnalyzer{client: client, model: model, storage: storage, bucket: bucket}, nil
}

// Analyze sends the export CSV (or a sample-data prompt) to the model.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req Request) (*ServiceResult, error) {
	parts := []*genai.Part{{Text: analysisPrompt}}

	if req.SampleData || req.Object == "" {
		parts = append(parts, &genai.Part{Text: samplePrompt})
	} else {
		csvBytes, err := g.storage.FetchFromGCS(ctx, gcs.URI(g.bucket, req.Object))
		if err != nil {
			return nil, fmt.Errorf("GeminiAnalyzer.Analyze: fetching export: %w", err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "text/csv", Data: csvBytes},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiAnalyzer.Analyze: generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("GeminiAnalyzer.Analyze: empty response from model")
	}

	var result ServiceResult
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &result); err != nil {
		return nil, fmt.Errorf("GeminiAnalyzer.Analyze: unmarshal JSON: %w", err)
	}
	return &result, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
