package analysis

import (
	"context"
	"time"

	"github.com/dvloznov/budget-insights/internal/domain"
)

// Request is the payload sent to an analyzer.
type Request struct {
	CSVURL     string `json:"csvUrl,omitempty"`
	SampleData bool   `json:"sampleData"`

	// Object is the storage path of the export, for analyzers that read it directly.
	Object string `json:"-"`
}

// ServiceResult is an analyzer response. Every field is optional:
// a nil slice or nil Charts means the analyzer did not provide it.
type ServiceResult struct {
	Insights          []string                  `json:"insights,omitempty"`
	Recommendations   []string                  `json:"recommendations,omitempty"`
	BudgetSuggestions []domain.BudgetSuggestion `json:"budgetSuggestions,omitempty"`
	SpendingTrends    []domain.SpendingTrend    `json:"spendingTrends,omitempty"`
	SavingsProjection []domain.SavingsPoint     `json:"savingsProjection,omitempty"`
	CategoryBreakdown []domain.CategoryShare    `json:"categoryBreakdown,omitempty"`
	Charts            *domain.Charts            `json:"charts,omitempty"`
}

// Analyzer produces insights for an export.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*ServiceResult, error)
}

// State is the cache classification of a stored snapshot.
type State string

const (
	StateNoSnapshot         State = "NO_SNAPSHOT"
	StateFresh              State = "FRESH"
	StateStaleByAge         State = "STALE_BY_AGE"
	StateIncomplete         State = "INCOMPLETE"
	StateStaleByTransaction State = "STALE_BY_TRANSACTION"
	// StateForced marks a caller-requested refresh; the stored snapshot is not inspected.
	StateForced State = "FORCED"
)

// Source tells where a returned snapshot came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceService  Source = "service"
	SourceFallback Source = "fallback"
)

// Outcome is the detailed result of resolving a user's analysis.
type Outcome struct {
	Snapshot *domain.AnalysisSnapshot
	State    State
	Source   Source
	// Warnings holds the recoverable failures met on the way.
	Warnings []error
}

// DefaultTTL is how long a snapshot is served without recomputation.
const DefaultTTL = 5 * time.Minute

// Fixed texts used when no analyzer output is available.
var (
	FallbackInsights = []string{
		"Your spending is concentrated in a few categories; reviewing them monthly helps keep it in check.",
		"Tracking income alongside expenses gives a clearer picture of your monthly savings rate.",
	}
	FallbackRecommendations = []string{
		"Set a monthly budget for your top spending category and aim to trim it by 10%.",
		"Move a fixed share of each paycheck into savings as soon as it arrives.",
	}
)
