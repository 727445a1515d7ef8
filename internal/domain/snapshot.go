package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetSuggestion proposes a monthly budget for one category.
type BudgetSuggestion struct {
	Category        string          `json:"category"`
	CurrentSpending decimal.Decimal `json:"currentSpending"`
	SuggestedBudget decimal.Decimal `json:"suggestedBudget"`
	PercentChange   decimal.Decimal `json:"percentChange"`
}

// SpendingTrend is the total spent in one calendar month ("YYYY-MM").
type SpendingTrend struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// SavingsPoint is the projected cumulative savings at the end of a month.
type SavingsPoint struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryShare is a category's part of the month's spending.
type CategoryShare struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Charts holds rendered images as base64 payloads. They are opaque here.
type Charts struct {
	PieChart  string `json:"pieChart,omitempty"`
	LineChart string `json:"lineChart,omitempty"`
	BarChart  string `json:"barChart,omitempty"`
}

// AnalysisSnapshot is the single stored analysis result for a user.
// It is overwritten on every recomputation and never versioned.
type AnalysisSnapshot struct {
	UserID            string             `json:"userId"`
	Insights          []string           `json:"insights"`
	Recommendations   []string           `json:"recommendations"`
	BudgetSuggestions []BudgetSuggestion `json:"budgetSuggestions"`
	SpendingTrends    []SpendingTrend    `json:"spendingTrends"`
	SavingsProjection []SavingsPoint     `json:"savingsProjection"`
	CategoryBreakdown []CategoryShare    `json:"categoryBreakdown"`
	Charts            Charts             `json:"charts"`

	// Timestamp is when the snapshot was produced.
	Timestamp time.Time `json:"timestamp"`
	// LastTransactionTimestamp is the version marker in effect at production time.
	LastTransactionTimestamp *time.Time `json:"lastTransactionTimestamp,omitempty"`
}

// Complete reports whether the snapshot carries both insights and recommendations.
func (s *AnalysisSnapshot) Complete() bool {
	return s != nil && len(s.Insights) > 0 && len(s.Recommendations) > 0
}

// UserMetadata is the per-user metadata document.
type UserMetadata struct {
	UserID string `json:"userId"`

	// LastTransactionTimestamp is the transaction-version marker.
	LastTransactionTimestamp *time.Time `json:"lastTransactionTimestamp,omitempty"`

	ExportURL     string     `json:"exportUrl,omitempty"`
	ExportBuiltAt *time.Time `json:"exportBuiltAt,omitempty"`
	LastAnalyzed  *time.Time `json:"lastAnalyzed,omitempty"`
}

// NextMarker returns the marker value to stamp after a mutation at now.
// Markers are kept at microsecond precision and are strictly increasing per user.
func NextMarker(prev *time.Time, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if prev != nil && !next.After(*prev) {
		next = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return next
}

// SameMarker compares two optional markers as instants.
func SameMarker(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
