package analysis

import (
	"github.com/dvloznov/budget-insights/internal/domain"
)

// MergeWithFallback combines an analyzer response with local aggregates.
// The analyzer is authoritative for insights, recommendations, charts and the
// savings projection; budget suggestions, spending trends and the category
// breakdown come from local derivation when the analyzer omits them. Missing
// insights or recommendations fall back to the fixed texts so the result is
// always complete.
func MergeWithFallback(res *ServiceResult, local LocalAggregates) *domain.AnalysisSnapshot {
	if res == nil {
		res = &ServiceResult{}
	}

	snap := &domain.AnalysisSnapshot{
		Insights:          pick(res.Insights, FallbackInsights),
		Recommendations:   pick(res.Recommendations, FallbackRecommendations),
		BudgetSuggestions: pick(res.BudgetSuggestions, local.BudgetSuggestions),
		SpendingTrends:    pick(res.SpendingTrends, local.SpendingTrends),
		CategoryBreakdown: pick(res.CategoryBreakdown, local.CategoryBreakdown),
		SavingsProjection: pick(res.SavingsProjection, local.SavingsProjection),
	}
	if res.Charts != nil {
		snap.Charts = *res.Charts
	}
	return snap
}

// Fallback builds the snapshot served when no analyzer output is available.
func Fallback(local LocalAggregates) *domain.AnalysisSnapshot {
	return &domain.AnalysisSnapshot{
		Insights:          append([]string(nil), FallbackInsights...),
		Recommendations:   append([]string(nil), FallbackRecommendations...),
		BudgetSuggestions: local.BudgetSuggestions,
		SpendingTrends:    local.SpendingTrends,
		CategoryBreakdown: local.CategoryBreakdown,
		SavingsProjection: local.SavingsProjection,
	}
}

func pick[T any](primary, fallback []T) []T {
	if len(primary) > 0 {
		return primary
	}
	return append([]T(nil), fallback...)
}
