package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// LocalAggregates are derived from the transaction store without any network call.
type LocalAggregates struct {
	BudgetSuggestions []domain.BudgetSuggestion
	SpendingTrends    []domain.SpendingTrend
	CategoryBreakdown []domain.CategoryShare
	SavingsProjection []domain.SavingsPoint
}

const (
	minCategories = 3
	trendMonths   = 6
)

var (
	budgetFactor        = decimal.RequireFromString("0.9")
	budgetPercentChange = decimal.NewFromInt(-10)
	hundred             = decimal.NewFromInt(100)

	trendBase = decimal.NewFromInt(1000)
	trendStep = decimal.NewFromInt(150)
)

type categoryAmount struct {
	Category string
	Amount   decimal.Decimal
}

// defaultCategories pad suggestions and breakdowns when a month has few categories.
var defaultCategories = []categoryAmount{
	{"Food & Dining", decimal.NewFromInt(500)},
	{"Transportation", decimal.NewFromInt(300)},
	{"Entertainment", decimal.NewFromInt(200)},
	{"Utilities", decimal.NewFromInt(250)},
	{"Shopping", decimal.NewFromInt(350)},
}

// Derive computes every local aggregate as of now.
func Derive(expenses, income []*domain.Transaction, now time.Time) LocalAggregates {
	return LocalAggregates{
		BudgetSuggestions: BudgetSuggestions(expenses, now),
		SpendingTrends:    SpendingTrends(expenses, now),
		CategoryBreakdown: CategoryBreakdown(expenses, now),
		SavingsProjection: SavingsProjection(expenses, income, now),
	}
}

// BudgetSuggestions proposes round(S × 0.9) for every category with current-month spend S.
func BudgetSuggestions(expenses []*domain.Transaction, now time.Time) []domain.BudgetSuggestion {
	cats := padCategories(currentMonthByCategory(expenses, now))

	out := make([]domain.BudgetSuggestion, 0, len(cats))
	for _, c := range cats {
		out = append(out, domain.BudgetSuggestion{
			Category:        c.Category,
			CurrentSpending: c.Amount,
			SuggestedBudget: c.Amount.Mul(budgetFactor).Round(0),
			PercentChange:   budgetPercentChange,
		})
	}
	return out
}

// CategoryBreakdown gives each current-month category's share of the total, in percent to 2 dp.
func CategoryBreakdown(expenses []*domain.Transaction, now time.Time) []domain.CategoryShare {
	cats := padCategories(currentMonthByCategory(expenses, now))

	total := decimal.Zero
	for _, c := range cats {
		total = total.Add(c.Amount)
	}

	out := make([]domain.CategoryShare, 0, len(cats))
	for _, c := range cats {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = c.Amount.Div(total).Mul(hundred).Round(2)
		}
		out = append(out, domain.CategoryShare{
			Category:   c.Category,
			Amount:     c.Amount,
			Percentage: pct,
		})
	}
	return out
}

// SpendingTrends sums expenses for the last six calendar months, oldest first.
// If fewer than six months have data, each empty month at position i gets 1000 + 150×i.
func SpendingTrends(expenses []*domain.Transaction, now time.Time) []domain.SpendingTrend {
	months := lastMonths(now, trendMonths)

	sums := make(map[string]decimal.Decimal, len(months))
	for _, tx := range expenses {
		key := fmt.Sprintf("%04d-%02d", tx.Date.Year, int(tx.Date.Month))
		sums[key] = sums[key].Add(tx.Amount)
	}

	withData := 0
	for _, m := range months {
		if _, ok := sums[m]; ok {
			withData++
		}
	}

	out := make([]domain.SpendingTrend, 0, len(months))
	for i, m := range months {
		amount, ok := sums[m]
		if !ok && withData < trendMonths {
			amount = trendBase.Add(trendStep.Mul(decimal.NewFromInt(int64(i))))
		}
		out = append(out, domain.SpendingTrend{Month: m, Amount: amount})
	}
	return out
}

// SavingsProjection accumulates this month's net savings (floored at zero) over the next six months.
func SavingsProjection(expenses, income []*domain.Transaction, now time.Time) []domain.SavingsPoint {
	year, month, _ := now.Date()

	net := decimal.Zero
	for _, tx := range income {
		if tx.InMonth(year, month) {
			net = net.Add(tx.Amount)
		}
	}
	for _, tx := range expenses {
		if tx.InMonth(year, month) {
			net = net.Sub(tx.Amount)
		}
	}
	if net.IsNegative() {
		net = decimal.Zero
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.SavingsPoint, 0, trendMonths)
	for i := 1; i <= trendMonths; i++ {
		out = append(out, domain.SavingsPoint{
			Month:  first.AddDate(0, i, 0).Format("2006-01"),
			Amount: net.Mul(decimal.NewFromInt(int64(i))),
		})
	}
	return out
}

// currentMonthByCategory groups this month's expenses, largest first.
func currentMonthByCategory(expenses []*domain.Transaction, now time.Time) []categoryAmount {
	year, month, _ := now.Date()

	totals := map[string]decimal.Decimal{}
	for _, tx := range expenses {
		if tx.InMonth(year, month) {
			totals[tx.Category] = totals[tx.Category].Add(tx.Amount)
		}
	}

	out := make([]categoryAmount, 0, len(totals))
	for cat, amt := range totals {
		out = append(out, categoryAmount{Category: cat, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func padCategories(cats []categoryAmount) []categoryAmount {
	if len(cats) >= minCategories {
		return cats
	}
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		seen[c.Category] = true
	}
	for _, d := range defaultCategories {
		if len(cats) >= minCategories {
			break
		}
		if !seen[d.Category] {
			cats = append(cats, d)
		}
	}
	return cats
}

// lastMonths returns n "YYYY-MM" keys ending with the month of now, oldest first.
func lastMonths(now time.Time, n int) []string {
	year, month, _ := now.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = first.AddDate(0, i-(n-1), 0).Format("2006-01")
	}
	return out
}
