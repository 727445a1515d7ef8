package analysis

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)

func expense(category, amount, date string) *domain.Transaction {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return &domain.Transaction{
		ID:       category + date + amount,
		UserID:   "u1",
		Kind:     domain.KindExpense,
		Amount:   decimal.RequireFromString(amount),
		Category: category,
		Date:     d,
	}
}

func income(amount, date string) *domain.Transaction {
	tx := expense("Salary", amount, date)
	tx.Kind = domain.KindIncome
	return tx
}

func TestCategoryBreakdownPercentages(t *testing.T) {
	expenses := []*domain.Transaction{
		expense("Food & Dining", "120.00", "2026-06-01"),
		expense("Food & Dining", "80.00", "2026-06-03"),
		expense("Rent", "700.00", "2026-06-01"),
		expense("Transportation", "100.00", "2026-06-10"),
		expense("Gym", "100.00", "2026-06-11"),
		expense("Rent", "700.00", "2026-05-01"), // previous month
	}
	total := decimal.NewFromInt(1100)

	got := CategoryBreakdown(expenses, testNow)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}

	sum := decimal.Zero
	for _, share := range got {
		want := share.Amount.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
		if !share.Percentage.Equal(want) {
			t.Errorf("%s percentage = %s, want %s", share.Category, share.Percentage, want)
		}
		sum = sum.Add(share.Percentage)
	}
	if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(decimal.RequireFromString("0.05")) {
		t.Errorf("percentages sum to %s, want 100", sum)
	}
	if got[0].Category != "Rent" {
		t.Errorf("largest category first, got %s", got[0].Category)
	}
}

func TestCategoryBreakdownPadsWithDefaults(t *testing.T) {
	got := CategoryBreakdown([]*domain.Transaction{expense("Food & Dining", "100", "2026-06-02")}, testNow)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Food & Dining is observed, so the defaults used are Transportation and Entertainment.
	want := []string{"Food & Dining", "Transportation", "Entertainment"}
	sum := decimal.Zero
	for i, share := range got {
		if share.Category != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, share.Category, want[i])
		}
		sum = sum.Add(share.Percentage)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Errorf("percentages sum to %s, want 100", sum)
	}
}

func TestBudgetSuggestions(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"whole", "500", "450"},
		{"fractional spend", "123.45", "111"},
		{"rounds half away from zero", "5", "5"},
		{"rounds down", "10.5", "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BudgetSuggestions([]*domain.Transaction{expense("Groceries", tt.amount, "2026-06-05")}, testNow)
			if got[0].Category != "Groceries" {
				t.Fatalf("first category = %s", got[0].Category)
			}
			if !got[0].SuggestedBudget.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("SuggestedBudget = %s, want %s", got[0].SuggestedBudget, tt.want)
			}
			if !got[0].PercentChange.Equal(decimal.NewFromInt(-10)) {
				t.Errorf("PercentChange = %s, want -10", got[0].PercentChange)
			}
		})
	}
}

func TestBudgetSuggestionsNoData(t *testing.T) {
	got := BudgetSuggestions(nil, testNow)
	want := []struct {
		cat       string
		suggested int64
	}{
		{"Food & Dining", 450},
		{"Transportation", 270},
		{"Entertainment", 180},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Category != w.cat || !got[i].SuggestedBudget.Equal(decimal.NewFromInt(w.suggested)) {
			t.Errorf("got[%d] = %+v", i, got[i])
		}
	}
}

func TestSpendingTrends(t *testing.T) {
	expenses := []*domain.Transaction{
		expense("Food", "40", "2026-06-01"),
		expense("Food", "60", "2026-06-15"),
		expense("Food", "25", "2026-03-02"),
		expense("Food", "999", "2025-12-31"), // outside the window
	}

	got := SpendingTrends(expenses, testNow)
	wantMonths := []string{"2026-01", "2026-02", "2026-03", "2026-04", "2026-05", "2026-06"}
	wantAmounts := []string{"1000", "1150", "25", "1450", "1600", "100"}

	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	for i := range got {
		if got[i].Month != wantMonths[i] {
			t.Errorf("got[%d].Month = %s, want %s", i, got[i].Month, wantMonths[i])
		}
		if !got[i].Amount.Equal(decimal.RequireFromString(wantAmounts[i])) {
			t.Errorf("got[%d].Amount = %s, want %s", i, got[i].Amount, wantAmounts[i])
		}
	}
}

func TestSpendingTrendsAllMonthsPresent(t *testing.T) {
	var expenses []*domain.Transaction
	for _, m := range []string{"01", "02", "03", "04", "05", "06"} {
		expenses = append(expenses, expense("Food", "10", "2026-"+m+"-01"))
	}
	for _, trend := range SpendingTrends(expenses, testNow) {
		if !trend.Amount.Equal(decimal.NewFromInt(10)) {
			t.Errorf("%s = %s, want 10", trend.Month, trend.Amount)
		}
	}
}

func TestSavingsProjection(t *testing.T) {
	got := SavingsProjection(
		[]*domain.Transaction{expense("Rent", "1200", "2026-06-01")},
		[]*domain.Transaction{income("2000", "2026-06-01"), income("5000", "2026-05-01")},
		testNow,
	)
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	if got[0].Month != "2026-07" || !got[0].Amount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[5].Month != "2026-12" || !got[5].Amount.Equal(decimal.NewFromInt(4800)) {
		t.Errorf("got[5] = %+v", got[5])
	}

	negative := SavingsProjection([]*domain.Transaction{expense("Rent", "10", "2026-06-01")}, nil, testNow)
	if !negative[0].Amount.IsZero() {
		t.Errorf("negative net should floor at zero, got %s", negative[0].Amount)
	}
}
