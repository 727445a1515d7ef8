package bigquery

import (
	"testing"
	"time"

	bigquerylib "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/shopspring/decimal"
)

func TestTransactionRowConversion(t *testing.T) {
	created := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		ID:          "tx-1",
		UserID:      "u1",
		Kind:        domain.KindExpense,
		Amount:      decimal.RequireFromString("123.45"),
		Category:    "Food & Dining",
		Description: `Lunch at "Joe's"`,
		Date:        civil.Date{Year: 2026, Month: time.February, Day: 3},
		CreatedAt:   created,
	}

	row := NewTransactionRow(tx)
	if !row.Description.Valid {
		t.Fatal("expected description to be set")
	}

	back, err := row.ToDomain(domain.KindExpense)
	if err != nil {
		t.Fatalf("ToDomain() error = %v", err)
	}
	if !back.Amount.Equal(tx.Amount) {
		t.Errorf("Amount = %s, want %s", back.Amount, tx.Amount)
	}
	if back.Description != tx.Description || back.Category != tx.Category || back.Date != tx.Date {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestTransactionRowEmptyDescriptionIsNull(t *testing.T) {
	row := NewTransactionRow(&domain.Transaction{ID: "x", Amount: decimal.NewFromInt(1)})
	if row.Description.Valid {
		t.Error("empty description should map to NULL")
	}
}

func TestTableFor(t *testing.T) {
	tests := []struct {
		kind    domain.Kind
		want    string
		wantErr bool
	}{
		{domain.KindExpense, "expenses", false},
		{domain.KindIncome, "income", false},
		{domain.Kind("transfer"), "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := TableFor(tt.kind)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("TableFor(%q) = %q, %v", tt.kind, got, err)
			}
		})
	}
}

func TestSnapshotRowUsesTypedColumns(t *testing.T) {
	marker := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	snap := &domain.AnalysisSnapshot{
		UserID:                   "u1",
		Insights:                 []string{"a"},
		Recommendations:          []string{"b"},
		Timestamp:                time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		LastTransactionTimestamp: &marker,
	}

	row, err := NewSnapshotRow(snap)
	if err != nil {
		t.Fatalf("NewSnapshotRow() error = %v", err)
	}

	// Simulate a column update that the payload does not know about.
	later := marker.Add(time.Minute)
	row.LastTransactionTS = bigquerylib.NullTimestamp{Timestamp: later, Valid: true}

	back, err := row.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain() error = %v", err)
	}
	if back.LastTransactionTimestamp == nil || !back.LastTransactionTimestamp.Equal(later) {
		t.Errorf("LastTransactionTimestamp = %v, want %v", back.LastTransactionTimestamp, later)
	}
	if len(back.Insights) != 1 || back.Insights[0] != "a" {
		t.Errorf("Insights = %v", back.Insights)
	}
}
