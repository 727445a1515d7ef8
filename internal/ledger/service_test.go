package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/analysis"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/export"
	"github.com/dvloznov/budget-insights/internal/gcs"
	"github.com/dvloznov/budget-insights/internal/infra/inmemory"
	"github.com/dvloznov/budget-insights/internal/jobs"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

// MockPublisher records published jobs.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.Job) error
	Published   []*jobs.Job
}

func (m *MockPublisher) Publish(ctx context.Context, job *jobs.Job) error {
	m.Published = append(m.Published, job)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, job)
	}
	return nil
}

func (m *MockPublisher) Close() error { return nil }

type analyzerFunc func(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error) {
	return f(ctx, req)
}

// failingMetadata rejects every marker write.
type failingMetadata struct {
	*inmemory.Store
}

func (f failingMetadata) SetLastTransactionTimestamp(ctx context.Context, userID string, ts time.Time) error {
	return errors.New("metadata write rejected")
}

func newTestService(store *inmemory.Store, pub jobs.Publisher, now *time.Time) *Service {
	return NewService(store, store, pub).WithClock(func() time.Time { return *now })
}

func marker(t *testing.T, store *inmemory.Store, userID string) *time.Time {
	t.Helper()
	md, err := store.GetMetadata(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	return md.LastTransactionTimestamp
}

func TestAddValidation(t *testing.T) {
	valid := Input{Amount: "12.50", Category: "Food & Dining", Date: "2024-06-01"}

	tests := []struct {
		name   string
		userID string
		mutate func(in *Input)
	}{
		{"missing user", "", func(in *Input) {}},
		{"missing amount", "u1", func(in *Input) { in.Amount = " " }},
		{"unparseable amount", "u1", func(in *Input) { in.Amount = "twelve" }},
		{"negative amount", "u1", func(in *Input) { in.Amount = "-1" }},
		{"missing date", "u1", func(in *Input) { in.Date = "" }},
		{"bad date", "u1", func(in *Input) { in.Date = "06/01/2024" }},
		{"missing category", "u1", func(in *Input) { in.Category = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := inmemory.NewStore()
			pub := &MockPublisher{}
			now := testNow
			svc := newTestService(store, pub, &now)

			in := valid
			tt.mutate(&in)
			_, err := svc.AddExpense(context.Background(), tt.userID, in)
			if !errors.Is(err, domain.ErrInvalidInput) || !domain.IsFatal(err) {
				t.Fatalf("expected fatal ErrInvalidInput, got %v", err)
			}

			rows, _ := store.ListTransactions(context.Background(), "u1", domain.KindExpense)
			if len(rows) != 0 {
				t.Errorf("rejected input was stored: %d rows", len(rows))
			}
			if marker(t, store, "u1") != nil {
				t.Error("marker stamped for rejected input")
			}
			if len(pub.Published) != 0 {
				t.Error("export rebuild scheduled for rejected input")
			}
		})
	}
}

func TestAddIncomeStoresAndSchedulesExport(t *testing.T) {
	store := inmemory.NewStore()
	pub := &MockPublisher{}
	now := testNow
	svc := newTestService(store, pub, &now)

	res, err := svc.AddIncome(context.Background(), "u1", Input{Amount: "3000", Category: "Salary", Date: "2024-06-01", Description: " June "})
	if err != nil {
		t.Fatalf("AddIncome() error = %v", err)
	}
	if res.Message != "Income added successfully" || res.Count != 1 {
		t.Errorf("result = %+v", res)
	}

	rows, _ := store.ListTransactions(context.Background(), "u1", domain.KindIncome)
	if len(rows) != 1 {
		t.Fatalf("stored %d income rows, want 1", len(rows))
	}
	got := rows[0]
	if got.ID == "" || got.UserID != "u1" || got.Description != "June" {
		t.Errorf("stored = %+v", got)
	}
	if !got.Amount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Amount = %s", got.Amount)
	}
	if got.Date != (civil.Date{Year: 2024, Month: time.June, Day: 1}) {
		t.Errorf("Date = %s", got.Date)
	}

	if m := marker(t, store, "u1"); m == nil || !m.Equal(testNow) {
		t.Errorf("marker = %v, want %v", m, testNow)
	}
	if len(pub.Published) != 1 || pub.Published[0].Type != jobs.JobTypeRebuildExport || pub.Published[0].UserID != "u1" {
		t.Errorf("published = %+v", pub.Published)
	}
}

func TestAddSucceedsWhenSideEffectsFail(t *testing.T) {
	store := inmemory.NewStore()
	pub := &MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.Job) error {
		return errors.New("queue is closed")
	}}
	svc := NewService(store, failingMetadata{store}, pub).WithClock(func() time.Time { return testNow })

	if _, err := svc.AddExpense(context.Background(), "u1", Input{Amount: "5", Category: "Food & Dining", Date: "2024-06-01"}); err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}
	rows, _ := store.ListTransactions(context.Background(), "u1", domain.KindExpense)
	if len(rows) != 1 {
		t.Errorf("stored %d rows, want 1", len(rows))
	}
}

func TestMarkerStrictlyIncreases(t *testing.T) {
	store := inmemory.NewStore()
	now := testNow
	svc := newTestService(store, nil, &now)
	ctx := context.Background()
	in := Input{Amount: "1", Category: "Food & Dining", Date: "2024-06-01"}

	var prev time.Time
	for i := 0; i < 5; i++ {
		// Clock frozen for the first three mutations, then moves backwards.
		if i == 3 {
			now = testNow.Add(-time.Hour)
		}
		if _, err := svc.AddExpense(ctx, "u1", in); err != nil {
			t.Fatalf("AddExpense() error = %v", err)
		}
		m := marker(t, store, "u1")
		if m == nil {
			t.Fatal("marker not stamped")
		}
		if i > 0 && !m.After(prev) {
			t.Fatalf("mutation %d: marker %v not after %v", i, m, prev)
		}
		prev = *m
	}
}

func TestDeleteOne(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	now := testNow
	svc := newTestService(store, nil, &now)

	res, err := svc.AddExpense(ctx, "u1", Input{Amount: "9.99", Category: "Shopping", Date: "2024-06-02"})
	if err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}
	before := *marker(t, store, "u1")

	now = testNow.Add(time.Minute)
	if _, err := svc.DeleteIncome(ctx, "u1", res.Transaction.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleting an expense id as income: got %v, want ErrNotFound", err)
	}
	if !marker(t, store, "u1").Equal(before) {
		t.Error("marker stamped for a delete that removed nothing")
	}

	out, err := svc.DeleteExpense(ctx, "u1", res.Transaction.ID)
	if err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d", out.Count)
	}
	if !marker(t, store, "u1").After(before) {
		t.Error("marker not advanced after delete")
	}

	if _, err := svc.DeleteExpense(ctx, "u1", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty id: got %v", err)
	}
}

// countingMetadata counts marker writes.
type countingMetadata struct {
	*inmemory.Store
	stamps int
}

func (c *countingMetadata) SetLastTransactionTimestamp(ctx context.Context, userID string, ts time.Time) error {
	c.stamps++
	return c.Store.SetLastTransactionTimestamp(ctx, userID, ts)
}

func TestBulkDeleteRemovesExactlySelected(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	day := civil.Date{Year: 2024, Month: time.June, Day: 1}

	var seed []*domain.Transaction
	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		seed = append(seed, &domain.Transaction{ID: id, UserID: "u1", Kind: domain.KindExpense, Amount: decimal.NewFromInt(10), Category: "Food & Dining", Date: day})
	}
	for _, id := range []string{"i1", "i2", "i3"} {
		seed = append(seed, &domain.Transaction{ID: id, UserID: "u1", Kind: domain.KindIncome, Amount: decimal.NewFromInt(100), Category: "Salary", Date: day})
	}
	seed = append(seed, &domain.Transaction{ID: "e1", UserID: "u2", Kind: domain.KindExpense, Amount: decimal.NewFromInt(1), Category: "Food & Dining", Date: day})
	if err := store.InsertTransactions(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	meta := &countingMetadata{Store: store}
	svc := NewService(store, meta, nil).WithClock(func() time.Time { return testNow })

	res, err := svc.BulkDelete(ctx, "u1", []string{"e1", "e2", "e3"}, []string{"i1", "i2"})
	if err != nil {
		t.Fatalf("BulkDelete() error = %v", err)
	}
	if res.Message != "Successfully deleted 5 transactions" || res.Count != 5 {
		t.Errorf("result = %+v", res)
	}
	if meta.stamps != 1 {
		t.Errorf("marker stamped %d times, want 1", meta.stamps)
	}

	expenses, _ := store.ListTransactions(ctx, "u1", domain.KindExpense)
	income, _ := store.ListTransactions(ctx, "u1", domain.KindIncome)
	if len(expenses) != 1 || expenses[0].ID != "e4" {
		t.Errorf("remaining expenses = %v", expenses)
	}
	if len(income) != 1 || income[0].ID != "i3" {
		t.Errorf("remaining income = %v", income)
	}
	other, _ := store.ListTransactions(ctx, "u2", domain.KindExpense)
	if len(other) != 1 {
		t.Error("another user's transaction was deleted")
	}
}

func TestBulkDeleteRequiresSelection(t *testing.T) {
	svc := NewService(inmemory.NewStore(), inmemory.NewStore(), nil)
	_, err := svc.BulkDelete(context.Background(), "u1", nil, []string{" "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	now := testNow
	svc := newTestService(store, nil, &now)
	for _, amt := range []string{"1", "2"} {
		if _, err := svc.AddExpense(ctx, "u1", Input{Amount: amt, Category: "Food & Dining", Date: "2024-06-01"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.AddIncome(ctx, "u1", Input{Amount: "10", Category: "Salary", Date: "2024-06-01"}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.DeleteAll(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if res.Count != 3 || res.Message != "Successfully deleted 3 transactions" {
		t.Errorf("result = %+v", res)
	}
	all, _ := svc.List(ctx, "u1")
	if len(all) != 0 {
		t.Errorf("%d transactions left", len(all))
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	meta := &countingMetadata{Store: store}
	pub := &MockPublisher{}
	svc := NewService(store, meta, pub).WithClock(func() time.Time { return testNow })

	day := civil.Date{Year: 2024, Month: time.May, Day: 3}
	res, err := svc.Import(ctx, "u1", []*domain.Transaction{
		{Kind: domain.KindExpense, Amount: decimal.RequireFromString("42.10"), Category: "Groceries", Date: day},
		{Kind: domain.KindIncome, Amount: decimal.NewFromInt(2500), Category: "Salary", Date: day, UserID: "someone-else"},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Count != 2 || meta.stamps != 1 || len(pub.Published) != 1 {
		t.Errorf("result = %+v, stamps = %d, published = %d", res, meta.stamps, len(pub.Published))
	}

	income, _ := store.ListTransactions(ctx, "u1", domain.KindIncome)
	if len(income) != 1 || income[0].ID == "" || !income[0].CreatedAt.Equal(testNow) {
		t.Errorf("imported income = %+v", income)
	}

	_, err = svc.Import(ctx, "u1", []*domain.Transaction{{Kind: "transfer", Category: "x", Date: day}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown kind: got %v", err)
	}
}

func TestListMergesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	now := testNow
	svc := newTestService(store, nil, &now)

	for _, in := range []struct {
		income bool
		date   string
	}{
		{false, "2024-06-01"},
		{true, "2024-06-10"},
		{false, "2024-05-20"},
	} {
		var err error
		if in.income {
			_, err = svc.AddIncome(ctx, "u1", Input{Amount: "1", Category: "Salary", Date: in.date})
		} else {
			_, err = svc.AddExpense(ctx, "u1", Input{Amount: "1", Category: "Food & Dining", Date: in.date})
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"2024-06-10", "2024-06-01", "2024-05-20"}
	for i, d := range want {
		if all[i].Date.String() != d {
			t.Errorf("row %d date = %s, want %s", i, all[i].Date, d)
		}
	}
}

// An add right after a cached analysis must invalidate it.
func TestAddExpenseInvalidatesCachedAnalysis(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	now := testNow

	oldMarker := testNow.Add(-time.Hour)
	if err := store.SetLastTransactionTimestamp(ctx, "u1", oldMarker); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot(ctx, &domain.AnalysisSnapshot{
		UserID:                   "u1",
		Insights:                 []string{"cached"},
		Recommendations:          []string{"cached"},
		Timestamp:                testNow.Add(-time.Minute),
		LastTransactionTimestamp: &oldMarker,
	}); err != nil {
		t.Fatal(err)
	}

	mutations := newTestService(store, nil, &now)
	if _, err := mutations.AddExpense(ctx, "u1", Input{Amount: "500", Category: "Food & Dining", Date: "2024-06-15"}); err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}

	analyzerCalls := 0
	analyzer := analyzerFunc(func(ctx context.Context, req analysis.Request) (*analysis.ServiceResult, error) {
		analyzerCalls++
		return &analysis.ServiceResult{Insights: []string{"fresh"}, Recommendations: []string{"fresh"}}, nil
	})
	exporter := export.NewBuilder(store, store, gcs.NewMemoryStorage(), "bucket").WithClock(func() time.Time { return now })
	svc := analysis.NewService(store, store, store, exporter, analyzer, analysis.DefaultTTL).
		WithClock(func() time.Time { return now })

	out, err := svc.Resolve(ctx, "u1", false)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.State != analysis.StateStaleByTransaction || analyzerCalls != 1 {
		t.Errorf("state = %s, analyzer calls = %d; cached snapshot must not be served", out.State, analyzerCalls)
	}
	if out.Snapshot.Insights[0] != "fresh" {
		t.Errorf("Insights = %v", out.Snapshot.Insights)
	}
	if len(out.Snapshot.CategoryBreakdown) == 0 || out.Snapshot.CategoryBreakdown[0].Category != "Food & Dining" {
		t.Errorf("CategoryBreakdown = %+v", out.Snapshot.CategoryBreakdown)
	}
}
