package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/jobs"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/dvloznov/budget-insights/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Input is a transaction as submitted by a user, before validation.
type Input struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
}

// MutationResult is returned by every successful mutation.
type MutationResult struct {
	Message     string              `json:"message"`
	Count       int64               `json:"count"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// Service applies transaction mutations and stamps the per-user
// transaction-version marker after each successful write.
type Service struct {
	txs       bq.TransactionRepository
	meta      bq.MetadataRepository
	publisher jobs.Publisher
	now       func() time.Time
}

// NewService creates a Service. publisher may be nil, in which case adds do
// not schedule an export rebuild.
func NewService(txs bq.TransactionRepository, meta bq.MetadataRepository, publisher jobs.Publisher) *Service {
	return &Service{
		txs:       txs,
		meta:      meta,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddExpense validates and records an expense.
func (s *Service) AddExpense(ctx context.Context, userID string, in Input) (*MutationResult, error) {
	return s.add(ctx, "ledger.AddExpense", userID, domain.KindExpense, in)
}

// AddIncome validates and records an income entry.
func (s *Service) AddIncome(ctx context.Context, userID string, in Input) (*MutationResult, error) {
	return s.add(ctx, "ledger.AddIncome", userID, domain.KindIncome, in)
}

func (s *Service) add(ctx context.Context, op, userID string, kind domain.Kind, in Input) (*MutationResult, error) {
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	tx, err := s.newTransaction(op, userID, kind, in)
	if err != nil {
		return nil, err
	}

	if err := s.txs.InsertTransactions(ctx, []*domain.Transaction{tx}); err != nil {
		return nil, fmt.Errorf("%s: inserting transaction: %w", op, err)
	}
	metrics.Mutations.WithLabelValues("add_" + string(kind)).Inc()

	s.stamp(ctx, userID)
	s.scheduleExport(ctx, userID)

	label := "Expense"
	if kind == domain.KindIncome {
		label = "Income"
	}
	return &MutationResult{
		Message:     label + " added successfully",
		Count:       1,
		Transaction: tx,
	}, nil
}

// DeleteExpense removes one expense owned by the user.
func (s *Service) DeleteExpense(ctx context.Context, userID, id string) (*MutationResult, error) {
	return s.deleteOne(ctx, "ledger.DeleteExpense", userID, domain.KindExpense, id)
}

// DeleteIncome removes one income entry owned by the user.
func (s *Service) DeleteIncome(ctx context.Context, userID, id string) (*MutationResult, error) {
	return s.deleteOne(ctx, "ledger.DeleteIncome", userID, domain.KindIncome, id)
}

func (s *Service) deleteOne(ctx context.Context, op, userID string, kind domain.Kind, id string) (*MutationResult, error) {
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid(op, "transaction id is required")
	}

	n, err := s.txs.DeleteTransactions(ctx, userID, kind, []string{id})
	if err != nil {
		return nil, fmt.Errorf("%s: deleting %s: %w", op, id, err)
	}
	if n == 0 {
		return nil, domain.Fatal(op, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound))
	}
	metrics.Mutations.WithLabelValues("delete_" + string(kind)).Inc()

	s.stamp(ctx, userID)
	return &MutationResult{Message: "Transaction deleted successfully", Count: n}, nil
}

// BulkDelete removes the listed expenses and income entries and stamps the
// marker once for the whole batch.
func (s *Service) BulkDelete(ctx context.Context, userID string, expenseIDs, incomeIDs []string) (*MutationResult, error) {
	const op = "ledger.BulkDelete"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	expenseIDs, incomeIDs = compact(expenseIDs), compact(incomeIDs)
	if len(expenseIDs) == 0 && len(incomeIDs) == 0 {
		return nil, domain.Invalid(op, "no transactions selected")
	}

	var total int64
	for _, batch := range []struct {
		kind domain.Kind
		ids  []string
	}{
		{domain.KindExpense, expenseIDs},
		{domain.KindIncome, incomeIDs},
	} {
		if len(batch.ids) == 0 {
			continue
		}
		n, err := s.txs.DeleteTransactions(ctx, userID, batch.kind, batch.ids)
		if err != nil {
			if total > 0 {
				s.stamp(ctx, userID)
			}
			return nil, fmt.Errorf("%s: deleting %s rows: %w", op, batch.kind, err)
		}
		total += n
	}
	metrics.Mutations.WithLabelValues("bulk_delete").Inc()

	s.stamp(ctx, userID)
	return &MutationResult{
		Message: fmt.Sprintf("Successfully deleted %d transactions", total),
		Count:   total,
	}, nil
}

// DeleteAll removes every transaction the user owns.
func (s *Service) DeleteAll(ctx context.Context, userID string) (*MutationResult, error) {
	const op = "ledger.DeleteAll"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}

	n, err := s.txs.DeleteAllTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Mutations.WithLabelValues("delete_all").Inc()

	s.stamp(ctx, userID)
	return &MutationResult{
		Message: fmt.Sprintf("Successfully deleted %d transactions", n),
		Count:   n,
	}, nil
}

// Import bulk-inserts already-structured transactions (from a processed
// statement or a CSV export) and stamps the marker once.
func (s *Service) Import(ctx context.Context, userID string, txs []*domain.Transaction) (*MutationResult, error) {
	const op = "ledger.Import"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	if len(txs) == 0 {
		return &MutationResult{Message: "No transactions to import"}, nil
	}

	now := s.now().UTC()
	batch := make([]*domain.Transaction, 0, len(txs))
	for i, t := range txs {
		if t.Kind != domain.KindExpense && t.Kind != domain.KindIncome {
			return nil, domain.Invalid(op, fmt.Sprintf("row %d: unknown type %q", i+1, t.Kind))
		}
		if t.Amount.IsNegative() {
			return nil, domain.Invalid(op, fmt.Sprintf("row %d: amount must not be negative", i+1))
		}
		if strings.TrimSpace(t.Category) == "" {
			return nil, domain.Invalid(op, fmt.Sprintf("row %d: category is required", i+1))
		}
		if !t.Date.IsValid() {
			return nil, domain.Invalid(op, fmt.Sprintf("row %d: date is required", i+1))
		}

		tx := *t
		tx.UserID = userID
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		batch = append(batch, &tx)
	}

	if err := s.txs.InsertTransactions(ctx, batch); err != nil {
		return nil, fmt.Errorf("%s: inserting %d transactions: %w", op, len(batch), err)
	}
	metrics.Mutations.WithLabelValues("import").Inc()

	s.stamp(ctx, userID)
	s.scheduleExport(ctx, userID)

	return &MutationResult{
		Message: fmt.Sprintf("Successfully imported %d transactions", len(batch)),
		Count:   int64(len(batch)),
	}, nil
}

// List returns both kinds merged, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	const op = "ledger.List"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}

	expenses, err := s.txs.ListTransactions(ctx, userID, domain.KindExpense)
	if err != nil {
		return nil, fmt.Errorf("%s: listing expenses: %w", op, err)
	}
	income, err := s.txs.ListTransactions(ctx, userID, domain.KindIncome)
	if err != nil {
		return nil, fmt.Errorf("%s: listing income: %w", op, err)
	}

	all := append(expenses, income...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func (s *Service) newTransaction(op, userID string, kind domain.Kind, in Input) (*domain.Transaction, error) {
	amountStr := strings.TrimSpace(in.Amount)
	if amountStr == "" {
		return nil, domain.Invalid(op, "amount is required")
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, domain.Invalid(op, "amount must be a number")
	}
	if amount.IsNegative() {
		return nil, domain.Invalid(op, "amount must not be negative")
	}

	dateStr := strings.TrimSpace(in.Date)
	if dateStr == "" {
		return nil, domain.Invalid(op, "date is required")
	}
	date, err := civil.ParseDate(dateStr)
	if err != nil {
		return nil, domain.Invalid(op, "date must be in YYYY-MM-DD format")
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, domain.Invalid(op, "category is required")
	}

	return &domain.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Category:    category,
		Description: strings.TrimSpace(in.Description),
		Date:        date,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// stamp advances the transaction-version marker. Failures are logged only.
func (s *Service) stamp(ctx context.Context, userID string) {
	log := logger.WithUser(ctx, userID)

	var prev *time.Time
	md, err := s.meta.GetMetadata(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("reading previous transaction marker failed")
	} else {
		prev = md.LastTransactionTimestamp
	}

	marker := domain.NextMarker(prev, s.now())
	if err := s.meta.SetLastTransactionTimestamp(ctx, userID, marker); err != nil {
		log.Error().Err(err).Msg("failed to stamp transaction marker")
		return
	}
	log.Debug().Time("marker", marker).Msg("transaction marker stamped")
}

func (s *Service) scheduleExport(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}
	job := &jobs.Job{Type: jobs.JobTypeRebuildExport, UserID: userID}
	if err := s.publisher.Publish(ctx, job); err != nil {
		log := logger.WithUser(ctx, userID)
		log.Warn().Err(err).Msg("failed to schedule export rebuild")
	}
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
