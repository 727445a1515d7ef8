package pipeline

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/domain"
)

// transformExtracted converts processor rows into domain transactions.
// Rows that cannot be interpreted are returned as errors alongside the
// good rows so one bad line does not sink a whole statement.
func transformExtracted(rows []ExtractedTransaction, categories *CategoryNormalizer) ([]*domain.Transaction, []error) {
	result := make([]*domain.Transaction, 0, len(rows))
	var rowErrs []error

	for i, row := range rows {
		tx, err := transformRow(row, categories)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("transaction %d: %w", i, err))
			continue
		}
		result = append(result, tx)
	}

	return result, rowErrs
}

func transformRow(row ExtractedTransaction, categories *CategoryNormalizer) (*domain.Transaction, error) {
	date, err := parseStatementDate(row.Date)
	if err != nil {
		return nil, err
	}

	kind, err := parseStatementKind(row.Type, row.Amount.IsNegative())
	if err != nil {
		return nil, err
	}

	return &domain.Transaction{
		Kind:        kind,
		Amount:      row.Amount.Abs(),
		Category:    categories.Normalize(row.Category),
		Description: strings.TrimSpace(row.Description),
		Date:        date,
	}, nil
}

// parseStatementKind accepts our own type names and common bank terms.
// With no type, the amount sign decides: negative is money out.
func parseStatementKind(s string, negative bool) (domain.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "debit", "withdrawal", "payment", "out":
		return domain.KindExpense, nil
	case "income", "credit", "deposit", "in":
		return domain.KindIncome, nil
	case "":
		if negative {
			return domain.KindExpense, nil
		}
		return domain.KindIncome, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

func parseStatementDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, fmt.Errorf("missing required field %q", "date")
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(t), nil
	}
	return civil.Date{}, fmt.Errorf("invalid date %q", s)
}
