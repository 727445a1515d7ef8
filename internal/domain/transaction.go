package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the two transaction collections.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// ParseKind accepts "expense" or "income" (case-sensitive, as written in exports).
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindExpense, KindIncome:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// Transaction is one expense or income record owned by a single user.
// Records are never updated in place; they are created by a mutation action
// and removed individually, in bulk, or all at once for a user.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Kind        Kind            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        civil.Date      `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// InMonth reports whether the transaction date falls in the given calendar month.
func (t *Transaction) InMonth(year int, month time.Month) bool {
	return t.Date.Year == year && t.Date.Month == month
}
