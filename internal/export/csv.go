package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// Header is the fixed column layout of every export.
var Header = []string{"id", "type", "date", "amount", "category", "description"}

// Row is one line of the consolidated export.
type Row struct {
	ID          string
	Type        string
	Date        string
	Amount      string
	Category    string
	Description string
}

func (r Row) record() []string {
	return []string{r.ID, r.Type, r.Date, r.Amount, r.Category, r.Description}
}

// BuildRows merges expenses and income into export rows, newest date first.
// Rows sharing a date keep newest-created first. An empty history yields two
// sample rows dated today so the export is never header-only.
func BuildRows(expenses, income []*domain.Transaction, today civil.Date) []Row {
	all := make([]*domain.Transaction, 0, len(expenses)+len(income))
	all = append(all, expenses...)
	all = append(all, income...)

	if len(all) == 0 {
		return sampleRows(today)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[j].Date.Before(all[i].Date)
		}
		return all[j].CreatedAt.Before(all[i].CreatedAt)
	})

	rows := make([]Row, 0, len(all))
	for _, tx := range all {
		rows = append(rows, Row{
			ID:          tx.ID,
			Type:        string(tx.Kind),
			Date:        tx.Date.String(),
			Amount:      formatAmount(tx.Amount),
			Category:    tx.Category,
			Description: tx.Description,
		})
	}
	return rows
}

// formatAmount pads to two decimal places but never rounds away stored precision.
func formatAmount(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

func sampleRows(today civil.Date) []Row {
	return []Row{
		{ID: "sample-income", Type: string(domain.KindIncome), Date: today.String(), Amount: "3000.00", Category: "Salary", Description: "Sample income"},
		{ID: "sample-expense", Type: string(domain.KindExpense), Date: today.String(), Amount: "50.00", Category: "Food & Dining", Description: "Sample expense"},
	}
}

// EncodeCSV writes the header and rows. Fields containing quotes, commas or
// newlines are quoted with embedded quotes doubled.
func EncodeCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("EncodeCSV: header: %w", err)
	}
	for i, r := range rows {
		if err := w.Write(r.record()); err != nil {
			return nil, fmt.Errorf("EncodeCSV: row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("EncodeCSV: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseCSV decodes an export produced by EncodeCSV.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ParseCSV: header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("ParseCSV: column %d is %q, want %q", i, header[i], col)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseCSV: %w", err)
		}
		rows = append(rows, Row{
			ID:          rec[0],
			Type:        rec[1],
			Date:        rec[2],
			Amount:      rec[3],
			Category:    rec[4],
			Description: rec[5],
		})
	}
	return rows, nil
}

// Transaction converts a parsed row back into a transaction without an owner.
func (r Row) Transaction() (*domain.Transaction, error) {
	kind, err := domain.ParseKind(r.Type)
	if err != nil {
		return nil, err
	}
	date, err := civil.ParseDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", r.Date, err)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", r.Amount, err)
	}
	return &domain.Transaction{
		ID:          r.ID,
		Kind:        kind,
		Amount:      amount,
		Category:    r.Category,
		Description: r.Description,
		Date:        date,
	}, nil
}

func todayUTC(now time.Time) civil.Date {
	return civil.DateOf(now.UTC())
}
