package pipeline

import (
	"github.com/shopspring/decimal"
)

// ExtractedTransaction is one row returned by a statement processor.
// Processors may send signed amounts and bank terms for the type; the
// transform step normalizes both.
type ExtractedTransaction struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// StatementFile is an uploaded statement handed to a processor.
type StatementFile struct {
	UserID      string
	Filename    string
	ContentType string
	Data        []byte
	// URL is a download location for the stored copy, when one is available.
	URL string
}

// Result summarizes one processed statement.
type Result struct {
	Imported int
	Skipped  int
}
