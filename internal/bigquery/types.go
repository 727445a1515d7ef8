package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRepository provides access to the expenses and income collections.
type TransactionRepository interface {
	// InsertTransactions inserts a batch of transactions. Each row is routed by its Kind.
	InsertTransactions(ctx context.Context, txs []*domain.Transaction) error

	// ListTransactions returns every transaction of the given kind for the user.
	ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]*domain.Transaction, error)

	// ListTransactionsInRange returns transactions of the given kind with start <= date <= end.
	ListTransactionsInRange(ctx context.Context, userID string, kind domain.Kind, start, end civil.Date) ([]*domain.Transaction, error)

	// DeleteTransactions deletes the listed IDs owned by the user and returns how many were removed.
	DeleteTransactions(ctx context.Context, userID string, kind domain.Kind, ids []string) (int64, error)

	// DeleteAllTransactions deletes every expense and income record of the user.
	DeleteAllTransactions(ctx context.Context, userID string) (int64, error)
}

// MetadataRepository stores the per-user metadata document.
type MetadataRepository interface {
	// GetMetadata returns the user's metadata. A user without a document gets an empty one.
	GetMetadata(ctx context.Context, userID string) (*domain.UserMetadata, error)

	// SetLastTransactionTimestamp stamps the transaction-version marker.
	SetLastTransactionTimestamp(ctx context.Context, userID string, ts time.Time) error

	// SetExport records the latest export URL and when it was built.
	SetExport(ctx context.Context, userID, url string, builtAt time.Time) error

	// SetLastAnalyzed records when an analysis was last computed.
	SetLastAnalyzed(ctx context.Context, userID string, ts time.Time) error
}

// SnapshotRepository stores one analysis snapshot per user.
type SnapshotRepository interface {
	// GetSnapshot returns the stored snapshot, or nil when none exists.
	GetSnapshot(ctx context.Context, userID string) (*domain.AnalysisSnapshot, error)

	// SaveSnapshot overwrites the user's snapshot.
	SaveSnapshot(ctx context.Context, snap *domain.AnalysisSnapshot) error
}

// TransactionRow represents an expense or income record in BigQuery.
// Both tables share this schema.
type TransactionRow struct {
	ID          string              `bigquery:"id"`          // REQUIRED
	UserID      string              `bigquery:"user_id"`     // REQUIRED
	Amount      *big.Rat            `bigquery:"amount"`      // REQUIRED NUMERIC
	Category    string              `bigquery:"category"`    // REQUIRED
	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	Date        civil.Date          `bigquery:"date"`        // REQUIRED DATE
	CreatedTS   time.Time           `bigquery:"created_ts"`  // REQUIRED
}

// UserMetadataRow represents a row of finance.user_metadata.
type UserMetadataRow struct {
	UserID            string                 `bigquery:"user_id"`
	LastTransactionTS bigquery.NullTimestamp `bigquery:"last_transaction_ts"`
	ExportURL         bigquery.NullString    `bigquery:"export_url"`
	ExportBuiltTS     bigquery.NullTimestamp `bigquery:"export_built_ts"`
	LastAnalyzedTS    bigquery.NullTimestamp `bigquery:"last_analyzed_ts"`
}

// SnapshotRow represents a row of finance.analysis_snapshots.
// The snapshot body is kept as a JSON string so new fields need no schema change.
type SnapshotRow struct {
	UserID            string                 `bigquery:"user_id"`
	Payload           string                 `bigquery:"payload"`
	SnapshotTS        time.Time              `bigquery:"snapshot_ts"`
	LastTransactionTS bigquery.NullTimestamp `bigquery:"last_transaction_ts"`
}

// TableFor returns the table holding transactions of the given kind.
func TableFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindExpense:
		return "expenses", nil
	case domain.KindIncome:
		return "income", nil
	default:
		return "", fmt.Errorf("TableFor: unknown kind %q", kind)
	}
}

// NewTransactionRow maps a domain transaction into its BigQuery row.
func NewTransactionRow(tx *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Amount:      tx.Amount.Rat(),
		Category:    tx.Category,
		Description: bigquery.NullString{StringVal: tx.Description, Valid: tx.Description != ""},
		Date:        tx.Date,
		CreatedTS:   tx.CreatedAt,
	}
}

// ToDomain maps the row back to a domain transaction of the given kind.
func (r *TransactionRow) ToDomain(kind domain.Kind) (*domain.Transaction, error) {
	amount := decimal.Zero
	if r.Amount != nil {
		// NUMERIC has a scale of 9.
		d, err := decimal.NewFromString(r.Amount.FloatString(9))
		if err != nil {
			return nil, fmt.Errorf("TransactionRow.ToDomain: amount: %w", err)
		}
		amount = d
	}

	tx := &domain.Transaction{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      kind,
		Amount:    amount,
		Category:  r.Category,
		Date:      r.Date,
		CreatedAt: r.CreatedTS,
	}
	if r.Description.Valid {
		tx.Description = r.Description.StringVal
	}
	return tx, nil
}

// ToDomain maps the metadata row to the domain document.
func (r *UserMetadataRow) ToDomain() *domain.UserMetadata {
	md := &domain.UserMetadata{UserID: r.UserID}
	md.LastTransactionTimestamp = nullTimePtr(r.LastTransactionTS)
	md.ExportBuiltAt = nullTimePtr(r.ExportBuiltTS)
	md.LastAnalyzed = nullTimePtr(r.LastAnalyzedTS)
	if r.ExportURL.Valid {
		md.ExportURL = r.ExportURL.StringVal
	}
	return md
}

// NewSnapshotRow serializes a snapshot for storage.
func NewSnapshotRow(snap *domain.AnalysisSnapshot) (*SnapshotRow, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("NewSnapshotRow: marshal: %w", err)
	}
	row := &SnapshotRow{
		UserID:     snap.UserID,
		Payload:    string(payload),
		SnapshotTS: snap.Timestamp,
	}
	if snap.LastTransactionTimestamp != nil {
		row.LastTransactionTS = bigquery.NullTimestamp{Timestamp: *snap.LastTransactionTimestamp, Valid: true}
	}
	return row, nil
}

// ToDomain decodes the stored snapshot. The typed columns win over the payload copies.
func (r *SnapshotRow) ToDomain() (*domain.AnalysisSnapshot, error) {
	var snap domain.AnalysisSnapshot
	if err := json.Unmarshal([]byte(r.Payload), &snap); err != nil {
		return nil, fmt.Errorf("SnapshotRow.ToDomain: unmarshal: %w", err)
	}
	snap.UserID = r.UserID
	snap.Timestamp = r.SnapshotTS
	snap.LastTransactionTimestamp = nullTimePtr(r.LastTransactionTS)
	return &snap, nil
}

func nullTimePtr(ts bigquery.NullTimestamp) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Timestamp.UTC()
	return &t
}
