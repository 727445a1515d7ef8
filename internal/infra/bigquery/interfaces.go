package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
)

// Re-export interfaces from the shared package.
type TransactionRepository = bq.TransactionRepository
type MetadataRepository = bq.MetadataRepository
type SnapshotRepository = bq.SnapshotRepository

// Repository implements the transaction, metadata and snapshot repositories on
// BigQuery. It holds a shared client to avoid a new connection per operation.
type Repository struct {
	client    *bigquery.Client
	datasetID string
}

var (
	_ TransactionRepository = (*Repository)(nil)
	_ MetadataRepository    = (*Repository)(nil)
	_ SnapshotRepository    = (*Repository)(nil)
)

// NewRepository creates a Repository backed by a new BigQuery client for projectID.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{client: client, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	return InsertTransactionsWithClient(ctx, r.client, r.datasetID, txs)
}

func (r *Repository) ListTransactions(ctx context.Context, userID string, kind domain.Kind) ([]*domain.Transaction, error) {
	return ListTransactionsWithClient(ctx, r.client, r.datasetID, userID, kind)
}

func (r *Repository) ListTransactionsInRange(ctx context.Context, userID string, kind domain.Kind, start, end civil.Date) ([]*domain.Transaction, error) {
	return ListTransactionsInRangeWithClient(ctx, r.client, r.datasetID, userID, kind, start, end)
}

func (r *Repository) DeleteTransactions(ctx context.Context, userID string, kind domain.Kind, ids []string) (int64, error) {
	return DeleteTransactionsWithClient(ctx, r.client, r.datasetID, userID, kind, ids)
}

func (r *Repository) DeleteAllTransactions(ctx context.Context, userID string) (int64, error) {
	return DeleteAllTransactionsWithClient(ctx, r.client, r.datasetID, userID)
}

func (r *Repository) GetMetadata(ctx context.Context, userID string) (*domain.UserMetadata, error) {
	return GetMetadataWithClient(ctx, r.client, r.datasetID, userID)
}

func (r *Repository) SetLastTransactionTimestamp(ctx context.Context, userID string, ts time.Time) error {
	return SetLastTransactionTimestampWithClient(ctx, r.client, r.datasetID, userID, ts)
}

func (r *Repository) SetExport(ctx context.Context, userID, url string, builtAt time.Time) error {
	return SetExportWithClient(ctx, r.client, r.datasetID, userID, url, builtAt)
}

func (r *Repository) SetLastAnalyzed(ctx context.Context, userID string, ts time.Time) error {
	return SetLastAnalyzedWithClient(ctx, r.client, r.datasetID, userID, ts)
}

func (r *Repository) GetSnapshot(ctx context.Context, userID string) (*domain.AnalysisSnapshot, error) {
	return GetSnapshotWithClient(ctx, r.client, r.datasetID, userID)
}

func (r *Repository) SaveSnapshot(ctx context.Context, snap *domain.AnalysisSnapshot) error {
	return SaveSnapshotWithClient(ctx, r.client, r.datasetID, snap)
}

// PurgeUser removes all of the user's data.
func (r *Repository) PurgeUser(ctx context.Context, userID string) error {
	return PurgeUserWithClient(ctx, r.client, r.datasetID, userID)
}
