package pipeline

import (
	"context"

	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/ledger"
)

// StorageService is the subset of object storage the pipeline needs.
type StorageService interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
	ObjectURL(ctx context.Context, bucket, object string) (string, error)
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
	ExtractFilenameFromGCSURI(uri string) string
}

// Processor extracts transactions from a statement file.
// This interface enables mocking and testing of extraction.
type Processor interface {
	Process(ctx context.Context, file StatementFile) ([]ExtractedTransaction, error)
}

// Importer records extracted transactions for a user.
type Importer interface {
	Import(ctx context.Context, userID string, txs []*domain.Transaction) (*ledger.MutationResult, error)
}

var _ Importer = (*ledger.Service)(nil)
