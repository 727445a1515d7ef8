package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"google.golang.org/api/iterator"
)

const metadataTable = "user_metadata"

// GetMetadataWithClient reads the metadata document for userID.
// A user with no row yet gets an empty document.
func GetMetadataWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) (*domain.UserMetadata, error) {
	q := client.Query(`
		SELECT user_id, last_transaction_ts, export_url, export_built_ts, last_analyzed_ts
		FROM ` + tableRef(client, datasetID, metadataTable) + `
		WHERE user_id = @user_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetMetadataWithClient: query read: %w", err)
	}

	var row bq.UserMetadataRow
	err = it.Next(&row)
	if err == iterator.Done {
		return &domain.UserMetadata{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetMetadataWithClient: iter next: %w", err)
	}

	return row.ToDomain(), nil
}

// SetLastTransactionTimestampWithClient stamps the transaction-version marker for userID.
func SetLastTransactionTimestampWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, ts time.Time) error {
	err := mergeMetadata(ctx, client, datasetID, userID, map[string]interface{}{
		"last_transaction_ts": ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("SetLastTransactionTimestampWithClient: %w", err)
	}
	return nil
}

// SetExportWithClient records the export URL and build time for userID.
func SetExportWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID, url string, builtAt time.Time) error {
	err := mergeMetadata(ctx, client, datasetID, userID, map[string]interface{}{
		"export_url":      url,
		"export_built_ts": builtAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("SetExportWithClient: %w", err)
	}
	return nil
}

// SetLastAnalyzedWithClient records when userID was last analyzed.
func SetLastAnalyzedWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, ts time.Time) error {
	err := mergeMetadata(ctx, client, datasetID, userID, map[string]interface{}{
		"last_analyzed_ts": ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("SetLastAnalyzedWithClient: %w", err)
	}
	return nil
}

// mergeMetadata upserts the given columns on the user's metadata row, leaving the rest untouched.
// Column names come from this package only.
func mergeMetadata(ctx context.Context, client *bigquery.Client, datasetID, userID string, columns map[string]interface{}) error {
	params := []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	var sets, names, values []string
	for col, v := range columns {
		sets = append(sets, fmt.Sprintf("%s = @%s", col, col))
		names = append(names, col)
		values = append(values, "@"+col)
		params = append(params, bigquery.QueryParameter{Name: col, Value: v})
	}

	q := client.Query(`
		MERGE ` + tableRef(client, datasetID, metadataTable) + ` T
		USING (SELECT @user_id AS user_id) S
		ON T.user_id = S.user_id
		WHEN MATCHED THEN
		  UPDATE SET ` + strings.Join(sets, ", ") + `
		WHEN NOT MATCHED THEN
		  INSERT (user_id, ` + strings.Join(names, ", ") + `)
		  VALUES (@user_id, ` + strings.Join(values, ", ") + `)
	`)
	q.Parameters = params

	if _, err := runDML(ctx, q); err != nil {
		return err
	}
	return nil
}
