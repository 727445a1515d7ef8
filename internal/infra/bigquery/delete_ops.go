package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// PurgeUserWithClient removes every record owned by userID: transactions, the
// stored analysis snapshot and the metadata document.
func PurgeUserWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) error {
	// Transactions first so a partial failure never leaves a fresh-looking snapshot behind.
	if _, err := DeleteAllTransactionsWithClient(ctx, client, datasetID, userID); err != nil {
		return fmt.Errorf("deleting transactions: %w", err)
	}

	if err := deleteUserRows(ctx, client, datasetID, snapshotsTable, userID); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}

	if err := deleteUserRows(ctx, client, datasetID, metadataTable, userID); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}

	return nil
}

func deleteUserRows(ctx context.Context, client *bigquery.Client, datasetID, table, userID string) error {
	q := client.Query(`
		DELETE FROM ` + tableRef(client, datasetID, table) + `
		WHERE user_id = @user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	if _, err := runDML(ctx, q); err != nil {
		return err
	}
	return nil
}
