package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"google.golang.org/api/iterator"
)

const snapshotsTable = "analysis_snapshots"

// GetSnapshotWithClient returns the stored analysis snapshot for userID, or nil when none exists.
func GetSnapshotWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) (*domain.AnalysisSnapshot, error) {
	q := client.Query(`
		SELECT user_id, payload, snapshot_ts, last_transaction_ts
		FROM ` + tableRef(client, datasetID, snapshotsTable) + `
		WHERE user_id = @user_id
		ORDER BY snapshot_ts DESC
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetSnapshotWithClient: query read: %w", err)
	}

	var row bq.SnapshotRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSnapshotWithClient: iter next: %w", err)
	}

	snap, err := row.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("GetSnapshotWithClient: %w", err)
	}
	return snap, nil
}

// SaveSnapshotWithClient overwrites the user's single snapshot row.
func SaveSnapshotWithClient(ctx context.Context, client *bigquery.Client, datasetID string, snap *domain.AnalysisSnapshot) error {
	row, err := bq.NewSnapshotRow(snap)
	if err != nil {
		return fmt.Errorf("SaveSnapshotWithClient: %w", err)
	}

	q := client.Query(`
		MERGE ` + tableRef(client, datasetID, snapshotsTable) + ` T
		USING (SELECT @user_id AS user_id) S
		ON T.user_id = S.user_id
		WHEN MATCHED THEN
		  UPDATE SET payload = @payload, snapshot_ts = @snapshot_ts, last_transaction_ts = @last_transaction_ts
		WHEN NOT MATCHED THEN
		  INSERT (user_id, payload, snapshot_ts, last_transaction_ts)
		  VALUES (@user_id, @payload, @snapshot_ts, @last_transaction_ts)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: row.UserID},
		{Name: "payload", Value: row.Payload},
		{Name: "snapshot_ts", Value: row.SnapshotTS},
		{Name: "last_transaction_ts", Value: row.LastTransactionTS},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("SaveSnapshotWithClient: %w", err)
	}
	return nil
}
