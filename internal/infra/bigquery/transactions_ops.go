package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"google.golang.org/api/iterator"
)

const transactionColumns = `id, user_id, amount, category, description, date, created_ts`

// tableRef returns the fully qualified, backtick-quoted table name.
func tableRef(client *bigquery.Client, datasetID, table string) string {
	return "`" + client.Project() + "." + datasetID + "." + table + "`"
}

// InsertTransactionsWithClient inserts a batch of transactions, grouped per table,
// using DML so that the rows are immediately visible to DELETE statements.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	byKind := map[domain.Kind][]*domain.Transaction{}
	for _, tx := range txs {
		byKind[tx.Kind] = append(byKind[tx.Kind], tx)
	}

	for kind, group := range byKind {
		table, err := bq.TableFor(kind)
		if err != nil {
			return fmt.Errorf("InsertTransactionsWithClient: %w", err)
		}

		var values []string
		var params []bigquery.QueryParameter
		for i, tx := range group {
			row := bq.NewTransactionRow(tx)
			values = append(values, fmt.Sprintf("(@id_%[1]d, @user_id_%[1]d, @amount_%[1]d, @category_%[1]d, @description_%[1]d, @date_%[1]d, @created_ts_%[1]d)", i))
			params = append(params,
				bigquery.QueryParameter{Name: fmt.Sprintf("id_%d", i), Value: row.ID},
				bigquery.QueryParameter{Name: fmt.Sprintf("user_id_%d", i), Value: row.UserID},
				bigquery.QueryParameter{Name: fmt.Sprintf("amount_%d", i), Value: row.Amount},
				bigquery.QueryParameter{Name: fmt.Sprintf("category_%d", i), Value: row.Category},
				bigquery.QueryParameter{Name: fmt.Sprintf("description_%d", i), Value: row.Description},
				bigquery.QueryParameter{Name: fmt.Sprintf("date_%d", i), Value: row.Date},
				bigquery.QueryParameter{Name: fmt.Sprintf("created_ts_%d", i), Value: row.CreatedTS},
			)
		}

		q := client.Query(`
			INSERT INTO ` + tableRef(client, datasetID, table) + ` (` + transactionColumns + `)
			VALUES ` + strings.Join(values, ",\n"))
		q.Parameters = params

		if _, err := runDML(ctx, q); err != nil {
			return fmt.Errorf("InsertTransactionsWithClient: %s: %w", table, err)
		}
	}

	return nil
}

// ListTransactionsWithClient returns every transaction of the given kind owned by userID.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, kind domain.Kind) ([]*domain.Transaction, error) {
	table, err := bq.TableFor(kind)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsWithClient: %w", err)
	}

	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + tableRef(client, datasetID, table) + `
		WHERE user_id = @user_id
		ORDER BY date DESC, created_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	txs, err := readTransactions(ctx, q, kind)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsWithClient: %w", err)
	}
	return txs, nil
}

// ListTransactionsInRangeWithClient returns transactions of the given kind dated within [start, end].
func ListTransactionsInRangeWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, kind domain.Kind, start, end civil.Date) ([]*domain.Transaction, error) {
	table, err := bq.TableFor(kind)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsInRangeWithClient: %w", err)
	}

	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + tableRef(client, datasetID, table) + `
		WHERE user_id = @user_id
		  AND date >= @start_date
		  AND date <= @end_date
		ORDER BY date, created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}

	txs, err := readTransactions(ctx, q, kind)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsInRangeWithClient: %w", err)
	}
	return txs, nil
}

// DeleteTransactionsWithClient deletes the listed IDs owned by userID and returns the affected row count.
// IDs belonging to other users are silently ignored.
func DeleteTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, kind domain.Kind, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	table, err := bq.TableFor(kind)
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactionsWithClient: %w", err)
	}

	q := client.Query(`
		DELETE FROM ` + tableRef(client, datasetID, table) + `
		WHERE user_id = @user_id
		  AND id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "ids", Value: ids},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactionsWithClient: %w", err)
	}
	return n, nil
}

// DeleteAllTransactionsWithClient deletes every expense and income row owned by userID.
func DeleteAllTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) (int64, error) {
	var total int64
	for _, kind := range []domain.Kind{domain.KindExpense, domain.KindIncome} {
		table, _ := bq.TableFor(kind)

		q := client.Query(`
			DELETE FROM ` + tableRef(client, datasetID, table) + `
			WHERE user_id = @user_id
		`)
		q.Parameters = []bigquery.QueryParameter{
			{Name: "user_id", Value: userID},
		}

		n, err := runDML(ctx, q)
		if err != nil {
			return total, fmt.Errorf("DeleteAllTransactionsWithClient: %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func readTransactions(ctx context.Context, q *bigquery.Query, kind domain.Kind) ([]*domain.Transaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var txs []*domain.Transaction
	for {
		var row bq.TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		tx, err := row.ToDomain(kind)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// runDML runs a DML statement, waits for it and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}
