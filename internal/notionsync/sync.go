package notionsync

import (
	"context"
	"fmt"

	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// SyncStats reports what a sync did (or would do, on a dry run).
type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Syncer mirrors a user's transactions into a Notion database.
type Syncer struct {
	txs        bq.TransactionRepository
	notion     NotionService
	databaseID string
}

// NewSyncer creates a Syncer writing into databaseID.
func NewSyncer(txs bq.TransactionRepository, notion NotionService, databaseID string) *Syncer {
	return &Syncer{txs: txs, notion: notion, databaseID: databaseID}
}

// SyncUser makes the Notion database hold exactly the user's current transactions.
// It:
// 1. Loads the user's expenses and income
// 2. Archives the user's pages whose transaction no longer exists
// 3. Rewrites pages whose mirrored fields were edited in Notion
// 4. Creates pages for transactions not yet mirrored
// Pages are matched by Transaction ID, so repeated runs are idempotent.
// Individual page failures are logged and counted, not returned.
func (s *Syncer) SyncUser(ctx context.Context, userID string, dryRun bool) (*SyncStats, error) {
	const op = "notionsync.SyncUser"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	log := logger.WithUser(ctx, userID)

	log.Info().
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	var transactions []*domain.Transaction
	for _, kind := range []domain.Kind{domain.KindExpense, domain.KindIncome} {
		rows, err := s.txs.ListTransactions(ctx, userID, kind)
		if err != nil {
			return nil, fmt.Errorf("%s: listing %s: %w", op, kind, err)
		}
		transactions = append(transactions, rows...)
	}

	validTransactionIDs := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		validTransactionIDs[tx.ID] = true
	}

	notionPages, err := queryAllNotionPages(ctx, s.notion, s.databaseID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &SyncStats{}
	mirrored := make(map[string]notionapi.Page)

	for _, page := range notionPages {
		if extractUserID(page) != userID {
			continue
		}
		txID := extractTransactionID(page)
		if _, seen := mirrored[txID]; txID != "" && validTransactionIDs[txID] && !seen {
			mirrored[txID] = page
			continue
		}

		// Stale, duplicate or unlabeled page.
		if dryRun {
			log.Info().
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would delete stale Notion page")
			stats.Deleted++
			continue
		}
		if err := s.notion.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("Failed to delete stale Notion page")
			stats.Failed++
			continue
		}
		stats.Deleted++
	}

	for i := 0; i < len(transactions); i += BatchSize {
		end := i + BatchSize
		if end > len(transactions) {
			end = len(transactions)
		}

		batch := transactions[i:end]
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, tx := range batch {
			if page, ok := mirrored[tx.ID]; ok {
				s.refreshPage(ctx, page, tx, dryRun, stats)
				continue
			}

			if dryRun {
				log.Info().
					Str("transaction_id", tx.ID).
					Msg("[DRY RUN] Would create new Notion page")
				stats.Created++
				continue
			}

			page, err := s.notion.CreatePage(ctx, s.databaseID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", tx.ID).
					Msg("Failed to create Notion page")
				stats.Failed++
				continue
			}
			log.Debug().
				Str("transaction_id", tx.ID).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
			stats.Created++
		}
	}

	log.Info().
		Int("deleted", stats.Deleted).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("total", len(transactions)).
		Msg("Transaction sync completed")

	return stats, nil
}

// refreshPage rewrites a mirrored page whose fields no longer match tx.
func (s *Syncer) refreshPage(ctx context.Context, page notionapi.Page, tx *domain.Transaction, dryRun bool, stats *SyncStats) {
	if pageMatches(page, tx) {
		stats.Skipped++
		return
	}

	log := logger.WithUser(ctx, tx.UserID)
	if dryRun {
		log.Info().
			Str("transaction_id", tx.ID).
			Str("page_id", string(page.ID)).
			Msg("[DRY RUN] Would update changed Notion page")
		stats.Updated++
		return
	}

	props := TransactionToNotionProperties(tx)
	if _, ok := props[PropDescription]; !ok {
		props[PropDescription] = notionapi.RichTextProperty{RichText: []notionapi.RichText{}}
	}
	if _, err := s.notion.UpdatePage(ctx, string(page.ID), props); err != nil {
		log.Warn().
			Err(err).
			Str("transaction_id", tx.ID).
			Str("page_id", string(page.ID)).
			Msg("Failed to update Notion page")
		stats.Failed++
		return
	}
	stats.Updated++
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
