package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/budget-insights/internal/app"
	"github.com/dvloznov/budget-insights/internal/config"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/export"
	"github.com/dvloznov/budget-insights/internal/jobs"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/dvloznov/budget-insights/internal/notionsync"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogJSON)

	switch os.Args[1] {
	case "analyze":
		runAnalyze(cfg, log)
	case "export":
		runExport(cfg, log)
	case "import":
		runImport(cfg, log)
	case "statement":
		runStatement(cfg, log)
	case "sync-notion":
		runSyncNotion(cfg, log)
	case "purge-user":
		runPurgeUser(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Budget Insights CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze      Print a user's analysis (cached when fresh)")
	fmt.Println("  export       Rebuild a user's consolidated CSV export")
	fmt.Println("  import       Import transactions from an export CSV file")
	fmt.Println("  statement    Upload and process a bank statement")
	fmt.Println("  sync-notion  Mirror a user's transactions into a Notion database")
	fmt.Println("  purge-user   Delete everything stored for a user")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// open builds the services with a logger-carrying context.
func open(cfg *config.Config, log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc, *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	services, err := app.New(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	return ctx, func() {
		services.Close()
		cancel()
	}, services
}

func requireUser(log zerolog.Logger, userID string) {
	if userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
}

func runAnalyze(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	refresh := fs.Bool("refresh", false, "Ignore the cached snapshot and recompute")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, done, services := open(cfg, log, cfg.AnalysisTimeout+time.Minute)
	defer done()

	out, err := services.Analysis.Resolve(ctx, *userID, *refresh)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}
	for _, w := range out.Warnings {
		log.Warn().Err(w).Msg("Analysis degraded")
	}

	log.Info().
		Str("state", string(out.State)).
		Str("source", string(out.Source)).
		Msg("Analysis resolved")

	decimal.MarshalJSONWithoutQuotes = true
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out.Snapshot); err != nil {
		log.Fatal().Err(err).Msg("Failed to print analysis")
	}
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	ctx, done, services := open(cfg, log, 5*time.Minute)
	defer done()

	result, err := services.Exports.Build(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	if result.Degraded {
		log.Warn().Msg("Upload rejected; URL points at the last known export")
	}

	fmt.Printf("Exported %d rows to %s\n", result.Rows, result.URL)
}

func runImport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	filePath := fs.String("file", "", "Path to an export CSV file")
	keepIDs := fs.Bool("keep-ids", false, "Keep transaction IDs from the file instead of assigning new ones")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)
	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to open file")
	}
	defer f.Close()

	rows, err := export.ParseCSV(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse CSV")
	}

	txs := make([]*domain.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := row.Transaction()
		if err != nil {
			log.Fatal().Err(err).Int("row", i+1).Msg("Invalid row")
		}
		if !*keepIDs {
			tx.ID = ""
		}
		txs = append(txs, tx)
	}

	ctx, done, services := open(cfg, log, 5*time.Minute)
	defer done()

	result, err := services.Ledger.Import(ctx, *userID, txs)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Println(result.Message)
}

func runStatement(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("statement", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	filePath := fs.String("file", "", "Path to a PDF or CSV statement")
	dryRun := fs.Bool("dry-run", false, "Print the extracted transactions without storing or importing them")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)
	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
	}

	ctx, done, services := open(cfg, log, 10*time.Minute)
	defer done()

	if *dryRun {
		state, err := services.Statements.Preview(ctx, *userID, filepath.Base(*filePath), data)
		if err != nil {
			log.Fatal().Err(err).Msg("Extraction failed")
		}
		for _, tx := range state.Transactions {
			fmt.Printf("%s  %-7s  %10s  %-20s  %s\n", tx.Date, tx.Kind, tx.Amount.StringFixed(2), tx.Category, tx.Description)
		}
		fmt.Printf("\n%d transactions, %d rows skipped\n", len(state.Transactions), state.Result.Skipped)
		return
	}

	if err := services.StartWorkers(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	job, err := services.Statements.Upload(ctx, *userID, filepath.Base(*filePath), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	log.Info().Str("job_id", job.JobID).Str("gcs_uri", job.GCSURI).Msg("Statement uploaded, waiting for processing")

	final, err := waitForJob(ctx, services.JobStore, job.JobID)
	if err != nil {
		log.Fatal().Err(err).Msg("Statement processing did not finish")
	}
	if final.Status == jobs.JobStatusFailed {
		log.Fatal().Str("error", final.Error).Msg("Statement processing failed")
	}

	fmt.Printf("Imported %d transactions from %s\n", final.Imported, *filePath)
}

func waitForJob(ctx context.Context, store jobs.JobStore, jobID string) (*jobs.Job, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runSyncNotion(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	notionToken := fs.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := fs.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DB_ID env)")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	ctx, done, services := open(cfg, log, 30*time.Minute)
	defer done()

	syncer := notionsync.NewSyncer(services.Transactions, notionsync.NewNotionClient(*notionToken), *notionDBID)
	stats, err := syncer.SyncUser(ctx, *userID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("deleted", stats.Deleted).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Bool("dry_run", *dryRun).
		Msg("Sync completed")
}

func runPurgeUser(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("purge-user", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	confirm := fs.Bool("yes", false, "Confirm deletion")
	fs.Parse(os.Args[2:])
	requireUser(log, *userID)

	if !*confirm {
		log.Fatal().Msg("Refusing to purge without --yes")
	}

	ctx, done, services := open(cfg, log, 5*time.Minute)
	defer done()

	if err := services.PurgeUser(ctx, *userID); err != nil {
		log.Fatal().Err(err).Msg("Purge failed")
	}

	fmt.Printf("Purged all data for user %s\n", *userID)
}
