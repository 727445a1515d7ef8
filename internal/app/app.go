// Package app assembles the services behind the API server and the CLI from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/budget-insights/internal/analysis"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/config"
	"github.com/dvloznov/budget-insights/internal/export"
	"github.com/dvloznov/budget-insights/internal/gcs"
	"github.com/dvloznov/budget-insights/internal/gcsuploader"
	infraBQ "github.com/dvloznov/budget-insights/internal/infra/bigquery"
	"github.com/dvloznov/budget-insights/internal/infra/inmemory"
	"github.com/dvloznov/budget-insights/internal/infra/redisstore"
	"github.com/dvloznov/budget-insights/internal/jobs"
	jobsmem "github.com/dvloznov/budget-insights/internal/jobs/inmemory"
	"github.com/dvloznov/budget-insights/internal/ledger"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/dvloznov/budget-insights/internal/pipeline"
	"github.com/redis/go-redis/v9"
)

// LocalBucket names the in-memory bucket used when GCS_BUCKET is unset.
const LocalBucket = "local"

// Purger removes all data stored for a user.
type Purger interface {
	PurgeUser(ctx context.Context, userID string) error
}

// App holds the wired services and the resources they share.
type App struct {
	Config *config.Config

	Transactions bq.TransactionRepository
	Metadata     bq.MetadataRepository
	Snapshots    bq.SnapshotRepository
	Storage      gcs.StorageService
	Bucket       string

	JobStore *jobsmem.Store
	Queue    *jobsmem.Queue

	Ledger     *ledger.Service
	Exports    *export.Builder
	Analysis   *analysis.Service
	Statements *pipeline.Service

	// Redis is nil unless REDIS_ADDR is set.
	Redis *redis.Client

	purgers []Purger
	closers []func() error
}

// New connects the configured backends and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{Config: cfg, Bucket: cfg.Bucket}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.JobStore = jobsmem.NewStore()
	a.Queue = jobsmem.NewQueue(cfg.QueueBuffer, cfg.QueueWorkers, a.JobStore)
	a.closers = append(a.closers, a.Queue.Close)

	a.Ledger = ledger.NewService(a.Transactions, a.Metadata, a.Queue)
	a.Exports = export.NewBuilder(a.Transactions, a.Metadata, a.Storage, a.Bucket)

	analyzer, processor, err := a.openAI(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Analysis = analysis.NewService(a.Transactions, a.Metadata, a.Snapshots, a.Exports, analyzer, cfg.CacheTTL)
	a.Statements = pipeline.NewService(a.Storage, a.Bucket, processor, a.Ledger, a.Queue)

	log.Info().
		Str("store", cfg.Store).
		Str("metadata", cfg.MetadataStore).
		Str("analyzer", cfg.Analyzer).
		Str("bucket", a.Bucket).
		Msg("services initialized")
	return a, nil
}

// Handler routes queued jobs to the export builder and statement pipeline.
func (a *App) Handler() jobs.JobHandler {
	mux := jobs.NewMux()
	mux.Handle(jobs.JobTypeRebuildExport, a.Exports.HandleJob)
	mux.Handle(jobs.JobTypeProcessStatement, a.Statements.HandleJob)
	return mux.Dispatch
}

// StartWorkers begins consuming queued jobs until ctx is cancelled or the queue stops.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Queue.Start(ctx, a.Handler())
}

// PurgeUser removes the user's data from every configured store.
func (a *App) PurgeUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("PurgeUser: user id is required")
	}
	var errs []error
	for _, p := range a.purgers {
		if err := p.PurgeUser(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config

	var mem *inmemory.Store
	memory := func() *inmemory.Store {
		if mem == nil {
			mem = inmemory.NewStore()
			a.purgers = append(a.purgers, mem)
		}
		return mem
	}

	var repo *infraBQ.Repository
	bigQuery := func() (*infraBQ.Repository, error) {
		if repo != nil {
			return repo, nil
		}
		r, err := infraBQ.NewRepository(ctx, cfg.GCPProject, cfg.Dataset)
		if err != nil {
			return nil, err
		}
		repo = r
		a.purgers = append(a.purgers, repo)
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	}

	switch cfg.Store {
	case config.BackendBigQuery:
		r, err := bigQuery()
		if err != nil {
			return fmt.Errorf("app.New: transaction store: %w", err)
		}
		a.Transactions, a.Snapshots = r, r
	default:
		m := memory()
		a.Transactions, a.Snapshots = m, m
	}

	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, a.Redis.Close)
	}

	switch cfg.MetadataStore {
	case config.BackendRedis:
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("app.New: redis metadata: ping %s: %w", cfg.RedisAddr, err)
		}
		meta := redisstore.NewWithClient(a.Redis)
		a.Metadata = meta
		a.purgers = append(a.purgers, purgeFunc(meta.Delete))
	case config.BackendBigQuery:
		r, err := bigQuery()
		if err != nil {
			return fmt.Errorf("app.New: metadata store: %w", err)
		}
		a.Metadata = r
	default:
		a.Metadata = memory()
	}
	return nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	if cfg.Bucket == "" {
		log := logger.FromContext(ctx)
		log.Warn().Msg("No GCS bucket configured - exports and statements are kept in memory")
		a.Storage = gcs.NewMemoryStorage()
		a.Bucket = LocalBucket
		return nil
	}

	signer, err := gcsuploader.LoadSigner(cfg.SignerEmail, cfg.SignerKeyFile)
	if err != nil {
		return fmt.Errorf("app.New: %w", err)
	}
	svc, err := gcsuploader.NewGCSStorageService(ctx, signer)
	if err != nil {
		return fmt.Errorf("app.New: %w", err)
	}
	a.Storage = svc
	a.closers = append(a.closers, svc.Close)
	return nil
}

func (a *App) openAI(ctx context.Context) (analysis.Analyzer, pipeline.Processor, error) {
	cfg := a.Config
	if cfg.Analyzer != config.AnalyzerGemini {
		return analysis.NewHTTPAnalyzer(cfg.AnalysisURL, cfg.AnalysisTimeout),
			pipeline.NewHTTPProcessor(cfg.StatementURL, pipeline.DefaultProcessTimeout),
			nil
	}

	analyzer, err := analysis.NewGeminiAnalyzer(ctx, cfg.GeminiModel, a.Storage, a.Bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("app.New: gemini analyzer: %w", err)
	}
	processor, err := pipeline.NewGeminiProcessor(ctx, cfg.GeminiModel, pipeline.DefaultCategories)
	if err != nil {
		return nil, nil, fmt.Errorf("app.New: gemini statement processor: %w", err)
	}
	return analyzer, processor, nil
}

type purgeFunc func(ctx context.Context, userID string) error

func (f purgeFunc) PurgeUser(ctx context.Context, userID string) error { return f(ctx, userID) }
