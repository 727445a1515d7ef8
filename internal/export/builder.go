package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/gcs"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/dvloznov/budget-insights/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const contentType = "text/csv"

// ObjectPath is the stable per-user export location.
func ObjectPath(userID string) string {
	return "exports/" + userID + "/transactions.csv"
}

// AlternateObjectPath is tried once when the primary path rejects the write.
func AlternateObjectPath(userID string) string {
	return "users/" + userID + "/exports/transactions.csv"
}

// BuildResult describes a finished export.
type BuildResult struct {
	URL    string
	Object string
	Rows   int
	// Degraded is set when both upload paths were rejected and URL is the
	// last known-good location rather than a fresh upload.
	Degraded bool
}

// Builder produces the consolidated CSV export for a user.
type Builder struct {
	txs     bq.TransactionRepository
	meta    bq.MetadataRepository
	storage gcs.StorageService
	bucket  string
	now     func() time.Time
}

// NewBuilder creates a Builder writing into bucket.
func NewBuilder(txs bq.TransactionRepository, meta bq.MetadataRepository, storage gcs.StorageService, bucket string) *Builder {
	return &Builder{
		txs:     txs,
		meta:    meta,
		storage: storage,
		bucket:  bucket,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build reads the user's full history, uploads the CSV and records the URL in
// user metadata. Upload and read failures come back as recoverable errors.
func (b *Builder) Build(ctx context.Context, userID string) (*BuildResult, error) {
	const op = "export.Build"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	log := logger.WithUser(ctx, userID)

	var expenses, income []*domain.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = b.txs.ListTransactions(gctx, userID, domain.KindExpense)
		return err
	})
	g.Go(func() error {
		var err error
		income, err = b.txs.ListTransactions(gctx, userID, domain.KindIncome)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.ExportBuilds.WithLabelValues("error").Inc()
		return nil, domain.Recoverable(op, fmt.Errorf("listing transactions: %w", err))
	}

	rows := BuildRows(expenses, income, todayUTC(b.now()))
	data, err := EncodeCSV(rows)
	if err != nil {
		metrics.ExportBuilds.WithLabelValues("error").Inc()
		return nil, domain.Recoverable(op, err)
	}

	result := &BuildResult{Rows: len(rows)}

	object, err := b.upload(ctx, userID, data)
	switch {
	case err == nil:
		result.Object = object
	case errors.Is(err, domain.ErrPermissionDenied):
		result.Object = ObjectPath(userID)
		result.URL = gcs.PublicURL(b.bucket, result.Object)
		result.Degraded = true
		log.Warn().Err(err).Str("url", result.URL).Msg("export upload rejected on both paths, returning last known location")
		metrics.ExportBuilds.WithLabelValues("degraded").Inc()
		return result, nil
	default:
		metrics.ExportBuilds.WithLabelValues("error").Inc()
		return nil, domain.Recoverable(op, err)
	}

	url, err := b.storage.ObjectURL(ctx, b.bucket, object)
	if err != nil {
		log.Warn().Err(err).Msg("signing export URL failed, using public URL")
		url = gcs.PublicURL(b.bucket, object)
	}
	result.URL = url

	if err := b.meta.SetExport(ctx, userID, url, b.now()); err != nil {
		log.Warn().Err(err).Msg("failed to record export URL in user metadata")
	}

	log.Info().Int("rows", result.Rows).Str("object", object).Msg("export built")
	return result, nil
}

// upload writes to the primary path and, on a permission failure only, to the alternate path.
func (b *Builder) upload(ctx context.Context, userID string, data []byte) (string, error) {
	primary := ObjectPath(userID)
	err := b.storage.WriteObject(ctx, b.bucket, primary, contentType, data)
	if err == nil {
		metrics.ExportBuilds.WithLabelValues("ok").Inc()
		return primary, nil
	}
	if !errors.Is(err, domain.ErrPermissionDenied) {
		return "", fmt.Errorf("uploading %s: %w", primary, err)
	}

	log := logger.WithUser(ctx, userID)
	log.Warn().Err(err).Msg("export upload rejected, retrying at alternate path")

	alternate := AlternateObjectPath(userID)
	if err := b.storage.WriteObject(ctx, b.bucket, alternate, contentType, data); err != nil {
		return "", fmt.Errorf("uploading %s: %w", alternate, errors.Join(domain.ErrPermissionDenied, err))
	}
	metrics.ExportBuilds.WithLabelValues("alternate").Inc()
	return alternate, nil
}
