package analysis

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/budget-insights/internal/bigquery"
	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/export"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/dvloznov/budget-insights/internal/metrics"
)

// Exporter builds the consolidated export the analyzer reads.
type Exporter interface {
	Build(ctx context.Context, userID string) (*export.BuildResult, error)
}

// Service is the staleness-gated analysis cache.
type Service struct {
	txs       bq.TransactionRepository
	meta      bq.MetadataRepository
	snapshots bq.SnapshotRepository
	exporter  Exporter
	analyzer  Analyzer
	ttl       time.Duration
	now       func() time.Time
}

// NewService wires the cache. A non-positive ttl uses DefaultTTL.
func NewService(txs bq.TransactionRepository, meta bq.MetadataRepository, snapshots bq.SnapshotRepository, exporter Exporter, analyzer Analyzer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		txs:       txs,
		meta:      meta,
		snapshots: snapshots,
		exporter:  exporter,
		analyzer:  analyzer,
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Classify decides whether snap may be served given the user's current marker.
func Classify(snap *domain.AnalysisSnapshot, marker *time.Time, now time.Time, ttl time.Duration) State {
	switch {
	case snap == nil:
		return StateNoSnapshot
	case now.Sub(snap.Timestamp) >= ttl:
		return StateStaleByAge
	case !snap.Complete():
		return StateIncomplete
	case !domain.SameMarker(snap.LastTransactionTimestamp, marker):
		return StateStaleByTransaction
	default:
		return StateFresh
	}
}

// GetAnalysis returns the user's analysis, from cache when fresh.
// Only an empty user ID produces an error; every other failure degrades to a fallback snapshot.
func (s *Service) GetAnalysis(ctx context.Context, userID string, forceRefresh bool) (*domain.AnalysisSnapshot, error) {
	out, err := s.Resolve(ctx, userID, forceRefresh)
	if err != nil {
		return nil, err
	}
	return out.Snapshot, nil
}

// Resolve is GetAnalysis with the cache state, source and warnings exposed.
func (s *Service) Resolve(ctx context.Context, userID string, forceRefresh bool) (*Outcome, error) {
	if userID == "" {
		return nil, domain.Invalid("analysis.Resolve", "user id is required")
	}
	log := logger.WithUser(ctx, userID)

	state := StateForced
	var warnings []error

	if !forceRefresh {
		snap, err := s.snapshots.GetSnapshot(ctx, userID)
		if err != nil {
			warnings = append(warnings, domain.Recoverable("load snapshot", err))
			snap = nil
		}

		var marker *time.Time
		md, err := s.meta.GetMetadata(ctx, userID)
		if err != nil {
			warnings = append(warnings, domain.Recoverable("load metadata", err))
		} else {
			marker = md.LastTransactionTimestamp
		}

		state = Classify(snap, marker, s.now(), s.ttl)
		metrics.CacheState.WithLabelValues(string(state)).Inc()

		if state == StateFresh {
			log.Debug().Time("snapshot_ts", snap.Timestamp).Msg("serving cached analysis")
			metrics.AnalysisServed.WithLabelValues(string(SourceCache)).Inc()
			return &Outcome{Snapshot: snap, State: state, Source: SourceCache, Warnings: warnings}, nil
		}
		log.Info().Str("state", string(state)).Msg("analysis cache miss, recomputing")
	}

	out := s.Compute(ctx, userID)
	out.State = state
	out.Warnings = append(warnings, out.Warnings...)
	return out, nil
}

// Compute recomputes the analysis: export, analyzer call, merge and persist.
// It always returns a snapshot. Analyzer failures yield a fallback, which is not persisted.
func (s *Service) Compute(ctx context.Context, userID string) *Outcome {
	log := logger.WithUser(ctx, userID)
	now := s.now().UTC()
	out := &Outcome{}

	// The marker is read before anything else so a mutation that lands
	// mid-computation leaves the persisted snapshot stale.
	var marker *time.Time
	if md, err := s.meta.GetMetadata(ctx, userID); err != nil {
		out.Warnings = append(out.Warnings, domain.Recoverable("read marker", err))
	} else {
		marker = md.LastTransactionTimestamp
	}

	local, err := s.localAggregates(ctx, userID, now)
	if err != nil {
		out.Warnings = append(out.Warnings, domain.Recoverable("derive aggregates", err))
	}

	req := Request{SampleData: true}
	if built, err := s.exporter.Build(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("export build failed, analyzing sample data")
		out.Warnings = append(out.Warnings, domain.Recoverable("build export", err))
	} else if built.URL != "" {
		req = Request{CSVURL: built.URL, Object: built.Object}
	}

	res, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("analysis service failed, serving fallback")
		out.Warnings = append(out.Warnings, domain.Recoverable("analyze", err))

		snap := Fallback(local)
		snap.UserID = userID
		snap.Timestamp = now
		snap.LastTransactionTimestamp = marker

		out.Snapshot = snap
		out.Source = SourceFallback
		metrics.AnalysisServed.WithLabelValues(string(SourceFallback)).Inc()
		return out
	}

	snap := MergeWithFallback(res, local)
	snap.UserID = userID
	snap.Timestamp = now
	snap.LastTransactionTimestamp = marker

	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		log.Error().Err(err).Msg("failed to persist analysis snapshot")
		out.Warnings = append(out.Warnings, domain.Recoverable("save snapshot", err))
	}
	if err := s.meta.SetLastAnalyzed(ctx, userID, now); err != nil {
		log.Warn().Err(err).Msg("failed to stamp last analyzed")
		out.Warnings = append(out.Warnings, domain.Recoverable("stamp last analyzed", err))
	}

	log.Info().Bool("sample_data", req.SampleData).Msg("analysis computed")
	out.Snapshot = snap
	out.Source = SourceService
	metrics.AnalysisServed.WithLabelValues(string(SourceService)).Inc()
	return out
}

// localAggregates loads the last six months of transactions and derives the local aggregates.
// On a read failure the aggregates are derived from no data.
func (s *Service) localAggregates(ctx context.Context, userID string, now time.Time) (LocalAggregates, error) {
	year, month, _ := now.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := civil.DateOf(first.AddDate(0, -(trendMonths - 1), 0))
	end := civil.DateOf(first.AddDate(0, 1, -1))

	expenses, err := s.txs.ListTransactionsInRange(ctx, userID, domain.KindExpense, start, end)
	if err != nil {
		return Derive(nil, nil, now), fmt.Errorf("listing expenses: %w", err)
	}
	income, err := s.txs.ListTransactionsInRange(ctx, userID, domain.KindIncome, start, end)
	if err != nil {
		return Derive(expenses, nil, now), fmt.Errorf("listing income: %w", err)
	}
	return Derive(expenses, income, now), nil
}
