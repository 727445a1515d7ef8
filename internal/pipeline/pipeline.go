package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/gcs"
	"github.com/dvloznov/budget-insights/internal/jobs"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/google/uuid"
)

// Service stores uploaded statements and turns them into transactions.
type Service struct {
	storage    StorageService
	bucket     string
	processor  Processor
	importer   Importer
	publisher  jobs.Publisher
	categories *CategoryNormalizer
	now        func() time.Time
}

// NewService wires the statement import flow. publisher may be nil, in
// which case Upload processes the statement inline.
func NewService(storage StorageService, bucket string, processor Processor, importer Importer, publisher jobs.Publisher) *Service {
	return &Service{
		storage:    storage,
		bucket:     bucket,
		processor:  processor,
		importer:   importer,
		publisher:  publisher,
		categories: NewCategoryNormalizer(DefaultCategories),
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Upload stores the statement and schedules it for processing.
func (s *Service) Upload(ctx context.Context, userID, filename string, data []byte) (*jobs.Job, error) {
	const op = "pipeline.Upload"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}
	if len(data) == 0 {
		return nil, domain.Invalid(op, "statement file is empty")
	}
	if len(data) > MaxStatementSize {
		return nil, domain.Invalid(op, fmt.Sprintf("statement exceeds %d MB", MaxStatementSize>>20))
	}

	object := StatementObjectPath(userID, s.now(), uuid.New().String(), filename)
	if err := s.storage.WriteObject(ctx, s.bucket, object, contentTypeFor(filename), data); err != nil {
		return nil, fmt.Errorf("%s: storing statement: %w", op, err)
	}

	job := &jobs.Job{
		Type:     jobs.JobTypeProcessStatement,
		UserID:   userID,
		GCSURI:   gcs.URI(s.bucket, object),
		Filename: filename,
	}

	log := logger.WithUser(ctx, userID)
	log.Info().Str("gcs_uri", job.GCSURI).Msg("statement uploaded")

	if s.publisher == nil {
		job.JobID = uuid.New().String()
		job.CreatedAt = s.now()
		if err := s.HandleJob(ctx, job); err != nil {
			job.Status = jobs.JobStatusFailed
			job.Error = err.Error()
			return job, err
		}
		job.Status = jobs.JobStatusCompleted
		return job, nil
	}

	if err := s.publisher.Publish(ctx, job); err != nil {
		return nil, fmt.Errorf("%s: scheduling processing: %w", op, err)
	}
	return job, nil
}

// HandleJob processes a queued statement job and records the import count on it.
func (s *Service) HandleJob(ctx context.Context, job *jobs.Job) error {
	res, err := s.Process(ctx, job.UserID, job.GCSURI, job.Filename)
	if err != nil {
		return err
	}
	job.Imported = res.Imported
	return nil
}

// Process runs fetch, extract, transform and import for one stored statement.
func (s *Service) Process(ctx context.Context, userID, gcsURI, filename string) (*Result, error) {
	const op = "pipeline.Process"
	if userID == "" {
		return nil, domain.Invalid(op, "user id is required")
	}

	state := &PipelineState{UserID: userID, GCSURI: gcsURI, Filename: filename}
	p := NewPipeline(
		&FetchStatementStep{Storage: s.storage, Bucket: s.bucket},
		&ExtractStep{Processor: s.processor},
		&TransformStep{Categories: s.categories},
		&ImportStep{Importer: s.importer},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log := logger.WithUser(ctx, userID)
	log.Info().
		Str("gcs_uri", gcsURI).
		Int("imported", state.Result.Imported).
		Int("skipped", state.Result.Skipped).
		Msg("statement processed")
	return &state.Result, nil
}

// Preview extracts and normalizes a local statement without storing or importing anything.
func (s *Service) Preview(ctx context.Context, userID, filename string, data []byte) (*PipelineState, error) {
	const op = "pipeline.Preview"
	if len(data) == 0 {
		return nil, domain.Invalid(op, "statement file is empty")
	}

	state := &PipelineState{
		UserID:   userID,
		Filename: filename,
		File: StatementFile{
			UserID:      userID,
			Filename:    filename,
			ContentType: contentTypeFor(filename),
			Data:        data,
		},
	}
	p := NewPipeline(
		&ExtractStep{Processor: s.processor},
		&TransformStep{Categories: s.categories},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return state, nil
}

// objectFromURI returns the object name of a gs:// URI in bucket.
func objectFromURI(bucket, uri string) (string, bool) {
	prefix := gcs.URI(bucket, "")
	if !strings.HasPrefix(uri, prefix) {
		return "", false
	}
	return strings.TrimPrefix(uri, prefix), true
}
