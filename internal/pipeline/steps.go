package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-insights/internal/domain"
	"github.com/dvloznov/budget-insights/internal/logger"
)

// PipelineStep represents a single step in the statement import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserID   string
	GCSURI   string
	Filename string

	File         StatementFile
	Extracted    []ExtractedTransaction
	Transactions []*domain.Transaction
	Result       Result
}

// FetchStatementStep downloads the stored statement.
type FetchStatementStep struct {
	Storage StorageService
	Bucket  string
}

func (s *FetchStatementStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.Storage.FetchFromGCS(ctx, state.GCSURI)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", state.GCSURI, err)
	}

	filename := state.Filename
	if filename == "" {
		filename = s.Storage.ExtractFilenameFromGCSURI(state.GCSURI)
	}

	state.File = StatementFile{
		UserID:      state.UserID,
		Filename:    filename,
		ContentType: contentTypeFor(filename),
		Data:        data,
	}

	if object, ok := objectFromURI(s.Bucket, state.GCSURI); ok {
		if url, err := s.Storage.ObjectURL(ctx, s.Bucket, object); err == nil {
			state.File.URL = url
		} else {
			log := logger.WithUser(ctx, state.UserID)
			log.Warn().Err(err).Msg("could not produce a download URL for the statement")
		}
	}
	return nil
}

// ExtractStep sends the statement to the processor.
type ExtractStep struct {
	Processor Processor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	rows, err := s.Processor.Process(ctx, state.File)
	if err != nil {
		return fmt.Errorf("extracting transactions: %w", err)
	}
	state.Extracted = rows
	return nil
}

// TransformStep normalizes extracted rows, skipping ones that cannot be read.
type TransformStep struct {
	Categories *CategoryNormalizer
}

func (s *TransformStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, rowErrs := transformExtracted(state.Extracted, s.Categories)

	log := logger.WithUser(ctx, state.UserID)
	for _, err := range rowErrs {
		log.Warn().Err(err).Str("gcs_uri", state.GCSURI).Msg("skipping unreadable statement row")
	}

	if len(txs) == 0 && len(rowErrs) > 0 {
		return fmt.Errorf("no readable transactions in %d rows: %w", len(rowErrs), rowErrs[0])
	}

	state.Transactions = txs
	state.Result.Skipped = len(rowErrs)
	return nil
}

// ImportStep records the transactions for the user.
type ImportStep struct {
	Importer Importer
}

func (s *ImportStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Importer.Import(ctx, state.UserID, state.Transactions)
	if err != nil {
		return fmt.Errorf("importing transactions: %w", err)
	}
	state.Result.Imported = int(res.Count)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
