package jobs

import (
	"context"
	"fmt"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRebuildExport regenerates a user's consolidated CSV export.
	JobTypeRebuildExport JobType = "rebuild_export"
	// JobTypeProcessStatement sends an uploaded statement for extraction and imports the result.
	JobTypeProcessStatement JobType = "process_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is applied to jobs published without a retry budget.
const DefaultMaxRetries = 3

// Job is a unit of background work for one user.
type Job struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	Type JobType `json:"type"`

	// UserID owns the job; job listings are scoped to it.
	UserID string `json:"user_id"`

	// GCSURI is the uploaded statement location (statement jobs only).
	GCSURI string `json:"gcs_uri,omitempty"`

	// Filename is the original upload name (statement jobs only).
	Filename string `json:"filename,omitempty"`

	// Imported is the number of transactions a statement job inserted.
	Imported int `json:"imported,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// Publish enqueues a job for asynchronous processing.
	Publish(ctx context.Context, job *Job) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *Job) error

// Mux routes jobs to a handler by type.
type Mux struct {
	handlers map[JobType]JobHandler
}

// NewMux creates an empty router.
func NewMux() *Mux {
	return &Mux{handlers: make(map[JobType]JobHandler)}
}

// Handle registers h for jobs of type t.
func (m *Mux) Handle(t JobType, h JobHandler) {
	m.handlers[t] = h
}

// Dispatch is a JobHandler that forwards to the registered handler.
func (m *Mux) Dispatch(ctx context.Context, job *Job) error {
	h, ok := m.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler for job type %q", job.Type)
	}
	return h(ctx, job)
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by owner.
	UserID string

	// Type filters jobs by type.
	Type JobType

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
