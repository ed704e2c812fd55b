package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeArchivePayload represents a raw request body upload to the archive bucket.
	JobTypeArchivePayload JobType = "archive_payload"
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

// DefaultMaxRetries is used when a job is published without MaxRetries.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueFull is returned by a Publisher that has no room for another job.
var ErrQueueFull = errors.New("queue is full")

// ArchivePayloadJob uploads one inbound request body, exactly as received.
type ArchivePayloadJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Operation is the API operation the payload was sent to (create, update).
	Operation string `json:"operation"`

	// TransactionID is set for updates, where the target is known up front.
	TransactionID string `json:"transaction_id,omitempty"`

	// Payload is the raw request body. It is not exposed through the API.
	Payload []byte `json:"-"`

	// Size is len(Payload), kept for status listings.
	Size int `json:"size"`

	// ObjectURI is where the payload was written, once uploaded.
	ObjectURI string `json:"object_uri,omitempty"`

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

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ArchivePayloadJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ArchivePayloadJob) GetType() JobType {
	return JobTypeArchivePayload
}

// GetStatus implements the Job interface.
func (j *ArchivePayloadJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishArchivePayload publishes a payload archive job. It does not
	// wait for queue space; a full queue yields ErrQueueFull.
	PublishArchivePayload(ctx context.Context, job *ArchivePayloadJob) error

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
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ArchivePayloadJob) error

	// GetJob retrieves a job by ID. Unknown ids return ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*ArchivePayloadJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ArchivePayloadJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Operation filters jobs by API operation.
	Operation string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
