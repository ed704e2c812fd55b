// Package archive keeps a copy of every inbound transaction payload, exactly
// as received, in a GCS bucket. Archiving runs on the job queue and never
// affects the request that produced the payload.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/openfinance/internal/gcsuploader"
	"github.com/dvloznov/openfinance/internal/jobs"
	"github.com/dvloznov/openfinance/internal/logger"
)

// DefaultPrefix is the object prefix used when the target has none.
const DefaultPrefix = "payloads"

// Target is where payloads are written.
type Target struct {
	Bucket string
	Prefix string
}

// ParseTarget accepts a bare bucket name or gs://bucket/prefix.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("ParseTarget: empty archive bucket")
	}

	if !strings.HasPrefix(s, "gs://") {
		return Target{Bucket: s, Prefix: DefaultPrefix}, nil
	}

	trimmed := strings.TrimSuffix(s, "/")
	if !strings.Contains(strings.TrimPrefix(trimmed, "gs://"), "/") {
		bucket := strings.TrimPrefix(trimmed, "gs://")
		if bucket == "" {
			return Target{}, fmt.Errorf("ParseTarget: empty bucket in %q", s)
		}
		return Target{Bucket: bucket, Prefix: DefaultPrefix}, nil
	}

	bucket, prefix, err := gcsuploader.ParseGCSURI(trimmed)
	if err != nil {
		return Target{}, fmt.Errorf("ParseTarget: %w", err)
	}
	return Target{Bucket: bucket, Prefix: prefix}, nil
}

// ObjectName returns prefix/YYYY/MM/DD/<job id>.json for a job created at t.
func (t Target) ObjectName(jobID string, at time.Time) string {
	at = at.UTC()
	return path.Join(t.Prefix, at.Format("2006"), at.Format("01"), at.Format("02"), jobID+".json")
}

// Archiver enqueues payloads for upload.
type Archiver struct {
	publisher jobs.Publisher
}

// NewArchiver creates an archiver that publishes to publisher.
func NewArchiver(publisher jobs.Publisher) *Archiver {
	return &Archiver{publisher: publisher}
}

// Enqueue schedules body for upload. It never waits for queue space: when the
// queue is full the payload is dropped with a warning.
func (a *Archiver) Enqueue(ctx context.Context, operation, transactionID string, body []byte) {
	if a == nil || a.publisher == nil || len(body) == 0 {
		return
	}

	job := &jobs.ArchivePayloadJob{
		Operation:     operation,
		TransactionID: transactionID,
		Payload:       append([]byte(nil), body...),
	}

	// A client that hangs up still gets its payload archived.
	if err := a.publisher.PublishArchivePayload(context.WithoutCancel(ctx), job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("operation", operation).Msg("Failed to enqueue payload archive")
	}
}

// Handler returns the job handler that uploads payloads to target.
func Handler(storage gcsuploader.StorageService, target Target) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		archiveJob, ok := job.(*jobs.ArchivePayloadJob)
		if !ok {
			return fmt.Errorf("archive handler: unexpected job type %s", job.GetType())
		}

		objectName := target.ObjectName(archiveJob.JobID, archiveJob.CreatedAt)
		uri, err := storage.UploadBytes(ctx, target.Bucket, objectName, archiveJob.Payload, "application/json")
		if err != nil {
			return fmt.Errorf("archive handler: upload: %w", err)
		}
		archiveJob.ObjectURI = uri

		log := logger.FromContext(ctx)
		log.Debug().Str("job_id", archiveJob.JobID).Str("object_uri", uri).Msg("Payload archived")
		return nil
	}
}
