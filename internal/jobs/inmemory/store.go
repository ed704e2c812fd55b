package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dvloznov/openfinance/internal/jobs"
)

// Store keeps archive job records in a map. Finished jobs lose their payload
// bytes, so the map holds only metadata once an upload is done or abandoned.
type Store struct {
	mu      sync.RWMutex
	records map[string]*jobs.ArchivePayloadJob
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]*jobs.ArchivePayloadJob)}
}

func finished(status jobs.JobStatus) bool {
	return status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed
}

// SaveJob records a snapshot of job, replacing any earlier snapshot.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ArchivePayloadJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	snapshot := *job
	if finished(snapshot.Status) {
		snapshot.Payload = nil
	}

	s.mu.Lock()
	s.records[job.JobID] = &snapshot
	s.mu.Unlock()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ArchivePayloadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	snapshot := *record
	return &snapshot, nil
}

// ListJobs returns matching jobs, newest first. Jobs created in the same
// instant are ordered by descending id so pages are stable.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ArchivePayloadJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.ArchivePayloadJob, 0, len(s.records))
	for _, record := range s.records {
		if filter.Operation != "" && record.Operation != filter.Operation {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		snapshot := *record
		matched = append(matched, &snapshot)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *jobs.ArchivePayloadJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.JobID > b.JobID:
			return -1
		case a.JobID < b.JobID:
			return 1
		}
		return 0
	})

	start := min(max(filter.Offset, 0), len(matched))
	matched = matched[start:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// UpdateJobStatus sets status and, when errorMsg is non-empty, the error text.
// Reaching a finished status drops the payload like SaveJob does.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	record.Status = status
	if errorMsg != "" {
		record.Error = errorMsg
	}
	if finished(status) {
		record.Payload = nil
	}
	return nil
}

var _ jobs.JobStore = (*Store)(nil)
