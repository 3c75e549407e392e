// Package memory provides the in-memory job store backing the service.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bindery/novelbind/internal/novel"
)

// JobStore keeps job state in process memory. Jobs are small and
// short-lived, so no eviction is done.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]novel.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]novel.Job)}
}

// CreateJob stores a new job in its submitted state.
func (s *JobStore) CreateJob(_ context.Context, job novel.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus records a status transition. A zero Counters value
// leaves existing counters unchanged, so intermediate transitions do not
// wipe fetch progress. Started is stamped on entering Resolving and
// Finished on any terminal status.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status novel.JobStatus,
	errText string,
	counters novel.Counters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", novel.ErrJobNotFound, jobID)
	}
	job.Status = status
	job.ErrorText = errText
	if counters != (novel.Counters{}) {
		job.Counters = counters
	}
	now := time.Now().UTC()
	if status == novel.JobStatusResolving && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// SetWork records resolved work metadata on the job.
func (s *JobStore) SetWork(_ context.Context, jobID string, title string, totalChapters int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", novel.ErrJobNotFound, jobID)
	}
	job.Title = title
	job.TotalChapters = totalChapters
	s.jobs[jobID] = job
	return nil
}

// RecordResult stores the assembled artifacts and the gap report.
func (s *JobStore) RecordResult(_ context.Context, jobID string, artifacts []novel.Artifact, gaps []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", novel.ErrJobNotFound, jobID)
	}
	job.Artifacts = append([]novel.Artifact(nil), artifacts...)
	job.Gaps = append([]int(nil), gaps...)
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (novel.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return novel.Job{}, fmt.Errorf("%w: %s", novel.ErrJobNotFound, jobID)
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
