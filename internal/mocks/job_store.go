package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// JobStore is an in-memory store.JobStore. It is safe for concurrent
// use and supports error injection through UpsertFn.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.JobRecord

	// UpsertFn, when set, replaces the default upsert behavior.
	UpsertFn func(ctx context.Context, job *domain.JobRecord) error

	// UpsertCount tracks the number of Upsert calls.
	UpsertCount int
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*domain.JobRecord)}
}

// Upsert implements store.JobStore.
func (s *JobStore) Upsert(ctx context.Context, job *domain.JobRecord) error {
	s.mu.Lock()
	s.UpsertCount++
	fn := s.UpsertFn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

// GetByID implements store.JobStore.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

// UpdateStatus implements store.JobStore.
func (s *JobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.Status = status
	job.FailureReason = failureReason
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateProgress implements store.JobStore.
func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, stage domain.Stage, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.Stage = stage
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ListByUser implements store.JobStore.
func (s *JobStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.JobRecord, error) {
	return s.list(func(job *domain.JobRecord) bool {
		return job.OwnerUserID == userID
	}, limit), nil
}

// ListByQueue implements store.JobStore.
func (s *JobStore) ListByQueue(ctx context.Context, queue string, limit int) ([]*domain.JobRecord, error) {
	return s.list(func(job *domain.JobRecord) bool {
		return job.Queue == queue
	}, limit), nil
}

// ListByStatus implements store.JobStore.
func (s *JobStore) ListByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Duration) ([]*domain.JobRecord, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.list(func(job *domain.JobRecord) bool {
		if job.Status != status {
			return false
		}
		return olderThan <= 0 || job.UpdatedAt.Before(cutoff)
	}, 0), nil
}

// DeleteTerminalBefore implements store.JobStore.
func (s *JobStore) DeleteTerminalBefore(ctx context.Context, completedBefore, failedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, job := range s.jobs {
		switch job.Status {
		case domain.JobStatusCompleted:
			if job.FinishedAt != nil && job.FinishedAt.Before(completedBefore) {
				delete(s.jobs, id)
				removed++
			}
		case domain.JobStatusFailed:
			if job.FailedAt != nil && job.FailedAt.Before(failedBefore) {
				delete(s.jobs, id)
				removed++
			}
		}
	}
	return removed, nil
}

// WithTx implements store.JobStore; the fake ignores transactions.
func (s *JobStore) WithTx(tx *sql.Tx) store.JobStore {
	return s
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) list(match func(*domain.JobRecord) bool, limit int) []*domain.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.JobRecord
	for _, job := range s.jobs {
		if match(job) {
			clone := *job
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ store.JobStore = (*JobStore)(nil)
