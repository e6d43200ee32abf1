package memory

import (
	"context"
	"sort"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
)

// SaveCascadeJob stores the job if its version matches the stored one.
func (s *Store) SaveCascadeJob(ctx context.Context, job *domain.CascadeJob) error {
	if err := s.checkError("SaveCascadeJob"); err != nil {
		return err
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.jobs[job.ID]
	switch {
	case job.Version == 0 && exists:
		return repository.NewConflict("cascade job", job.ID, "condition failed on put")
	case job.Version > 0 && (!exists || current.Version != job.Version):
		return repository.NewConflict("cascade job", job.ID, "condition failed on put")
	}
	job.Version++
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetCascadeJob returns a copy of the job, or nil if it does not exist.
func (s *Store) GetCascadeJob(ctx context.Context, id string) (*domain.CascadeJob, error) {
	if err := s.checkError("GetCascadeJob"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.jobs[id]; ok {
		return cloneJob(j), nil
	}
	return nil, nil
}

// ListPendingCascadeJobs returns unfinished jobs, oldest first.
func (s *Store) ListPendingCascadeJobs(ctx context.Context) ([]*domain.CascadeJob, error) {
	if err := s.checkError("ListPendingCascadeJobs"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*domain.CascadeJob, 0)
	for _, j := range s.jobs {
		if !j.Done() {
			jobs = append(jobs, cloneJob(j))
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}
