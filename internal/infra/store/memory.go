package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// MemoryStore keeps jobs in process memory. One-shot runs and tests use it
// in place of the bolt store.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	logs  map[string][]domain.StageLogEntry
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]domain.Job),
		logs: make(map[string][]domain.StageLogEntry),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job domain.Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job, nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus, stage domain.Stage, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
	}
	job.Status = status
	if stage != "" {
		job.CurrentStage = stage
	}
	job.ErrorMessage = errMsg
	if status.IsTerminal() {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) AppendStageLog(ctx context.Context, entry domain.StageLogEntry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return fmt.Errorf("stage log job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.JobID] = append(s.logs[entry.JobID], entry)
	return nil
}

func (s *MemoryStore) StageLog(ctx context.Context, jobID string) ([]domain.StageLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.logs[jobID]
	out := make([]domain.StageLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id])
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

var _ domain.JobStore = (*MemoryStore)(nil)
