package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signal_exec/internal/models"

	"github.com/google/uuid"
)

// MemoryStore — однопроцессная реализация стора на мапе под мьютексом.
// Используется в тестах и как эталон семантики для postgres-стора.
type MemoryStore struct {
	opts Options

	mu    sync.Mutex
	jobs  map[string]*models.ExecutionJob
	order []string // порядок вставки = порядок выдачи
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts: opts,
		jobs: make(map[string]*models.ExecutionJob),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, nj models.NewJob) (models.ExecutionJob, error) {
	if err := nj.Validate(); err != nil {
		return models.ExecutionJob{}, err
	}
	id := nj.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; ok {
		return models.ExecutionJob{}, fmt.Errorf("%w: duplicate id %s", models.ErrInvalidJob, id)
	}
	job := &models.ExecutionJob{
		ID:        id,
		SignalID:  nj.SignalID,
		Signal:    copySignal(nj.Signal),
		Status:    models.JobPending,
		CreatedAt: s.opts.now(),
	}
	s.jobs[id] = job
	s.order = append(s.order, id)
	return cloneJob(job), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.ExecutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ExecutionJob{}, models.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.JobStatus]int, 4)
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (s *MemoryStore) ClaimJobs(_ context.Context, limit int) ([]models.ExecutionJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	out := make([]models.ExecutionJob, 0, limit)
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		job := s.jobs[id]
		if job.Status != models.JobPending {
			continue
		}
		at := now
		job.Status = models.JobClaimed
		job.ClaimedAt = &at
		job.Attempt++
		out = append(out, cloneJob(job))
	}
	return out, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	switch job.Status {
	case models.JobCompleted:
		return nil
	case models.JobClaimed:
		job.Status = models.JobCompleted
		job.ClaimedAt = nil
		return nil
	}
	return fmt.Errorf("%w: %s -> completed", models.ErrInvalidTransition, job.Status)
}

func (s *MemoryStore) FailJob(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.Status != models.JobClaimed {
		return fmt.Errorf("%w: %s -> failed", models.ErrInvalidTransition, job.Status)
	}
	job.Status = models.JobFailed
	job.ClaimedAt = nil
	job.LastError = models.TruncateError(message)
	return nil
}

func (s *MemoryStore) ReclaimStale(_ context.Context, visibility time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	reclaimed := 0
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != models.JobClaimed || job.ClaimedAt == nil {
			continue
		}
		if now.Sub(*job.ClaimedAt) < visibility {
			continue
		}
		job.ClaimedAt = nil
		if s.opts.exhausted(job.Attempt) {
			job.Status = models.JobFailed
			job.LastError = exhaustedMessage(job.Attempt)
			continue
		}
		job.Status = models.JobPending
		reclaimed++
	}
	return reclaimed, nil
}

func cloneJob(j *models.ExecutionJob) models.ExecutionJob {
	out := *j
	out.Signal = copySignal(j.Signal)
	if j.ClaimedAt != nil {
		at := *j.ClaimedAt
		out.ClaimedAt = &at
	}
	return out
}

func copySignal(s *models.Signal) *models.Signal {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// MemorySignals — lookup сигналов по id поверх мапы.
type MemorySignals struct {
	mu   sync.RWMutex
	data map[string]models.Signal
}

func NewMemorySignals() *MemorySignals {
	return &MemorySignals{data: make(map[string]models.Signal)}
}

func (m *MemorySignals) PutSignal(_ context.Context, sig models.Signal) error {
	if sig.ID == "" {
		return fmt.Errorf("%w: empty id", models.ErrInvalidSignal)
	}
	m.mu.Lock()
	m.data[sig.ID] = sig
	m.mu.Unlock()
	return nil
}

func (m *MemorySignals) GetSignal(_ context.Context, id string) (models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.data[id]
	if !ok {
		return models.Signal{}, fmt.Errorf("%w: %s", models.ErrSignalNotFound, id)
	}
	return sig, nil
}
